package actor

import (
	"errors"
	"testing"
	"time"

	"exportguard/internal/core/domain"
	"exportguard/internal/util/actorutil"
	"exportguard/pkg/goodwe"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWritePowerLimitModbusActor(t *testing.T) {

	assert := assert.New(t)

	writer := &goodwe.TestLimitWriter{}

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewModbusActor(writer, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	msg := domain.WritePowerLimitRequest{
		Limit: goodwe.PowerLimit{Enabled: true, Percent: 42},
	}
	result, err := context.RequestFuture(pid, msg, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.WritePowerLimitResponse)

	assert.False(resp.HasResponseError(), "write should succeed")

	readResult, err := context.RequestFuture(pid, domain.ReadPowerLimitRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	readResp := readResult.(domain.ReadPowerLimitResponse)

	assert.False(readResp.HasResponseError(), "read should succeed")
	assert.NotNil(readResp.Limit)
	assert.True(readResp.Limit.Enabled, "limit enabled")
	assert.Equal(uint8(42), readResp.Limit.Percent, "limit percent")

	context.Stop(pid)

	as.Shutdown()
}

func TestWritePowerLimitErrorModbusActor(t *testing.T) {

	assert := assert.New(t)

	writer := &goodwe.TestLimitWriter{WriteErr: errors.New("write failed")}

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewModbusActor(writer, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	msg := domain.WritePowerLimitRequest{
		Limit: goodwe.PowerLimit{Enabled: true, Percent: 10},
	}
	result, err := context.RequestFuture(pid, msg, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.WritePowerLimitResponse)

	assert.True(resp.HasResponseError(), "write should fail")

	context.Stop(pid)

	as.Shutdown()
}
