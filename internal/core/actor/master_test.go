package actor

import (
	"context"
	"fmt"
	"testing"
	"time"

	adactor "exportguard/internal/adapter/actor"
	"exportguard/internal/core/domain"
	"exportguard/internal/util"
	"exportguard/pkg/goodwe"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type testPriceSource struct {
	feedInCents float64
}

func (s *testPriceSource) CurrentPrices(ctx context.Context) (*domain.PriceSnapshot, error) {
	importCents := 30.0
	feedIn := s.feedInCents
	return &domain.PriceSnapshot{
		ImportPriceCents: &importCents,
		FeedInPriceCents: &feedIn,
		FetchedAt:        time.Now(),
	}, nil
}

type testTelemetrySource struct {
	soc     float64
	load    float64
	grid    float64
	battery float64
}

func (s *testTelemetrySource) LastPowerData(ctx context.Context) (*domain.TelemetrySnapshot, error) {
	soc, load, grid, battery := s.soc, s.load, s.grid, s.battery
	pv := 2000.0
	return &domain.TelemetrySnapshot{
		SOCPercent:     &soc,
		LoadWatt:       &load,
		GridWattRaw:    &grid,
		BatteryWattRaw: &battery,
		PVWatt:         &pv,
		FetchedAt:      time.Now(),
	}, nil
}

func TestMasterActor(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func() *adactor.ModbusActor {
			return adactor.NewModbusActor(&goodwe.TestLimitWriter{}, logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, func() *adactor.PriceActor {
			return adactor.NewPriceActor(cfg.Amber, &testPriceSource{feedInCents: -2}, logger)
		}, func() *adactor.TelemetryActor {
			return adactor.NewTelemetryActor(cfg.Telemetry, &testTelemetrySource{soc: 55, load: 400, grid: 100, battery: 0}, nil, logger)
		}, logger)
	})
	pid, err := context.SpawnNamed(props, "master")
	if err != nil {
		t.Error(err)
		return
	}

	time.Sleep(2 * time.Second)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		//return
	}
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	fmt.Printf("Health response: %+v\n", healthResp)
	assert.NotNil(t, healthResp)

	assert.True(t, healthResp.Healthy, "healthy is true")

	context.Stop(pid)

	as.Shutdown()
}
