package actor

import (
	"testing"
	"time"

	adactor "exportguard/internal/adapter/actor"
	"exportguard/internal/core/domain"
	"exportguard/internal/util"
	"exportguard/internal/util/actorutil"
	"exportguard/pkg/goodwe"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestControlActorFullBatteryLimits(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.Control.TickIntervalMillis = 500

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	writer := &goodwe.TestLimitWriter{}
	modbusPid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewModbusActor(writer, logger)
	}))
	pricesPid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewPriceActor(cfg.Amber, &testPriceSource{feedInCents: -2}, logger)
	}))
	// full battery, house load 300W, balanced grid
	telemetryPid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewTelemetryActor(cfg.Telemetry, &testTelemetrySource{soc: 100, load: 300, grid: 0, battery: 0}, nil, logger)
	}))

	es := &eventstream.EventStream{}
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewControlActor(&cfg, BuildControlLogic(&cfg, logger), pricesPid, telemetryPid, modbusPid, es, logger)
	}))

	time.Sleep(2 * time.Second)

	res, err := context.RequestFuture(pid, domain.GetTickReportRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.GetTickReportResponse)
	require.True(t, ok)
	require.NotNil(t, resp.Report)

	report := resp.Report
	assert.True(report.Decision.Costly, "export should be costly")
	assert.Equal(domain.PlanModeLimitFull, report.Plan.Mode, "plan mode")
	// load 300 + import bias 50 over 5000W rated => 7%
	assert.InDelta(350, report.Plan.TargetWatt, 0.01, "target watts")
	assert.Equal(uint8(7), report.TargetPercent, "target percent")
	assert.Empty(report.WriteError, "no write error")

	context.Stop(pid)
	as.Shutdown()
}

func TestControlActorForceZeroSwitch(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.Control.TickIntervalMillis = 500

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	writer := &goodwe.TestLimitWriter{}
	modbusPid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewModbusActor(writer, logger)
	}))
	// positive feed-in price, export would normally be allowed
	pricesPid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewPriceActor(cfg.Amber, &testPriceSource{feedInCents: 5}, logger)
	}))
	telemetryPid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewTelemetryActor(cfg.Telemetry, &testTelemetrySource{soc: 55, load: 400, grid: 100, battery: 0}, nil, logger)
	}))

	es := &eventstream.EventStream{}
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewControlActor(&cfg, BuildControlLogic(&cfg, logger), pricesPid, telemetryPid, modbusPid, es, logger)
	}))

	time.Sleep(1 * time.Second)

	res, err := context.RequestFuture(pid, domain.ControlForceZeroRequest{Enable: true}, 10*time.Second).Result()
	require.NoError(t, err)
	fzResp, ok := res.(domain.ControlForceZeroResponse)
	require.True(t, ok)
	assert.True(fzResp.Changed, "switch should change")

	res, err = context.RequestFuture(pid, domain.ControlGetForceZeroRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	getResp, ok := res.(domain.ControlGetForceZeroResponse)
	require.True(t, ok)
	assert.True(getResp.State, "switch should be on")

	time.Sleep(1 * time.Second)

	res, err = context.RequestFuture(pid, domain.GetTickReportRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.GetTickReportResponse)
	require.True(t, ok)
	require.NotNil(t, resp.Report)

	assert.True(resp.Report.ForceZero, "report flags the override")
	assert.Equal(domain.PlanModeForcedZero, resp.Report.Plan.Mode, "plan mode")
	assert.Equal(uint8(0), resp.Report.TargetPercent, "target percent")

	context.Stop(pid)
	as.Shutdown()
}
