package actor

import (
	"fmt"
	"time"

	"exportguard/internal/config"
	"exportguard/internal/core/domain"
	"exportguard/internal/core/events"
	"exportguard/internal/core/port"
	. "exportguard/internal/util/actorutil"
	"exportguard/pkg/goodwe"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// ControlActor runs the export limit loop: on every tick it gathers the
// cached price and telemetry snapshots, lets the control logic decide, and
// performs the register write through the modbus actor. Local state is only
// advanced after the write is confirmed, so a lost write is redone on the
// next tick.
type ControlActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	config         *config.Config
	pricesActor    *actor.PID
	telemetryActor *actor.PID
	modbusActor    *actor.PID
	eventStream    *eventstream.EventStream
	logic          port.ControlLogic

	ctrlState  domain.ControllerState
	forceZero  bool
	lastReport *domain.TickReport

	collectPrice     *domain.PriceSnapshot
	collectTelemetry *domain.TelemetrySnapshot
	collected        int

	logger *zap.Logger
}

type controlTick struct {
}

func NewControlActor(config *config.Config, logic port.ControlLogic, pricesActor, telemetryActor, modbusActor *actor.PID,
	eventStream *eventstream.EventStream, logger *zap.Logger) *ControlActor {
	act := &ControlActor{
		config:         config,
		logic:          logic,
		pricesActor:    pricesActor,
		telemetryActor: telemetryActor,
		modbusActor:    modbusActor,
		eventStream:    eventStream,
		behavior:       actor.NewBehavior(),
		stash:          &Stash{},
		logger:         ActorLogger(domain.ACTOR_ID_CONTROL, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *ControlActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ControlActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("control@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.scheduler.RequestOnce(state.tickInterval(), ctx.Self(), controlTick{})
		state.eventStream.Publish(events.ForceZeroSwitchUpdateEvent(state.forceZero))
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("control@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ControlActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("control@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_CONTROL,
			Healthy: true,
			State:   state.healthState(),
		})
	case domain.GetTickReportRequest:
		ForRequest(msg).Respond(ctx, domain.GetTickReportResponse{
			Report: state.lastReport,
		})
	case domain.ControlForceZeroRequest:
		changed := state.forceZero != msg.Enable
		state.forceZero = msg.Enable
		state.logger.Info("control@default force zero switch", zap.Bool("enable", msg.Enable))
		if changed {
			state.eventStream.Publish(events.ForceZeroSwitchUpdateEvent(state.forceZero))
		}
		if ctx.Sender() != nil {
			ctx.Respond(domain.ControlForceZeroResponse{Changed: changed})
		}
	case domain.ControlGetForceZeroRequest:
		if ctx.Sender() != nil {
			ctx.Respond(domain.ControlGetForceZeroResponse{State: state.forceZero})
		}
	case controlTick:
		state.logger.Debug("control@default tick")

		// schedule next tick
		state.scheduler.RequestOnce(state.tickInterval(), ctx.Self(), controlTick{})

		state.collectPrice = nil
		state.collectTelemetry = nil
		state.collected = 0

		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.pricesActor, domain.GetPriceSnapshotRequest{}, 1*time.Second), func(err error) any {
			return domain.GetPriceSnapshotResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.telemetryActor, domain.GetTelemetrySnapshotRequest{}, 1*time.Second), func(err error) any {
			return domain.GetTelemetrySnapshotResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		state.behavior.BecomeStacked(state.CollectingReceive)
	default:
		state.logger.Debug("control@default: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ControlActor) CollectingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetPriceSnapshotResponse:
		if msg.HasResponseError() {
			state.logger.Warn("control@collecting price snapshot unavailable", zap.Error(msg.GetResponseError()))
		} else {
			state.collectPrice = msg.Snapshot
		}
		state.collected++
		state.runTickIfReady(ctx)
	case domain.GetTelemetrySnapshotResponse:
		if msg.HasResponseError() {
			state.logger.Warn("control@collecting telemetry snapshot unavailable", zap.Error(msg.GetResponseError()))
		} else {
			state.collectTelemetry = msg.Snapshot
		}
		state.collected++
		state.runTickIfReady(ctx)
	default:
		state.logger.Debug("control@collecting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ControlActor) runTickIfReady(ctx actor.Context) {
	if state.collected < 2 {
		return
	}

	newState, report := state.logic.Tick(state.ctrlState, state.collectPrice, state.collectTelemetry, state.forceZero, time.Now())
	state.ctrlState = newState

	if report.Write == nil {
		state.finishTick(ctx, report)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
		return
	}

	cmd := *report.Write
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.WritePowerLimitRequest{
		Limit: goodwe.PowerLimit{Enabled: cmd.Enabled, Percent: cmd.Percent},
	}, 5*time.Second), func(err error) any {
		return domain.WritePowerLimitResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	})
	state.behavior.UnbecomeStacked()
	state.behavior.BecomeStacked(state.awaitWriteReceive(cmd, report))
}

func (state *ControlActor) awaitWriteReceive(cmd domain.WriteCommand, report domain.TickReport) actor.ReceiveFunc {
	return func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case domain.WritePowerLimitResponse:
			if msg.HasResponseError() {
				state.logger.Error("control@awaitWrite register write failed", zap.Error(msg.GetResponseError()))
				report.WriteError = msg.GetResponseError().Error()
			} else {
				state.ctrlState = state.ctrlState.MarkWritten(cmd, time.Now())
				state.logger.Info("control@awaitWrite register write applied",
					zap.Bool("enabled", cmd.Enabled), zap.Uint8("percent", cmd.Percent), zap.Bool("forced", cmd.Forced))
			}
			state.finishTick(ctx, report)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		default:
			state.logger.Debug("control@awaitWrite: stash", zap.String("type", fmt.Sprintf("%T", msg)))
			state.stash.Stash(ctx, msg)
		}
	}
}

func (state *ControlActor) finishTick(ctx actor.Context, report domain.TickReport) {
	state.lastReport = &report
	for _, ev := range events.TickReportToUpdateEvents(&report) {
		state.eventStream.Publish(ev)
	}
}

func (state *ControlActor) tickInterval() time.Duration {
	return time.Duration(state.config.Control.TickIntervalMillis) * time.Millisecond
}

func (state *ControlActor) healthState() string {
	switch {
	case state.lastReport == nil:
		return "starting"
	case state.lastReport.WriteError != "":
		return "write_error"
	default:
		return string(state.lastReport.Plan.Mode)
	}
}
