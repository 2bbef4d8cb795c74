package actor

import (
	"context"
	"fmt"
	"time"

	"exportguard/internal/config"
	"exportguard/internal/core/domain"
	"exportguard/internal/core/port"
	"exportguard/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// TelemetryActor polls the battery provider on a fixed interval and caches
// the latest raw snapshot. The unit serial is resolved once at startup; a
// failure there restarts the actor through the supervisor.
type TelemetryActor struct {
	behavior  actor.Behavior
	stash     *actorutil.Stash
	scheduler *scheduler.TimerScheduler

	source   port.TelemetrySource
	resolve  func(ctx context.Context) (string, error)
	config   config.TelemetryConfig
	snapshot *domain.TelemetrySnapshot

	logger *zap.Logger
}

type telemetryTick struct {
}

type telemetryFetchResult struct {
	snapshot *domain.TelemetrySnapshot
	err      error
}

type serialResolved struct {
	sysSn string
	err   error
}

func NewTelemetryActor(cfg config.TelemetryConfig, source port.TelemetrySource,
	resolve func(ctx context.Context) (string, error), logger *zap.Logger) *TelemetryActor {
	act := &TelemetryActor{
		config:   cfg,
		source:   source,
		resolve:  resolve,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_TELEMETRY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *TelemetryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *TelemetryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("telemetry@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)

		if state.resolve == nil {
			ctx.Send(ctx.Self(), serialResolved{})
			return
		}
		timeout := state.timeout()
		actorutil.NewBackgroundTask(ctx, func() (*serialResolved, error) {
			resCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			sn, err := state.resolve(resCtx)
			return &serialResolved{sysSn: sn, err: err}, nil
		}).WithTimeout(timeout + time.Second).Recover(func(err error) serialResolved {
			return serialResolved{err: err}
		}).PipeTo(ctx.Self())
	case serialResolved:
		if msg.err != nil {
			state.logger.Error("telemetry@starting could not resolve unit serial", zap.Error(msg.err))
			panic(msg.err)
		}
		if msg.sysSn != "" {
			state.logger.Info("telemetry@starting unit resolved", zap.String("sys_sn", msg.sysSn))
		}
		ctx.Send(ctx.Self(), telemetryTick{})
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("telemetry@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *TelemetryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("telemetry@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_TELEMETRY,
			Healthy: true,
			State:   state.healthState(),
		})
	case domain.GetTelemetrySnapshotRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.GetTelemetrySnapshotResponse{
			Snapshot: state.snapshot,
		})
	case telemetryTick:
		state.logger.Debug("telemetry@default tick")
		timeout := state.timeout()
		actorutil.NewBackgroundTask(ctx, func() (*telemetryFetchResult, error) {
			fetchCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			snap, err := state.source.LastPowerData(fetchCtx)
			return &telemetryFetchResult{snapshot: snap, err: err}, nil
		}).WithTimeout(timeout + time.Second).Recover(func(err error) telemetryFetchResult {
			return telemetryFetchResult{err: err}
		}).PipeTo(ctx.Self())

		// schedule next tick
		state.scheduler.RequestOnce(time.Duration(state.config.PollIntervalSeconds)*time.Second, ctx.Self(), telemetryTick{})
	case telemetryFetchResult:
		if msg.err != nil {
			state.logger.Warn("telemetry@default fetch failed", zap.Error(msg.err))
			return
		}
		state.snapshot = msg.snapshot
	default:
		state.logger.Debug("telemetry@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *TelemetryActor) timeout() time.Duration {
	return time.Duration(state.config.TimeoutMillis) * time.Millisecond
}

func (state *TelemetryActor) healthState() string {
	if state.snapshot == nil {
		return "no_data"
	}
	if time.Since(state.snapshot.FetchedAt) > time.Duration(state.config.MaxStaleSeconds)*time.Second {
		return "stale"
	}
	return "fresh"
}
