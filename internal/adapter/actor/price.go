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
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

// PriceActor polls the price provider and caches the latest snapshot.
//
// Polls are aligned to the market interval boundary plus a small slack, so a
// fresh price is fetched right after the provider publishes it instead of
// drifting across the interval. Failed polls retry on a fixed backoff until
// the next boundary. Consumers always get the cached snapshot instantly;
// judging its staleness is their problem.
type PriceActor struct {
	behavior  actor.Behavior
	stash     *actorutil.Stash
	scheduler *scheduler.TimerScheduler
	cron      quartz.Scheduler

	source   port.PriceSource
	config   config.AmberConfig
	snapshot *domain.PriceSnapshot

	logger *zap.Logger
}

type priceTick struct {
}

type priceFetchResult struct {
	snapshot *domain.PriceSnapshot
	err      error
}

func NewPriceActor(cfg config.AmberConfig, source port.PriceSource, logger *zap.Logger) *PriceActor {
	act := &PriceActor{
		config:   cfg,
		source:   source,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_PRICES, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *PriceActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PriceActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("prices@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)

		if err := state.startCron(ctx); err != nil {
			panic(err)
		}

		// first fetch right away, the cron only covers interval boundaries
		ctx.Send(ctx.Self(), priceTick{})
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.stopCron()
	default:
		state.logger.Debug("prices@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PriceActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("prices@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_PRICES,
			Healthy: true,
			State:   state.healthState(),
		})
	case domain.GetPriceSnapshotRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.GetPriceSnapshotResponse{
			Snapshot: state.snapshot,
		})
	case priceTick:
		state.logger.Debug("prices@default tick")
		timeout := time.Duration(state.config.TimeoutMillis) * time.Millisecond
		actorutil.NewBackgroundTask(ctx, func() (*priceFetchResult, error) {
			fetchCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			snap, err := state.source.CurrentPrices(fetchCtx)
			return &priceFetchResult{snapshot: snap, err: err}, nil
		}).WithTimeout(timeout + time.Second).Recover(func(err error) priceFetchResult {
			return priceFetchResult{err: err}
		}).PipeTo(ctx.Self())
	case priceFetchResult:
		if msg.err != nil {
			state.logger.Warn("prices@default fetch failed", zap.Error(msg.err))
			backoff := time.Duration(state.config.RetryBackoffSeconds) * time.Second
			if backoff > 0 {
				state.scheduler.RequestOnce(backoff, ctx.Self(), priceTick{})
			}
			return
		}
		state.snapshot = msg.snapshot
		state.logger.Debug("prices@default snapshot updated",
			zap.Float64p("feed_in_cents", msg.snapshot.FeedInPriceCents))
	case *actor.Stopping:
		state.stopCron()
	default:
		state.logger.Debug("prices@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// startCron schedules a poll at every interval boundary plus the configured
// slack, e.g. resolution 5 and slack 10 fires at 00:10, 05:10, 10:10...
func (state *PriceActor) startCron(ctx actor.Context) error {
	resolution := state.config.ResolutionMinutes
	if resolution <= 0 {
		resolution = 5
	}
	slack := state.config.PollSlackSeconds
	if slack > 59 {
		slack = 0
	}

	trigger, err := quartz.NewCronTrigger(fmt.Sprintf("%d */%d * * * *", slack, resolution))
	if err != nil {
		return err
	}

	system := ctx.ActorSystem()
	self := ctx.Self()
	fnJob := job.NewFunctionJob(func(context.Context) (bool, error) {
		system.Root.Send(self, priceTick{})
		return true, nil
	})

	state.cron = quartz.NewStdScheduler()
	state.cron.Start(context.Background())
	return state.cron.ScheduleJob(quartz.NewJobDetail(fnJob, quartz.NewJobKey("price_poll")), trigger)
}

func (state *PriceActor) stopCron() {
	if state.cron != nil {
		state.cron.Stop()
	}
}

func (state *PriceActor) healthState() string {
	if state.snapshot == nil {
		return "no_data"
	}
	if time.Since(state.snapshot.FetchedAt) > time.Duration(state.config.MaxStaleSeconds)*time.Second {
		return "stale"
	}
	return "fresh"
}
