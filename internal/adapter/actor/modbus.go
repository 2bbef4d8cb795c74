package actor

import (
	"fmt"
	"time"

	"exportguard/internal/core/domain"
	"exportguard/internal/util/actorutil"
	"exportguard/pkg/goodwe"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

type ModbusActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	writer   goodwe.LimitWriter
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewModbusActor(writer goodwe.LimitWriter, logger *zap.Logger) *ModbusActor {
	act := &ModbusActor{
		writer:   writer,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MODBUS, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *ModbusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("modbus@starting started")
		if err := state.writer.Open(); err != nil {
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.writer.Close()
	default:
		state.logger.Debug("modbus@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("modbus@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MODBUS,
			Healthy: true,
			State:   "idle",
		})
	case domain.WritePowerLimitRequest:
		state.logger.Debug("modbus@default: WritePowerLimitRequest",
			zap.Bool("enabled", msg.Limit.Enabled), zap.Uint8("percent", msg.Limit.Percent))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		limit := msg.Limit
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.WritePowerLimitResponse, error) {
			if err := state.writer.WriteLimit(limit); err != nil {
				return nil, err
			}
			return &domain.WritePowerLimitResponse{}, nil
		}),
			mapTaskResult[domain.WritePowerLimitResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.WritePowerLimitResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(5 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.ReadPowerLimitRequest:
		state.logger.Debug("modbus@default: ReadPowerLimitRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.ReadPowerLimitResponse, error) {
			limit, err := state.writer.ReadLimit()
			if err != nil {
				return nil, err
			}
			return &domain.ReadPowerLimitResponse{Limit: limit}, nil
		}),
			mapTaskResult[domain.ReadPowerLimitResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.ReadPowerLimitResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(5 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case *actor.Stopping:
		state.writer.Close()
	default:
		state.logger.Debug("modbus@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ModbusActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("modbus@WaitingModbus backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.writer.Close()
	default:
		state.logger.Debug("modbus@WaitingModbus stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
