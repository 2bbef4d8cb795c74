package actor

import (
	"errors"
	"fmt"
	"time"

	"exportguard/internal/config"
	"exportguard/internal/core/domain"
	"exportguard/internal/core/events"
	"exportguard/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// HADiscoveryActor publishes the Home Assistant discovery documents once the
// MQTT and modbus actors report healthy, then goes dormant.
type HADiscoveryActor struct {
	config             *config.Config
	behavior           actor.Behavior
	stash              *actorutil.Stash
	modbusActor        *actor.PID
	mqttActor          *actor.PID
	modbusActorHealthy bool
	mqttActorHealthy   bool
	healthyRecv        int

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, modbusActor *actor.PID, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:      config,
		modbusActor: modbusActor,
		mqttActor:   mqttActor,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// Check Modbus and MQTT actor healthy
		state.healthyRecv = 0
		state.modbusActorHealthy = false
		state.mqttActorHealthy = false
		// Modbus Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MODBUS,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_MODBUS:
				state.modbusActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {
			if !state.modbusActorHealthy || !state.mqttActorHealthy {
				panic(errors.New("MQTT Actor or Modbus Actor are not healthy"))
			}
			state.publishDiscovery(ctx)
			state.behavior.Become(state.Done)
		}
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) publishDiscovery(ctx actor.Context) {
	var sensors []domain.GenericSensor
	var switches []domain.GenericSwitch

	bridgeDevice := events.BridgeDevice(state.config.MQTT.BaseTopic)
	sensors = append(sensors, events.BridgeSensors(bridgeDevice)...)
	sensors = append(sensors, events.TelemetrySensors(events.IdDevice(bridgeDevice))...)

	inverterDevice := events.InverterDevice(state.config.Inverter.Host, uint8(state.config.Inverter.UnitId))
	inverterDevice.ViaDevice = bridgeDevice.Id
	controllerSensors := events.ControllerSensors(inverterDevice)
	for i := range controllerSensors {
		if i > 0 {
			controllerSensors[i].Device = events.IdDevice(inverterDevice)
		}
		sensors = append(sensors, controllerSensors[i])
	}
	switches = append(switches, events.ControlSwitches(events.IdDevice(inverterDevice))...)

	ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
		Sensors:  sensors,
		Switches: switches,
	})
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {

}
