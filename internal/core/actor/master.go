package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "exportguard/internal/adapter/actor"
	"exportguard/internal/config"
	"exportguard/internal/core/domain"
	"exportguard/internal/core/port"
	"exportguard/internal/core/service"
	. "exportguard/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type ModbusActorProvider func() *adactor.ModbusActor

type PriceActorProvider func() *adactor.PriceActor

type TelemetryActorProvider func() *adactor.TelemetryActor

// MasterOfPuppetsActor owns the event stream and supervises every child:
// the transport actors (modbus, mqtt), the pollers (prices, telemetry) and
// the control loop.
type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	modbusActor        *actor.PID
	mqttActor          *actor.PID
	pricesActor        *actor.PID
	telemetryActor     *actor.PID
	controlActor       *actor.PID

	modbusActorProvider    ModbusActorProvider
	mqttActorProvider      MQTTActorProvider
	priceActorProvider     PriceActorProvider
	telemetryActorProvider TelemetryActorProvider

	logger *zap.Logger
}

type healthCheckResult struct {
	healthyById    map[string]bool
	checksReceived int
	respondTo      *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, modbusActorProvider ModbusActorProvider,
	mqttActorProvider MQTTActorProvider, priceActorProvider PriceActorProvider,
	telemetryActorProvider TelemetryActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:                 config,
		behavior:               actor.NewBehavior(),
		stash:                  &Stash{},
		logger:                 ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:            &eventstream.EventStream{},
		modbusActorProvider:    modbusActorProvider,
		mqttActorProvider:      mqttActorProvider,
		priceActorProvider:     priceActorProvider,
		telemetryActorProvider: telemetryActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		// start Modbus child
		modbusActorPID, err := state.startModbusActor(ctx)
		if err != nil {
			panic(err)
		}
		state.modbusActor = modbusActorPID

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start price poller child
		pricesActorPID, err := state.startPriceActor(ctx)
		if err != nil {
			panic(err)
		}
		state.pricesActor = pricesActorPID

		// start telemetry poller child
		telemetryActorPID, err := state.startTelemetryActor(ctx)
		if err != nil {
			panic(err)
		}
		state.telemetryActor = telemetryActorPID

		// start control loop child
		controlActorPID, err := state.startControlActor(ctx)
		if err != nil {
			panic(err)
		}
		state.controlActor = controlActorPID

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()

		children := map[string]*actor.PID{
			domain.ACTOR_ID_MODBUS:    state.modbusActor,
			domain.ACTOR_ID_MQTT:      state.mqttActor,
			domain.ACTOR_ID_PRICES:    state.pricesActor,
			domain.ACTOR_ID_TELEMETRY: state.telemetryActor,
			domain.ACTOR_ID_CONTROL:   state.controlActor,
		}
		for id, pid := range children {
			childId := id
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      childId,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.GetTickReportRequest:
		// forward to control actor, reply goes straight to the caller
		msg.ReplyToRef = (*domain.ActorRef)(ctx.Sender())
		ctx.Send(state.controlActor, msg)
	case adactor.ParsedCommand:
		// redirect parsedCommand to actor
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
			if err == nil && cmd != nil {
				switch pcmd := cmd.(type) {
				case domain.ControlRequest:
					ctx.Send(state.controlActor, pcmd)
				}
			}
		}
	case *actor.Terminated:
		// if some actor fails on boot, terminate
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_MODBUS) {
			state.logger.Error("master@default modbus error")
			panic(errors.New("modbus terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		state.currentHealthCheck.healthyById[msg.Id] = msg.Healthy
		if state.currentHealthCheck.allReceived() {

			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startModbusActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	modbusProps := actor.PropsFromProducer(func() actor.Actor {
		return state.modbusActorProvider()
	}, actor.WithSupervisor(supervisor))
	modbusActorPID, err := ctx.SpawnNamed(modbusProps, domain.ACTOR_ID_MODBUS)
	if err != nil {
		return nil, err
	}

	return modbusActorPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *MasterOfPuppetsActor) startPriceActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	priceProps := actor.PropsFromProducer(func() actor.Actor {
		return state.priceActorProvider()
	}, actor.WithSupervisor(supervisor))
	priceActorPID, err := ctx.SpawnNamed(priceProps, domain.ACTOR_ID_PRICES)
	if err != nil {
		return nil, err
	}

	return priceActorPID, nil
}

func (state *MasterOfPuppetsActor) startTelemetryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	telemetryProps := actor.PropsFromProducer(func() actor.Actor {
		return state.telemetryActorProvider()
	}, actor.WithSupervisor(supervisor))
	telemetryActorPID, err := ctx.SpawnNamed(telemetryProps, domain.ACTOR_ID_TELEMETRY)
	if err != nil {
		return nil, err
	}

	return telemetryActorPID, nil
}

func (state *MasterOfPuppetsActor) startControlActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	controlProps := actor.PropsFromProducer(func() actor.Actor {
		return NewControlActor(&state.config, BuildControlLogic(&state.config, state.logger),
			state.pricesActor, state.telemetryActor, state.modbusActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	controlActorPID, err := ctx.SpawnNamed(controlProps, domain.ACTOR_ID_CONTROL)
	if err != nil {
		return nil, err
	}

	return controlActorPID, nil
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.modbusActor, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

// BuildControlLogic assembles the decision pipeline from config.
func BuildControlLogic(cfg *config.Config, logger *zap.Logger) port.ControlLogic {
	return &service.ExportControlLogic{
		Classifier: &service.PriceCostClassifier{
			ThresholdCents: cfg.Control.CostThresholdCents,
			MaxStale:       time.Duration(cfg.Amber.MaxStaleSeconds) * time.Second,
			Logger:         logger,
		},
		Normalizer: &service.SignNormalizer{
			BatteryPositiveIsCharge:  cfg.Telemetry.BatteryPositiveIsCharge,
			GridPositiveIsImport:     cfg.Telemetry.GridPositiveIsImport,
			Autodetect:               cfg.Telemetry.AutodetectGridSign,
			BatteryIdleThresholdWatt: float64(cfg.Telemetry.BatteryIdleThresholdW),
			Logger:                   logger,
		},
		Estimator: &service.ChargeSeekEstimator{
			Interval:             time.Duration(cfg.Control.ChargeSeekIntervalMillis) * time.Millisecond,
			StepWatt:             float64(cfg.Control.ChargeSeekStepWatt),
			MaxStepWatt:          float64(cfg.Control.ChargeSeekMaxStepWatt),
			ReduceGain:           cfg.Control.ChargeSeekReduceGain,
			MaxOffsetWatt:        float64(cfg.Control.ChargeSeekMaxOffsetWatt),
			DesiredChargeCapWatt: float64(cfg.Control.DesiredChargeCapWatt),
			Logger:               logger,
		},
		Planner: &service.TargetPowerPlanner{
			RatedPowerWatt:            float64(cfg.Inverter.RatedPowerWatt),
			FullSOCPercent:            cfg.Control.FullSOCPercent,
			ExportAllowanceWatt:       float64(cfg.Control.ExportAllowanceWatt),
			GridFeedbackGain:          cfg.Control.GridFeedbackGain,
			ImportBiasWatt:            float64(cfg.Control.ImportBiasWatt),
			AutoChargeBelowSOCPercent: cfg.Control.AutoChargeBelowSOCPercent,
			AutoChargeWatt:            float64(cfg.Control.AutoChargeWatt),
			AutoChargeMaxWatt:         float64(cfg.Control.AutoChargeMaxWatt),
			Logger:                    logger,
		},
		Smoother: &service.OutputSmoother{
			RatedPowerWatt:   float64(cfg.Inverter.RatedPowerWatt),
			SmoothingFactor:  cfg.Control.SmoothingFactor,
			MinPercentStep:   cfg.Control.MinPercentStep,
			MinWriteInterval: time.Duration(cfg.Control.MinWriteIntervalMillis) * time.Millisecond,
			Logger:           logger,
		},
		TelemetryMaxStale: time.Duration(cfg.Telemetry.MaxStaleSeconds) * time.Second,
		Logger:            logger,
	}
}

func (state *healthCheckResult) reset() {
	state.healthyById = map[string]bool{}
	state.checksReceived = 0
	state.respondTo = nil
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == 5
}

func (state *healthCheckResult) allHealthy() bool {
	if len(state.healthyById) < 5 {
		return false
	}
	for _, healthy := range state.healthyById {
		if !healthy {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
