package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	adactor "exportguard/internal/adapter/actor"
	"exportguard/internal/alphaess"
	"exportguard/internal/amber"
	"exportguard/internal/config"
	"exportguard/internal/core/actor"
	"exportguard/internal/server"
	"exportguard/internal/util/actorutil"
	"exportguard/pkg/goodwe"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// init Modbus actor provider
	modbusProv, err := modbusActorProvider(cfg, logger)
	if err != nil {
		panic(err)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, modbusProv, mqttActorProvider(cfg, logger),
			priceActorProvider(cfg, logger), telemetryActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => EXPORTGUARD_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("EXPORTGUARD_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("exportguard")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if _, err := goodwe.ParseLimitMode(cfg.Inverter.LimitMode); err != nil {
		return nil, err
	}
	if cfg.Inverter.RatedPowerWatt == 0 {
		return nil, errors.New("config param inverter.rated_power_watt should be > 0")
	}
	if cfg.Control.TickIntervalMillis < 1000 {
		return nil, errors.New("config param control.tick_interval_millis should be >= 1000ms")
	}
	if cfg.Control.SmoothingFactor < 0 || cfg.Control.SmoothingFactor >= 1 {
		return nil, errors.New("config param control.smoothing_factor should be in [0, 1)")
	}
	if cfg.Control.ChargeSeekReduceGain < 1 {
		return nil, errors.New("config param control.charge_seek_reduce_gain should be >= 1")
	}
	if cfg.Telemetry.PollIntervalSeconds == 0 {
		return nil, errors.New("config param telemetry.poll_interval_seconds should be > 0")
	}

	return &cfg, nil
}

func modbusActorProvider(cfg *config.Config, logger *zap.Logger) (actor.ModbusActorProvider, error) {

	mode, err := goodwe.ParseLimitMode(cfg.Inverter.LimitMode)
	if err != nil {
		return nil, err
	}

	registers := goodwe.RegisterMap{
		ExportSwitch:     cfg.Inverter.ExportSwitchRegister,
		ExportPercent:    cfg.Inverter.ExportPercentRegister,
		ExportPercentX10: cfg.Inverter.ExportPercentX10Register,
		ActivePercent:    cfg.Inverter.ActivePercentRegister,
	}

	reconnect := goodwe.DefaultReconnectPolicy()
	if cfg.Inverter.ReconnectMinBackoffMillis > 0 {
		reconnect.MinBackoff = time.Duration(cfg.Inverter.ReconnectMinBackoffMillis) * time.Millisecond
	}
	if cfg.Inverter.ReconnectMaxBackoffMillis > 0 {
		reconnect.MaxBackoff = time.Duration(cfg.Inverter.ReconnectMaxBackoffMillis) * time.Millisecond
	}

	writer, err := goodwe.CreateLimitModbusWriter(cfg.Inverter.Host, cfg.Inverter.Port,
		uint8(cfg.Inverter.UnitId), time.Duration(cfg.Inverter.TimeoutMillis)*time.Millisecond,
		goodwe.LimiterConfig{
			Mode:          mode,
			Registers:     registers,
			AlwaysEnabled: cfg.Inverter.AlwaysEnabled,
			Reconnect:     reconnect,
		}, logger, nil)

	if err != nil {
		return nil, err
	}

	return func() *adactor.ModbusActor {
		return adactor.NewModbusActor(writer, logger)
	}, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(eventStream *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, eventStream, logger)
	}
}

func priceActorProvider(cfg *config.Config, logger *zap.Logger) actor.PriceActorProvider {
	return func() *adactor.PriceActor {
		source := amber.NewClient(cfg.Amber.BaseURL, cfg.Amber.SiteId, cfg.Amber.APIKey,
			int(cfg.Amber.ResolutionMinutes), time.Duration(cfg.Amber.TimeoutMillis)*time.Millisecond, logger)
		return adactor.NewPriceActor(cfg.Amber, source, logger)
	}
}

func telemetryActorProvider(cfg *config.Config, logger *zap.Logger) actor.TelemetryActorProvider {
	return func() *adactor.TelemetryActor {
		source := alphaess.NewClient(cfg.Telemetry.BaseURL, cfg.Telemetry.AppId, cfg.Telemetry.AppSecret,
			time.Duration(cfg.Telemetry.TimeoutMillis)*time.Millisecond, logger)

		selector := cfg.Telemetry.SysSN
		if selector == "" && cfg.Telemetry.UnitIndex > 0 {
			selector = strconv.FormatUint(uint64(cfg.Telemetry.UnitIndex), 10)
		}
		resolve := func(ctx context.Context) (string, error) {
			return source.ResolveSysSN(ctx, selector)
		}
		return adactor.NewTelemetryActor(cfg.Telemetry, source, resolve, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("port", 8080)

	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "exportguard")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")

	viper.SetDefault("amber.base_url", amber.DefaultBaseURL)
	viper.SetDefault("amber.resolution_minutes", 5)
	viper.SetDefault("amber.poll_slack_seconds", 10)
	viper.SetDefault("amber.retry_backoff_seconds", 20)
	viper.SetDefault("amber.max_stale_seconds", 900)
	viper.SetDefault("amber.timeout_millis", 10000)

	viper.SetDefault("telemetry.base_url", alphaess.DefaultBaseURL)
	viper.SetDefault("telemetry.poll_interval_seconds", 10)
	viper.SetDefault("telemetry.max_stale_seconds", 120)
	viper.SetDefault("telemetry.timeout_millis", 10000)
	viper.SetDefault("telemetry.battery_positive_is_charge", true)
	viper.SetDefault("telemetry.grid_positive_is_import", true)
	viper.SetDefault("telemetry.autodetect_grid_sign", true)
	viper.SetDefault("telemetry.battery_idle_threshold_watt", 25)

	viper.SetDefault("inverter.port", 502)
	viper.SetDefault("inverter.unit_id", 247)
	viper.SetDefault("inverter.limit_mode", "pct")
	viper.SetDefault("inverter.always_enabled", false)
	viper.SetDefault("inverter.timeout_millis", 2000)

	viper.SetDefault("control.tick_interval_millis", 10000)
	viper.SetDefault("control.cost_threshold_cents", 0)
	viper.SetDefault("control.full_soc_percent", 99)
	viper.SetDefault("control.export_allowance_watt", 50)
	viper.SetDefault("control.grid_feedback_gain", 1)
	viper.SetDefault("control.import_bias_watt", 50)
	viper.SetDefault("control.charge_seek_interval_millis", 30000)
	viper.SetDefault("control.charge_seek_step_watt", 100)
	viper.SetDefault("control.charge_seek_max_step_watt", 500)
	viper.SetDefault("control.charge_seek_reduce_gain", 2)
	viper.SetDefault("control.charge_seek_max_offset_watt", 5000)
	viper.SetDefault("control.desired_charge_cap_watt", 8000)
	viper.SetDefault("control.auto_charge_below_soc_percent", 0)
	viper.SetDefault("control.auto_charge_watt", 0)
	viper.SetDefault("control.auto_charge_max_watt", 500)
	viper.SetDefault("control.min_write_interval_millis", 5000)
	viper.SetDefault("control.smoothing_factor", 0)
	viper.SetDefault("control.min_percent_step", 1)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Amber.APIKey = "*redacted*"
	cfg.Telemetry.AppSecret = "*redacted*"
	slog.Info("Using", "config", cfg)
}
