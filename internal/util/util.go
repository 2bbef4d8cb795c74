package util

import (
	"exportguard/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Amber: config.AmberConfig{
			SiteId:              "site-test",
			APIKey:              "key-test",
			ResolutionMinutes:   5,
			PollSlackSeconds:    10,
			RetryBackoffSeconds: 1,
			MaxStaleSeconds:     900,
			TimeoutMillis:       2000,
		},
		Telemetry: config.TelemetryConfig{
			AppId:                   "app-test",
			AppSecret:               "secret-test",
			PollIntervalSeconds:     5,
			MaxStaleSeconds:         120,
			TimeoutMillis:           2000,
			BatteryPositiveIsCharge: true,
			GridPositiveIsImport:    true,
			BatteryIdleThresholdW:   25,
		},
		Inverter: config.InverterConfig{
			Host:           "-.-.-.-",
			Port:           502,
			UnitId:         247,
			RatedPowerWatt: 5000,
			LimitMode:      "percent",
			TimeoutMillis:  1000,
		},
		Control: config.ControlConfig{
			TickIntervalMillis:       10000,
			CostThresholdCents:       0,
			FullSOCPercent:           99,
			ExportAllowanceWatt:      50,
			GridFeedbackGain:         1,
			ImportBiasWatt:           50,
			ChargeSeekIntervalMillis: 30000,
			ChargeSeekStepWatt:       100,
			ChargeSeekMaxStepWatt:    500,
			ChargeSeekReduceGain:     2,
			ChargeSeekMaxOffsetWatt:  5000,
			DesiredChargeCapWatt:     8000,
			MinWriteIntervalMillis:   0,
			SmoothingFactor:          0,
			MinPercentStep:           1,
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "exportguard_test",
		},
		Port: 8080,
	}
}
