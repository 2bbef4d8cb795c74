package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel  zapcore.Level
	Amber     AmberConfig     `mapstructure:"amber"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Inverter  InverterConfig  `mapstructure:"inverter"`
	Control   ControlConfig   `mapstructure:"control"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Port      uint            `mapstructure:"port"`
	HttpLog   bool            `mapstructure:"http_log"`
}

// AmberConfig configures the price source (Amber Electric REST API).
type AmberConfig struct {
	SiteId              string `mapstructure:"site_id"`
	APIKey              string `mapstructure:"api_key"`
	BaseURL             string `mapstructure:"base_url"`
	ResolutionMinutes   uint   `mapstructure:"resolution_minutes"`
	PollSlackSeconds    uint32 `mapstructure:"poll_slack_seconds"`
	RetryBackoffSeconds uint32 `mapstructure:"retry_backoff_seconds"`
	MaxStaleSeconds     uint32 `mapstructure:"max_stale_seconds"`
	TimeoutMillis       uint32 `mapstructure:"timeout_millis"`
}

// TelemetryConfig configures the battery telemetry source (AlphaESS OpenAPI)
// and how its sign-ambiguous readings are interpreted.
type TelemetryConfig struct {
	AppId                   string `mapstructure:"app_id"`
	AppSecret               string `mapstructure:"app_secret"`
	SysSN                   string `mapstructure:"sys_sn"`
	UnitIndex               uint   `mapstructure:"unit_index"`
	BaseURL                 string `mapstructure:"base_url"`
	PollIntervalSeconds     uint32 `mapstructure:"poll_interval_seconds"`
	MaxStaleSeconds         uint32 `mapstructure:"max_stale_seconds"`
	TimeoutMillis           uint32 `mapstructure:"timeout_millis"`
	BatteryPositiveIsCharge bool   `mapstructure:"battery_positive_is_charge"`
	GridPositiveIsImport    bool   `mapstructure:"grid_positive_is_import"`
	AutodetectGridSign      bool   `mapstructure:"autodetect_grid_sign"`
	BatteryIdleThresholdW   uint32 `mapstructure:"battery_idle_threshold_watt"`
}

type InverterConfig struct {
	Host                      string `mapstructure:"host"`
	Port                      uint   `mapstructure:"port"`
	UnitId                    uint   `mapstructure:"unit_id"`
	RatedPowerWatt            uint32 `mapstructure:"rated_power_watt"`
	LimitMode                 string `mapstructure:"limit_mode"`
	ExportSwitchRegister      uint16 `mapstructure:"export_switch_register"`
	ExportPercentRegister     uint16 `mapstructure:"export_percent_register"`
	ExportPercentX10Register  uint16 `mapstructure:"export_percent_x10_register"`
	ActivePercentRegister     uint16 `mapstructure:"active_percent_register"`
	AlwaysEnabled             bool   `mapstructure:"always_enabled"`
	TimeoutMillis             uint32 `mapstructure:"timeout_millis"`
	ReconnectMinBackoffMillis uint32 `mapstructure:"reconnect_min_backoff_millis"`
	ReconnectMaxBackoffMillis uint32 `mapstructure:"reconnect_max_backoff_millis"`
}

type ControlConfig struct {
	TickIntervalMillis uint32 `mapstructure:"tick_interval_millis"`

	// export cost classification
	CostThresholdCents float64 `mapstructure:"cost_threshold_cents"`

	// target power planning
	FullSOCPercent      float64 `mapstructure:"full_soc_percent"`
	ExportAllowanceWatt uint32  `mapstructure:"export_allowance_watt"`
	GridFeedbackGain    float64 `mapstructure:"grid_feedback_gain"`
	ImportBiasWatt      uint32  `mapstructure:"import_bias_watt"`

	// charge-seek estimator
	ChargeSeekIntervalMillis uint32  `mapstructure:"charge_seek_interval_millis"`
	ChargeSeekStepWatt       uint32  `mapstructure:"charge_seek_step_watt"`
	ChargeSeekMaxStepWatt    uint32  `mapstructure:"charge_seek_max_step_watt"`
	ChargeSeekReduceGain     float64 `mapstructure:"charge_seek_reduce_gain"`
	ChargeSeekMaxOffsetWatt  uint32  `mapstructure:"charge_seek_max_offset_watt"`
	DesiredChargeCapWatt     uint32  `mapstructure:"desired_charge_cap_watt"`

	// auto-charge kick-start
	AutoChargeBelowSOCPercent float64 `mapstructure:"auto_charge_below_soc_percent"`
	AutoChargeWatt            uint32  `mapstructure:"auto_charge_watt"`
	AutoChargeMaxWatt         uint32  `mapstructure:"auto_charge_max_watt"`

	// output smoothing / write discipline
	MinWriteIntervalMillis uint32  `mapstructure:"min_write_interval_millis"`
	SmoothingFactor        float64 `mapstructure:"smoothing_factor"`
	MinPercentStep         uint8   `mapstructure:"min_percent_step"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
