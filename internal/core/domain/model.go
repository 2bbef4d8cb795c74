package domain

import (
	"time"
)

// PriceSnapshot is one fetch from the price provider. Prices are cents/kWh.
// FeedInPriceCents is the compensation credited for export; a negative value
// means exporting costs money outright.
type PriceSnapshot struct {
	ImportPriceCents *float64
	FeedInPriceCents *float64
	IntervalStart    time.Time
	IntervalEnd      time.Time
	FetchedAt        time.Time
}

// TelemetrySnapshot carries the raw, sign-ambiguous provider readings.
// Missing fields stay nil; they are never guessed.
type TelemetrySnapshot struct {
	SOCPercent     *float64
	LoadWatt       *float64
	GridWattRaw    *float64
	BatteryWattRaw *float64
	PVWatt         *float64
	FetchedAt      time.Time
}

type BatteryState string

const (
	BatteryStateUnknown     BatteryState = "unknown"
	BatteryStateIdle        BatteryState = "idle"
	BatteryStateCharging    BatteryState = "charging"
	BatteryStateDischarging BatteryState = "discharging"
)

// ControlTelemetry is a TelemetrySnapshot after sign normalization.
// GridWatt is +import/-export under the configured convention and is the
// value shown on sensors; GridImportWatt/GridExportWatt carry any
// autodetected sign flip, so planning reads those. BatteryWatt is
// +charge/-discharge.
type ControlTelemetry struct {
	SOCPercent     *float64
	LoadWatt       float64
	GridWatt       *float64
	BatteryWatt    *float64
	PVWatt         *float64
	BatteryState   BatteryState
	GridImportWatt float64
	GridExportWatt float64
	ChargeWatt     float64
	DischargeWatt  float64
	GridSignAuto   bool
	FetchedAt      time.Time
}

type DecisionReason string

const (
	// fresh snapshot, classified by price comparison
	DecisionReasonPrice DecisionReason = "price"
	// snapshot older than the staleness bound
	DecisionReasonStale DecisionReason = "stale"
	// no snapshot or no feed-in price at all
	DecisionReasonNone DecisionReason = "none"
)

// ExportDecision is the classifier output: does export cost money right now.
type ExportDecision struct {
	Costly           bool
	Reason           DecisionReason
	FeedInPriceCents *float64
	AgeSeconds       *float64
}

// Fresh reports whether the decision was made on live price data.
func (d ExportDecision) Fresh() bool {
	return d.Reason == DecisionReasonPrice
}

type PlanMode string

const (
	PlanModeExportAllowed  PlanMode = "export_allowed"
	PlanModeLimitBelowFull PlanMode = "limit_below_full"
	PlanModeLimitFull      PlanMode = "limit_full"
	PlanModeForcedZero     PlanMode = "forced_zero"
)

// TargetPlan is the planner output for one tick.
type TargetPlan struct {
	TargetWatt        float64
	Mode              PlanMode
	Forced            bool
	DesiredChargeWatt float64
	AutoChargeWatt    float64
	Reason            string
}

// WriteState is the last register group state the controller believes is
// applied on the inverter.
type WriteState struct {
	Enabled bool
	Percent uint8
}

// WriteCommand is a register group write the smoother decided to emit.
// Forced commands bypass the min-step and min-interval rules.
type WriteCommand struct {
	Enabled bool
	Percent uint8
	Forced  bool
}

type ChargeSeekState struct {
	OffsetWatt float64
	LastUpdate time.Time
}

// ControllerState is owned by the control loop and mutated only inside a
// tick. It initializes at process start and is never shared.
type ControllerState struct {
	ChargeSeek  ChargeSeekState
	LastWritten *WriteState
	LastWriteAt time.Time
}

// MarkWritten records a confirmed register write. Called only after the
// transport reported success, so a failed write is retried next tick.
func (s ControllerState) MarkWritten(cmd WriteCommand, now time.Time) ControllerState {
	s.LastWritten = &WriteState{Enabled: cmd.Enabled, Percent: cmd.Percent}
	s.LastWriteAt = now
	return s
}

// TickReport is the immutable per-tick decision record handed to the event
// sink. Telemetry keeps the raw provider signs; Control carries the
// normalized values the decision was made on.
type TickReport struct {
	Time          time.Time          `json:"time"`
	Decision      ExportDecision     `json:"decision"`
	Price         *PriceSnapshot     `json:"price,omitempty"`
	Telemetry     *TelemetrySnapshot `json:"telemetry,omitempty"`
	Control       *ControlTelemetry  `json:"control,omitempty"`
	Plan          TargetPlan         `json:"plan"`
	TargetPercent uint8              `json:"target_percent"`
	Write         *WriteCommand      `json:"write,omitempty"`
	SkipReason    string             `json:"skip_reason,omitempty"`
	WriteError    string             `json:"write_error,omitempty"`
	OffsetWatt    float64            `json:"charge_seek_offset_watt"`
	ForceZero     bool               `json:"force_zero_override"`
}
