package service

import (
	"math"

	"exportguard/internal/core/domain"

	"go.uber.org/zap"
)

const (
	// autodetect window and the number of consecutive better fits required
	// before the grid sign is flipped for control purposes
	signDetectWindow  = 12
	signDetectMinFits = 5
	// a flipped fit must beat the configured one by this many watts to count
	signDetectMarginWatt = 25.0
)

// NormalizeSigns maps raw battery/grid readings onto the canonical
// convention: battery +charge/-discharge, grid +import/-export.
func NormalizeSigns(batteryRaw, gridRaw float64, batteryPositiveIsCharge, gridPositiveIsImport bool) (battery, grid float64) {
	battery = batteryRaw
	if !batteryPositiveIsCharge {
		battery = -battery
	}
	grid = gridRaw
	if !gridPositiveIsImport {
		grid = -grid
	}
	return battery, grid
}

// DenormalizeSigns is the inverse mapping back to provider signs.
func DenormalizeSigns(battery, grid float64, batteryPositiveIsCharge, gridPositiveIsImport bool) (batteryRaw, gridRaw float64) {
	batteryRaw = battery
	if !batteryPositiveIsCharge {
		batteryRaw = -batteryRaw
	}
	gridRaw = grid
	if !gridPositiveIsImport {
		gridRaw = -gridRaw
	}
	return batteryRaw, gridRaw
}

// SignNormalizer canonicalizes raw telemetry signs. With Autodetect enabled
// it keeps a short window of samples and checks the household power balance
// (load = pv + grid import - battery charge) for the configured grid sign
// against the flipped one; a consistently better flipped fit flips the grid
// sign for control only. Raw values in the snapshot are never rewritten.
type SignNormalizer struct {
	BatteryPositiveIsCharge  bool
	GridPositiveIsImport     bool
	Autodetect               bool
	BatteryIdleThresholdWatt float64
	Logger                   *zap.Logger

	history  []signSample
	flipGrid bool
}

type signSample struct {
	flippedBetter bool
}

func (n *SignNormalizer) Normalize(raw *domain.TelemetrySnapshot) *domain.ControlTelemetry {
	if raw == nil || raw.LoadWatt == nil {
		return nil
	}

	out := &domain.ControlTelemetry{
		SOCPercent:   raw.SOCPercent,
		LoadWatt:     *raw.LoadWatt,
		PVWatt:       raw.PVWatt,
		BatteryState: domain.BatteryStateUnknown,
		FetchedAt:    raw.FetchedAt,
	}

	if raw.BatteryWattRaw != nil {
		battery := *raw.BatteryWattRaw
		if !n.BatteryPositiveIsCharge {
			battery = -battery
		}
		out.BatteryWatt = &battery
		switch {
		case math.Abs(battery) < n.BatteryIdleThresholdWatt:
			out.BatteryState = domain.BatteryStateIdle
		case battery > 0:
			out.BatteryState = domain.BatteryStateCharging
			out.ChargeWatt = math.Abs(battery)
		default:
			out.BatteryState = domain.BatteryStateDischarging
			out.DischargeWatt = math.Abs(battery)
		}
	}

	if raw.GridWattRaw != nil {
		grid := *raw.GridWattRaw
		if !n.GridPositiveIsImport {
			grid = -grid
		}
		// GridWatt stays on the configured convention for display; the
		// autodetected flip only feeds the import/export control fields.
		out.GridWatt = &grid
		control := grid
		if n.Autodetect {
			n.observeBalance(out, grid)
			if n.flipGrid {
				control = -grid
				out.GridSignAuto = true
			}
		}
		if control > 0 {
			out.GridImportWatt = control
		} else if control < 0 {
			out.GridExportWatt = math.Abs(control)
		}
	}

	return out
}

// observeBalance scores the configured grid sign against the flipped one on
// the power balance residual. Needs pv and battery; otherwise the sample is
// skipped and the current orientation is kept.
func (n *SignNormalizer) observeBalance(tel *domain.ControlTelemetry, grid float64) {
	if tel.PVWatt == nil || tel.BatteryWatt == nil {
		return
	}
	residual := func(g float64) float64 {
		return math.Abs(tel.LoadWatt - (*tel.PVWatt + g - *tel.BatteryWatt))
	}
	n.history = append(n.history, signSample{
		flippedBetter: residual(-grid)+signDetectMarginWatt < residual(grid),
	})
	if len(n.history) > signDetectWindow {
		n.history = n.history[len(n.history)-signDetectWindow:]
	}

	fits := 0
	for _, s := range n.history {
		if s.flippedBetter {
			fits++
		}
	}
	if !n.flipGrid && fits >= signDetectMinFits && fits == len(n.history) {
		n.flipGrid = true
		n.history = nil
		n.Logger.Warn("grid sign convention looks inverted, flipping for control",
			zap.Bool("configured_positive_is_import", n.GridPositiveIsImport))
	}
}
