package service

import (
	"fmt"
	"math"

	"exportguard/internal/core/domain"

	"go.uber.org/zap"
)

// TargetPowerPlanner computes the desired inverter output for one tick.
//
// Regimes, selected by the export decision and battery state:
//   - export allowed: full rated output, telemetry ignored;
//   - costly but telemetry unavailable: forced zero output (fail-safe);
//   - costly, battery below full: rated output until export exceeds the
//     allowance, then a proportional feedback reduction from the previous
//     target;
//   - costly, battery full or SOC unknown: cover load plus desired charge,
//     trimmed by grid feedback. The import bias is added only when the
//     battery actually reports full, so a battery with unknown SOC is not
//     pushed into discharge.
type TargetPowerPlanner struct {
	RatedPowerWatt            float64
	FullSOCPercent            float64
	ExportAllowanceWatt       float64
	GridFeedbackGain          float64
	ImportBiasWatt            float64
	AutoChargeBelowSOCPercent float64
	AutoChargeWatt            float64
	AutoChargeMaxWatt         float64
	Logger                    *zap.Logger
}

func (p *TargetPowerPlanner) Plan(prevTargetWatt float64, decision domain.ExportDecision,
	tel *domain.ControlTelemetry, desiredChargeWatt float64) domain.TargetPlan {

	if !decision.Costly {
		return domain.TargetPlan{
			TargetWatt: p.RatedPowerWatt,
			Mode:       domain.PlanModeExportAllowed,
			Reason:     "export_allowed",
		}
	}

	if tel == nil {
		// no usable telemetry while export costs money: zero output,
		// overriding everything else
		return domain.TargetPlan{
			TargetWatt: 0,
			Mode:       domain.PlanModeForcedZero,
			Forced:     true,
			Reason:     "telemetry_unavailable",
		}
	}

	full := tel.SOCPercent != nil && *tel.SOCPercent >= p.FullSOCPercent
	var plan domain.TargetPlan

	if tel.SOCPercent != nil && !full {
		plan = p.planBelowFull(prevTargetWatt, tel)
	} else {
		plan = p.planFullOrUnknown(tel, desiredChargeWatt, full)
	}

	// Auto-charge kick-start: a low battery sitting idle never starts
	// charging when the target only covers the present load. Leave extra PV
	// headroom until charging is actually observed.
	if tel.SOCPercent != nil && p.AutoChargeWatt > 0 && p.AutoChargeBelowSOCPercent > 0 &&
		*tel.SOCPercent < p.AutoChargeBelowSOCPercent &&
		tel.BatteryState != domain.BatteryStateCharging {
		add := math.Min(p.AutoChargeWatt, p.AutoChargeMaxWatt)
		plan.AutoChargeWatt = add
		plan.TargetWatt += add
		plan.Reason = fmt.Sprintf("%s auto_charge=+%.0fW", plan.Reason, add)
	}

	plan.TargetWatt = p.clampWatt(plan.TargetWatt)
	return plan
}

func (p *TargetPowerPlanner) planBelowFull(prevTargetWatt float64, tel *domain.ControlTelemetry) domain.TargetPlan {
	allowance := math.Max(0, p.ExportAllowanceWatt)

	if tel.GridExportWatt <= allowance {
		return domain.TargetPlan{
			TargetWatt: p.RatedPowerWatt,
			Mode:       domain.PlanModeLimitBelowFull,
			Reason:     fmt.Sprintf("soc<%.1f%% export<=%.0fW", p.FullSOCPercent, allowance),
		}
	}

	// feedback correction, not a hard cutoff: back off proportionally to the
	// excess export, and allow more output again while importing
	over := tel.GridExportWatt - allowance
	target := prevTargetWatt - p.GridFeedbackGain*over
	if tel.GridImportWatt > 0 {
		target += p.GridFeedbackGain * tel.GridImportWatt
	}

	return domain.TargetPlan{
		TargetWatt: p.clampWatt(target),
		Mode:       domain.PlanModeLimitBelowFull,
		Reason:     fmt.Sprintf("soc<%.1f%% export=%.0fW>allow%.0fW", p.FullSOCPercent, tel.GridExportWatt, allowance),
	}
}

func (p *TargetPowerPlanner) planFullOrUnknown(tel *domain.ControlTelemetry, desiredChargeWatt float64, full bool) domain.TargetPlan {
	target := math.Max(0, tel.LoadWatt+desiredChargeWatt)
	if full {
		target += p.ImportBiasWatt
	}

	if tel.GridWatt != nil {
		// importing: raise output; exporting: back it off
		target += p.GridFeedbackGain * tel.GridImportWatt
		target -= p.GridFeedbackGain * tel.GridExportWatt
	}

	return domain.TargetPlan{
		TargetWatt:        p.clampWatt(target),
		Mode:              domain.PlanModeLimitFull,
		DesiredChargeWatt: desiredChargeWatt,
		Reason:            fmt.Sprintf("load=%.0fW charge=%.0fW", tel.LoadWatt, desiredChargeWatt),
	}
}

// clampWatt bounds a computed target to [0, rated]. An engaged clamp means
// the feedback arithmetic ran out of range, so it gets logged.
func (p *TargetPowerPlanner) clampWatt(w float64) float64 {
	if w < 0 || w > p.RatedPowerWatt {
		p.Logger.Warn("computed target power out of range, clamping",
			zap.Float64("target_watt", w),
			zap.Float64("rated_watt", p.RatedPowerWatt))
	}
	return math.Max(0, math.Min(p.RatedPowerWatt, w))
}
