package service

import (
	"fmt"
	"time"

	"exportguard/internal/core/domain"
	"exportguard/internal/core/port"

	"go.uber.org/zap"
)

// ExportControlLogic is the pure decision pipeline behind the control actor.
// One Tick classifies the current feed-in price, normalizes telemetry signs,
// updates the charge-seek estimate, plans a target power and turns it into an
// optional register write. It never performs IO itself.
type ExportControlLogic struct {
	Classifier        *PriceCostClassifier
	Normalizer        *SignNormalizer
	Estimator         *ChargeSeekEstimator
	Planner           *TargetPowerPlanner
	Smoother          *OutputSmoother
	TelemetryMaxStale time.Duration
	Logger            *zap.Logger
}

var _ port.ControlLogic = (*ExportControlLogic)(nil)

func (l *ExportControlLogic) Tick(prev domain.ControllerState,
	price *domain.PriceSnapshot, telemetry *domain.TelemetrySnapshot,
	forceZero bool, now time.Time) (domain.ControllerState, domain.TickReport) {

	state := prev
	report := domain.TickReport{
		Time:  now,
		Price: price,
	}

	decision := l.Classifier.Classify(price, now)
	report.Decision = decision

	control := l.Normalizer.Normalize(l.freshTelemetry(telemetry, now))
	report.Telemetry = telemetry
	report.Control = control

	if decision.Costly && control != nil {
		full := control.SOCPercent != nil && *control.SOCPercent >= l.Planner.FullSOCPercent
		charging := control.BatteryState == domain.BatteryStateCharging
		state.ChargeSeek = l.Estimator.Update(prev.ChargeSeek, full, charging,
			control.GridExportWatt, l.Planner.ExportAllowanceWatt, now)
	}
	report.OffsetWatt = state.ChargeSeek.OffsetWatt

	var plan domain.TargetPlan
	if forceZero {
		plan = domain.TargetPlan{
			TargetWatt: 0,
			Mode:       domain.PlanModeForcedZero,
			Forced:     true,
			Reason:     "forced by switch",
		}
		report.ForceZero = true
	} else {
		desired := 0.0
		if control != nil {
			desired = l.Estimator.DesiredCharge(state.ChargeSeek, control.ChargeWatt)
		}
		plan = l.Planner.Plan(l.prevTargetWatt(prev), decision, control, desired)
	}
	report.Plan = plan

	costly := decision.Costly || forceZero
	pct, cmd, skip := l.Smoother.Step(prev.LastWritten, prev.LastWriteAt, plan, costly, now)
	report.TargetPercent = pct
	report.Write = cmd
	report.SkipReason = skip

	if cmd != nil {
		l.Logger.Info("limit write planned",
			zap.Bool("enabled", cmd.Enabled),
			zap.Uint8("percent", cmd.Percent),
			zap.Bool("forced", cmd.Forced),
			zap.String("mode", string(plan.Mode)))
	} else {
		l.Logger.Debug("no limit write",
			zap.Uint8("percent", pct),
			zap.String("skip", skip),
			zap.String("mode", string(plan.Mode)))
	}

	return state, report
}

// freshTelemetry drops a snapshot that is too old to act on.
func (l *ExportControlLogic) freshTelemetry(snap *domain.TelemetrySnapshot, now time.Time) *domain.TelemetrySnapshot {
	if snap == nil {
		return nil
	}
	age := now.Sub(snap.FetchedAt)
	if age > l.TelemetryMaxStale {
		l.Logger.Warn("telemetry too old", zap.Duration("age", age))
		return nil
	}
	return snap
}

// prevTargetWatt reconstructs the last commanded power from the last written
// percentage. Before the first write the inverter is assumed unconstrained.
func (l *ExportControlLogic) prevTargetWatt(prev domain.ControllerState) float64 {
	if prev.LastWritten == nil {
		return l.Planner.RatedPowerWatt
	}
	return float64(prev.LastWritten.Percent) / 100 * l.Planner.RatedPowerWatt
}

// Describe returns a short human readable summary for logs and status output.
func Describe(report domain.TickReport) string {
	write := "skip"
	if report.Write != nil {
		write = fmt.Sprintf("write %d%% enabled=%t", report.Write.Percent, report.Write.Enabled)
	}
	return fmt.Sprintf("costly=%t mode=%s target=%.0fW %s",
		report.Decision.Costly, report.Plan.Mode, report.Plan.TargetWatt, write)
}
