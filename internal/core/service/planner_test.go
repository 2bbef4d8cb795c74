package service

import (
	"testing"

	"exportguard/internal/core/domain"

	"github.com/stretchr/testify/require"
)

func newPlanner() *TargetPowerPlanner {
	return &TargetPowerPlanner{
		RatedPowerWatt:      5000,
		FullSOCPercent:      99,
		ExportAllowanceWatt: 50,
		GridFeedbackGain:    1,
		ImportBiasWatt:      50,
		Logger:              testLogger,
	}
}

func costlyDecision() domain.ExportDecision {
	return domain.ExportDecision{Costly: true, Reason: domain.DecisionReasonPrice, FeedInPriceCents: f64(-2)}
}

func ctel(soc *float64, load float64, grid, battery *float64) *domain.ControlTelemetry {
	tel := &domain.ControlTelemetry{
		SOCPercent:   soc,
		LoadWatt:     load,
		GridWatt:     grid,
		BatteryWatt:  battery,
		BatteryState: domain.BatteryStateUnknown,
		FetchedAt:    t0,
	}
	if grid != nil {
		if *grid > 0 {
			tel.GridImportWatt = *grid
		} else {
			tel.GridExportWatt = -*grid
		}
	}
	if battery != nil {
		switch {
		case *battery > 25:
			tel.BatteryState = domain.BatteryStateCharging
			tel.ChargeWatt = *battery
		case *battery < -25:
			tel.BatteryState = domain.BatteryStateDischarging
			tel.DischargeWatt = -*battery
		default:
			tel.BatteryState = domain.BatteryStateIdle
		}
	}
	return tel
}

func TestExportAllowedRunsAtRatedPower(t *testing.T) {
	require := require.New(t)

	p := newPlanner()
	plan := p.Plan(p.RatedPowerWatt, domain.ExportDecision{Costly: false, Reason: domain.DecisionReasonPrice}, nil, 0)
	require.Equal(domain.PlanModeExportAllowed, plan.Mode)
	require.EqualValues(p.RatedPowerWatt, plan.TargetWatt)
	require.False(plan.Forced)
}

func TestNoTelemetryForcesZeroWhenCostly(t *testing.T) {
	require := require.New(t)

	p := newPlanner()
	plan := p.Plan(p.RatedPowerWatt, costlyDecision(), nil, 0)
	require.Equal(domain.PlanModeForcedZero, plan.Mode)
	require.EqualValues(0, plan.TargetWatt)
	require.True(plan.Forced)
}

func TestBelowFullKeepsRatedWithinAllowance(t *testing.T) {
	require := require.New(t)

	p := newPlanner()
	plan := p.Plan(p.RatedPowerWatt, costlyDecision(), ctel(f64(60), 300, f64(-30), f64(1000)), 0)
	require.Equal(domain.PlanModeLimitBelowFull, plan.Mode)
	require.EqualValues(p.RatedPowerWatt, plan.TargetWatt)
}

func TestBelowFullBacksOffOnExcessExport(t *testing.T) {
	require := require.New(t)

	p := newPlanner()
	// export 450W, allowance 50W: overshoot 400W off the previous target
	plan := p.Plan(3000, costlyDecision(), ctel(f64(60), 300, f64(-450), f64(1000)), 0)
	require.Equal(domain.PlanModeLimitBelowFull, plan.Mode)
	require.EqualValues(2600, plan.TargetWatt)

	// importing recovers output
	plan = p.Plan(2600, costlyDecision(), ctel(f64(60), 300, f64(200), f64(1000)), 0)
	require.EqualValues(p.RatedPowerWatt, plan.TargetWatt)
}

func TestFullBatteryCoversLoadPlusImportBias(t *testing.T) {
	require := require.New(t)

	p := newPlanner()
	// SOC 100, load 300, desired charge 0, bias 50, no grid reading: 350
	plan := p.Plan(p.RatedPowerWatt, costlyDecision(), ctel(f64(100), 300, nil, f64(0)), 0)
	require.Equal(domain.PlanModeLimitFull, plan.Mode)
	require.EqualValues(350, plan.TargetWatt)
}

func TestFullBatteryAppliesGridFeedback(t *testing.T) {
	require := require.New(t)

	p := newPlanner()
	plan := p.Plan(p.RatedPowerWatt, costlyDecision(), ctel(f64(100), 300, f64(120), f64(0)), 0)
	require.EqualValues(350+120, plan.TargetWatt)

	plan = p.Plan(p.RatedPowerWatt, costlyDecision(), ctel(f64(100), 300, f64(-200), f64(0)), 0)
	require.EqualValues(150, plan.TargetWatt)
}

func TestUnknownSOCBudgetsDesiredChargeWithoutBias(t *testing.T) {
	require := require.New(t)

	p := newPlanner()
	plan := p.Plan(p.RatedPowerWatt, costlyDecision(), ctel(nil, 300, nil, f64(800)), 800)
	require.Equal(domain.PlanModeLimitFull, plan.Mode)
	require.EqualValues(1100, plan.TargetWatt)
	require.EqualValues(800, plan.DesiredChargeWatt)
}

func TestPlanTargetIsAlwaysWithinRatedPower(t *testing.T) {
	require := require.New(t)

	p := newPlanner()
	plan := p.Plan(p.RatedPowerWatt, costlyDecision(), ctel(f64(100), 4900, f64(500), f64(0)), 5000)
	require.LessOrEqual(plan.TargetWatt, p.RatedPowerWatt)
	require.GreaterOrEqual(plan.TargetWatt, 0.0)

	plan = p.Plan(0, costlyDecision(), ctel(f64(60), 300, f64(-4000), f64(1000)), 0)
	require.GreaterOrEqual(plan.TargetWatt, 0.0)
}

func TestAutoChargeKickStart(t *testing.T) {
	require := require.New(t)

	p := newPlanner()
	p.AutoChargeBelowSOCPercent = 20
	p.AutoChargeWatt = 500
	p.AutoChargeMaxWatt = 400

	// low SOC, battery idle: capped headroom is added on top
	plan := p.Plan(p.RatedPowerWatt, costlyDecision(), ctel(f64(10), 300, f64(-450), f64(0)), 0)
	require.EqualValues(400, plan.AutoChargeWatt)

	// withdrawn once the battery is actually charging
	plan = p.Plan(p.RatedPowerWatt, costlyDecision(), ctel(f64(10), 300, f64(-450), f64(900)), 0)
	require.EqualValues(0, plan.AutoChargeWatt)

	// not applied above the threshold
	plan = p.Plan(p.RatedPowerWatt, costlyDecision(), ctel(f64(60), 300, f64(-450), f64(0)), 0)
	require.EqualValues(0, plan.AutoChargeWatt)
}
