package service

import (
	"testing"
	"time"

	"exportguard/internal/core/domain"
	"exportguard/internal/core/port"

	"github.com/stretchr/testify/require"
)

func newControlLogic() *ExportControlLogic {
	return &ExportControlLogic{
		Classifier: &PriceCostClassifier{
			ThresholdCents: 0,
			MaxStale:       60 * time.Second,
			Logger:         testLogger,
		},
		Normalizer: &SignNormalizer{
			BatteryPositiveIsCharge:  true,
			GridPositiveIsImport:     true,
			BatteryIdleThresholdWatt: 25,
			Logger:                   testLogger,
		},
		Estimator: &ChargeSeekEstimator{
			Interval:             30 * time.Second,
			StepWatt:             100,
			ReduceGain:           2,
			MaxOffsetWatt:        2000,
			DesiredChargeCapWatt: 5000,
			Logger:               testLogger,
		},
		Planner: &TargetPowerPlanner{
			RatedPowerWatt:      5000,
			FullSOCPercent:      99,
			ExportAllowanceWatt: 50,
			GridFeedbackGain:    1,
			ImportBiasWatt:      50,
			Logger:              testLogger,
		},
		Smoother: &OutputSmoother{
			RatedPowerWatt:   5000,
			SmoothingFactor:  0,
			MinPercentStep:   2,
			MinWriteInterval: 10 * time.Second,
			Logger:           testLogger,
		},
		TelemetryMaxStale: 90 * time.Second,
		Logger:            testLogger,
	}
}

var _ port.ControlLogic = (*ExportControlLogic)(nil)

func freshTel(soc, load, grid, battery float64, age time.Duration) *domain.TelemetrySnapshot {
	return &domain.TelemetrySnapshot{
		SOCPercent:     f64(soc),
		LoadWatt:       f64(load),
		GridWattRaw:    f64(grid),
		BatteryWattRaw: f64(battery),
		PVWatt:         f64(2000),
		FetchedAt:      t0.Add(-age),
	}
}

func TestTickExportAllowed(t *testing.T) {
	require := require.New(t)

	l := newControlLogic()
	_, report := l.Tick(domain.ControllerState{},
		priceSnap(f64(12), time.Second),
		freshTel(60, 300, -1500, 1000, time.Second),
		false, t0)

	require.False(report.Decision.Costly)
	require.Equal(domain.PlanModeExportAllowed, report.Plan.Mode)
	require.NotNil(report.Write)
	require.False(report.Write.Enabled)
	require.EqualValues(100, report.Write.Percent)
}

func TestTickStalePriceAndDeadTelemetryForcesZero(t *testing.T) {
	require := require.New(t)

	l := newControlLogic()
	// price 120s old against a 60s bound, telemetry far past its own bound
	_, report := l.Tick(domain.ControllerState{},
		priceSnap(f64(25), 120*time.Second),
		freshTel(60, 300, 0, 0, 10*time.Minute),
		false, t0)

	require.True(report.Decision.Costly)
	require.Equal(domain.DecisionReasonStale, report.Decision.Reason)
	require.Nil(report.Control)
	require.Equal(domain.PlanModeForcedZero, report.Plan.Mode)
	require.NotNil(report.Write)
	require.True(report.Write.Enabled)
	require.True(report.Write.Forced)
	require.EqualValues(0, report.Write.Percent)
}

func TestTickForceZeroSwitchOverridesEverything(t *testing.T) {
	require := require.New(t)

	l := newControlLogic()
	// export would be allowed, but the switch wins
	_, report := l.Tick(domain.ControllerState{},
		priceSnap(f64(12), time.Second),
		freshTel(60, 300, -1500, 1000, time.Second),
		true, t0)

	require.True(report.ForceZero)
	require.Equal(domain.PlanModeForcedZero, report.Plan.Mode)
	require.NotNil(report.Write)
	require.True(report.Write.Enabled)
	require.EqualValues(0, report.Write.Percent)
}

func TestTickFullBatteryScenario(t *testing.T) {
	require := require.New(t)

	l := newControlLogic()
	_, report := l.Tick(domain.ControllerState{},
		priceSnap(f64(-2), time.Second),
		freshTel(100, 300, 0, 0, time.Second),
		false, t0)

	require.True(report.Decision.Costly)
	require.Equal(domain.PlanModeLimitFull, report.Plan.Mode)
	require.EqualValues(350, report.Plan.TargetWatt)
	require.NotNil(report.Write)
	require.EqualValues(7, report.Write.Percent)
}

func TestTickUpdatesChargeSeekOnlyWhenCostly(t *testing.T) {
	require := require.New(t)

	l := newControlLogic()

	// cheap export: the probe must not move
	state, _ := l.Tick(domain.ControllerState{},
		priceSnap(f64(12), time.Second),
		freshTel(60, 300, -30, 1000, time.Second),
		false, t0)
	require.EqualValues(0, state.ChargeSeek.OffsetWatt)

	// costly and charging within the allowance: the probe grows
	state, report := l.Tick(state,
		priceSnap(f64(-2), time.Second),
		freshTel(60, 300, -30, 1000, time.Second),
		false, t0.Add(time.Minute))
	require.EqualValues(100, state.ChargeSeek.OffsetWatt)
	require.EqualValues(100, report.OffsetWatt)
}

func TestTickNoWriteBelowMinStep(t *testing.T) {
	require := require.New(t)

	l := newControlLogic()
	state := domain.ControllerState{
		LastWritten: &domain.WriteState{Enabled: false, Percent: 100},
		LastWriteAt: t0.Add(-time.Minute),
	}

	// still cheap, still 100%: nothing to write
	_, report := l.Tick(state,
		priceSnap(f64(12), time.Second),
		freshTel(60, 300, -1500, 1000, time.Second),
		false, t0)
	require.Nil(report.Write)
	require.Equal(SkipReasonBelowMinStep, report.SkipReason)
}

func TestTickRateLimitsRegularWrites(t *testing.T) {
	require := require.New(t)

	l := newControlLogic()
	state := domain.ControllerState{
		LastWritten: &domain.WriteState{Enabled: true, Percent: 60},
		LastWriteAt: t0.Add(-2 * time.Second),
	}

	_, report := l.Tick(state,
		priceSnap(f64(-2), time.Second),
		freshTel(100, 300, 0, 0, time.Second),
		false, t0)
	require.Nil(report.Write)
	require.Equal(SkipReasonRateLimited, report.SkipReason)

	// fail-safe transitions ignore the interval
	_, report = l.Tick(state,
		nil,
		nil,
		false, t0)
	require.NotNil(report.Write)
	require.True(report.Write.Forced)
	require.EqualValues(0, report.Write.Percent)
}

func TestMarkWrittenOnlyAfterConfirmedWrite(t *testing.T) {
	require := require.New(t)

	l := newControlLogic()
	state, report := l.Tick(domain.ControllerState{},
		priceSnap(f64(-2), time.Second),
		freshTel(100, 300, 0, 0, time.Second),
		false, t0)

	// the tick itself never claims the write happened
	require.NotNil(report.Write)
	require.Nil(state.LastWritten)

	state = state.MarkWritten(*report.Write, t0)
	require.NotNil(state.LastWritten)
	require.Equal(report.Write.Percent, state.LastWritten.Percent)
	require.Equal(t0, state.LastWriteAt)
}
