package service

import (
	"math"
	"time"

	"exportguard/internal/core/domain"

	"go.uber.org/zap"
)

// ChargeSeekEstimator probes for battery charge acceptance above the
// possibly understated measured charge power. It is a hill climber with
// asymmetric steps: the offset grows by StepWatt while charging without
// excess export, and retreats by StepWatt*ReduceGain (ReduceGain >= 1) as
// soon as export exceeds the allowance, so export spikes die faster than
// headroom is probed.
type ChargeSeekEstimator struct {
	Interval             time.Duration
	StepWatt             float64
	MaxStepWatt          float64
	ReduceGain           float64
	MaxOffsetWatt        float64
	DesiredChargeCapWatt float64
	Logger               *zap.Logger
}

// Update is the pure state transition (previous state, current reading) ->
// next state. It adjusts at most once per Interval; calls in between return
// the previous state unchanged.
func (e *ChargeSeekEstimator) Update(prev domain.ChargeSeekState, full, charging bool,
	exportWatt, allowanceWatt float64, now time.Time) domain.ChargeSeekState {

	if !prev.LastUpdate.IsZero() && now.Sub(prev.LastUpdate) < e.Interval {
		return prev
	}

	next := domain.ChargeSeekState{
		OffsetWatt: prev.OffsetWatt,
		LastUpdate: now,
	}

	switch {
	case full:
		next.OffsetWatt = 0
	case exportWatt > allowanceWatt:
		gain := math.Max(1, e.ReduceGain)
		next.OffsetWatt = math.Max(0, prev.OffsetWatt-e.StepWatt*gain)
	case charging:
		step := e.StepWatt
		if e.MaxStepWatt > 0 {
			step = math.Min(step, e.MaxStepWatt)
		}
		next.OffsetWatt = math.Min(e.MaxOffsetWatt, prev.OffsetWatt+step)
	}

	if next.OffsetWatt != prev.OffsetWatt {
		e.Logger.Debug("charge-seek offset adjusted",
			zap.Float64("from_watt", prev.OffsetWatt),
			zap.Float64("to_watt", next.OffsetWatt))
	}
	return next
}

// DesiredCharge returns the charge power the planner should budget for:
// measured charge plus the probed offset, capped.
func (e *ChargeSeekEstimator) DesiredCharge(state domain.ChargeSeekState, measuredChargeWatt float64) float64 {
	return math.Min(measuredChargeWatt+state.OffsetWatt, e.DesiredChargeCapWatt)
}
