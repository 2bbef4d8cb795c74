package service

import (
	"math"
	"time"

	"exportguard/internal/core/domain"

	"go.uber.org/zap"
)

const (
	SkipReasonNone         = ""
	SkipReasonBelowMinStep = "below_min_step"
	SkipReasonRateLimited  = "rate_limited"
)

// OutputSmoother converts a target plan into a bounded register percentage
// and decides whether a write should actually happen.
//
// The new percentage is exponentially smoothed against the last written one
// (SmoothingFactor is the weight of the previous value) to reject telemetry
// jitter. A write is suppressed when the change is below MinPercentStep and
// the enable state is unchanged, or when the last write is younger than
// MinWriteInterval. Forced (fail-safe) transitions bypass both rules.
type OutputSmoother struct {
	RatedPowerWatt   float64
	SmoothingFactor  float64
	MinPercentStep   uint8
	MinWriteInterval time.Duration
	Logger           *zap.Logger
}

// Step returns the clamped percentage for the plan and, when a write should
// be emitted, the command. A nil command comes with a skip reason.
func (s *OutputSmoother) Step(prev *domain.WriteState, lastWriteAt time.Time,
	plan domain.TargetPlan, costly bool, now time.Time) (uint8, *domain.WriteCommand, string) {

	rawPct := s.percentFromWatts(plan.TargetWatt)

	pct := rawPct
	if plan.Forced {
		// fail-safe transitions apply unsmoothed
		pct = rawPct
	} else if s.SmoothingFactor > 0 && prev != nil {
		smoothed := float64(prev.Percent)*s.SmoothingFactor + float64(rawPct)*(1-s.SmoothingFactor)
		pct = s.clampPercent(math.Round(smoothed))
	}

	cmd := domain.WriteCommand{
		Enabled: costly,
		Percent: pct,
		Forced:  plan.Forced,
	}

	if !plan.Forced {
		if prev != nil && prev.Enabled == cmd.Enabled &&
			int(math.Abs(float64(prev.Percent)-float64(pct))) < int(s.MinPercentStep) {
			return pct, nil, SkipReasonBelowMinStep
		}
		if !lastWriteAt.IsZero() && now.Sub(lastWriteAt) < s.MinWriteInterval {
			s.Logger.Debug("write rate limited",
				zap.Duration("since_last", now.Sub(lastWriteAt)))
			return pct, nil, SkipReasonRateLimited
		}
	} else if prev != nil && prev.Enabled == cmd.Enabled && prev.Percent == pct {
		// forced state already applied, nothing pending
		return pct, nil, SkipReasonNone
	}

	return pct, &cmd, SkipReasonNone
}

func (s *OutputSmoother) percentFromWatts(watt float64) uint8 {
	if s.RatedPowerWatt <= 0 {
		return 0
	}
	return s.clampPercent(math.Round(watt / s.RatedPowerWatt * 100))
}

// clampPercent bounds the register value to [0,100]. An out-of-range input
// means an upstream computation went wrong, so engaging is worth a warning.
func (s *OutputSmoother) clampPercent(pct float64) uint8 {
	if pct < 0 {
		s.Logger.Warn("computed percent out of range, clamping",
			zap.Float64("percent", pct))
		return 0
	}
	if pct > 100 {
		s.Logger.Warn("computed percent out of range, clamping",
			zap.Float64("percent", pct))
		return 100
	}
	return uint8(pct)
}
