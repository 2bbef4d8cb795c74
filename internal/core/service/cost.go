package service

import (
	"time"

	"exportguard/internal/core/domain"

	"go.uber.org/zap"
)

// PriceCostClassifier decides whether grid export currently costs money.
//
// Sign convention (the only one used anywhere in this repo): FeedInPriceCents
// is the compensation credited per kWh exported. Export is costly when that
// compensation falls below ThresholdCents; a negative feed-in price means
// paying to export and is always below any threshold >= 0.
//
// A missing or stale snapshot classifies as costly: uncertainty never relaxes
// toward unrestricted export.
type PriceCostClassifier struct {
	ThresholdCents float64
	MaxStale       time.Duration
	Logger         *zap.Logger
}

func (c *PriceCostClassifier) Classify(snap *domain.PriceSnapshot, now time.Time) domain.ExportDecision {
	if snap == nil {
		return domain.ExportDecision{
			Costly: true,
			Reason: domain.DecisionReasonNone,
		}
	}
	age := now.Sub(snap.FetchedAt).Seconds()
	if snap.FeedInPriceCents == nil {
		return domain.ExportDecision{
			Costly:     true,
			Reason:     domain.DecisionReasonNone,
			AgeSeconds: &age,
		}
	}
	if now.Sub(snap.FetchedAt) > c.MaxStale {
		c.Logger.Warn("price snapshot stale, assuming export costs money",
			zap.Float64("age_seconds", age))
		return domain.ExportDecision{
			Costly:           true,
			Reason:           domain.DecisionReasonStale,
			FeedInPriceCents: snap.FeedInPriceCents,
			AgeSeconds:       &age,
		}
	}
	return domain.ExportDecision{
		Costly:           *snap.FeedInPriceCents < c.ThresholdCents,
		Reason:           domain.DecisionReasonPrice,
		FeedInPriceCents: snap.FeedInPriceCents,
		AgeSeconds:       &age,
	}
}
