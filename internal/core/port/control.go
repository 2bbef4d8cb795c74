package port

import (
	"context"
	"time"

	"exportguard/internal/core/domain"
)

// PriceSource yields the most recent price snapshot, or nil when no data has
// been fetched yet. Staleness is judged by the classifier, not the source.
type PriceSource interface {
	CurrentPrices(ctx context.Context) (*domain.PriceSnapshot, error)
}

// TelemetrySource yields the most recent raw telemetry snapshot, or nil when
// unavailable. Sign conventions are resolved downstream.
type TelemetrySource interface {
	LastPowerData(ctx context.Context) (*domain.TelemetrySnapshot, error)
}

// ControlLogic runs one tick of the export limit control loop as a pure
// state transition: no I/O, no hidden state.
type ControlLogic interface {
	Tick(prev domain.ControllerState, price *domain.PriceSnapshot,
		telemetry *domain.TelemetrySnapshot, forceZero bool,
		now time.Time) (domain.ControllerState, domain.TickReport)
}
