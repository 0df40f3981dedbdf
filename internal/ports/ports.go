package ports

import (
	"context"
	"time"

	"DealScanner/internal/domain"
)

// ListingSource yields raw listings from one configured page of one site.
// Failures are reported as errors; a source that gave up returns nothing.
type ListingSource interface {
	Name() string
	BaseURL() string
	Fetch(ctx context.Context) ([]domain.RawListing, error)
}

// Notifier delivers a formatted message; a nil error means the message was accepted.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// LedgerStore persists delivered listing ids.
type LedgerStore interface {
	LoadAll(ctx context.Context) ([]domain.LedgerEntry, error)
	Append(ctx context.Context, entry domain.LedgerEntry) error
	Flush(ctx context.Context) error
	Close() error
}

// Schedule decides how long the delivery loop sleeps between cycles.
type Schedule interface {
	Next() time.Duration
}
