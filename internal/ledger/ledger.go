// Package ledger remembers which listing ids were already delivered so that a
// listing is announced at most once across cycles and restarts.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
)

// DefaultWriteTimeout bounds a single store write.
const DefaultWriteTimeout = 10 * time.Second

// Ledger is an in-memory set of delivered ids backed by a durable store.
// Lookups never touch the store; commits write through it.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]time.Time

	store        ports.LedgerStore
	retention    time.Duration
	writeTimeout time.Duration
	clock        clockwork.Clock
	logger       *slog.Logger
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithRetention skips entries older than d when loading; zero keeps everything.
func WithRetention(d time.Duration) Option {
	return func(l *Ledger) {
		l.retention = d
	}
}

// WithWriteTimeout bounds every store write; zero disables the bound.
func WithWriteTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		l.writeTimeout = d
	}
}

// WithClock injects the clock used for retention cut-offs.
func WithClock(clock clockwork.Clock) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithLogger sets the ledger logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// Open loads every persisted entry from store.
func Open(ctx context.Context, store ports.LedgerStore, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}

	l := &Ledger{
		entries:      make(map[string]time.Time),
		store:        store,
		clock:        clockwork.NewRealClock(),
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}

	persisted, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	var cutoff time.Time
	if l.retention > 0 {
		cutoff = l.clock.Now().Add(-l.retention)
	}

	skipped := 0
	for _, entry := range persisted {
		if entry.ID == "" {
			continue
		}
		// bare ids carry no timestamp and are always kept
		if !cutoff.IsZero() && !entry.DeliveredAt.IsZero() && entry.DeliveredAt.Before(cutoff) {
			skipped++
			continue
		}
		if prev, ok := l.entries[entry.ID]; !ok || entry.DeliveredAt.After(prev) {
			l.entries[entry.ID] = entry.DeliveredAt
		}
	}

	if l.logger != nil {
		l.logger.Info("ledger loaded", "entries", len(l.entries), "expired", skipped)
	}
	return l, nil
}

// Contains reports whether id was already delivered.
func (l *Ledger) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[id]
	return ok
}

// Commit records id as delivered at the given time. Committing a known id is a
// no-op. The write survives cancellation of ctx so a sent alert is never
// forgotten halfway through shutdown, but is still bounded by the write
// timeout. When the store fails the id is still kept
// in memory for the lifetime of the process and the error is returned.
func (l *Ledger) Commit(ctx context.Context, id string, at time.Time) error {
	if id == "" {
		return fmt.Errorf("commit: empty listing id")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[id]; ok {
		return nil
	}
	l.entries[id] = at

	writeCtx, cancel := l.writeContext(ctx)
	defer cancel()

	if err := l.store.Append(writeCtx, domain.LedgerEntry{ID: id, DeliveredAt: at}); err != nil {
		return fmt.Errorf("persist %s: %w", id, err)
	}
	return nil
}

// writeContext detaches ctx from cancellation and applies the write timeout.
func (l *Ledger) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if l.writeTimeout <= 0 {
		return detached, func() {}
	}
	return context.WithTimeout(detached, l.writeTimeout)
}

// LoadAll returns a snapshot of every known id.
func (l *Ledger) LoadAll() map[string]struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]struct{}, len(l.entries))
	for id := range l.entries {
		out[id] = struct{}{}
	}
	return out
}

// Len returns the number of known ids.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Flush makes buffered commits durable.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	writeCtx, cancel := l.writeContext(ctx)
	defer cancel()

	if err := l.store.Flush(writeCtx); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}
	return nil
}

// Close flushes and releases the store.
func (l *Ledger) Close(ctx context.Context) error {
	flushErr := l.Flush(ctx)
	if err := l.store.Close(); err != nil {
		return fmt.Errorf("close ledger store: %w", err)
	}
	return flushErr
}
