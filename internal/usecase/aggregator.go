package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"DealScanner/internal/classifier"
	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
	"DealScanner/internal/scanner"
)

// DeliveredSet answers whether a listing id was already delivered.
type DeliveredSet interface {
	Contains(id string) bool
}

// SourceBatch is what one source produced in a cycle.
type SourceBatch struct {
	Source   string
	BaseURL  string
	Listings []domain.RawListing
	Err      error
}

// AggregatorDeps wires sources and filters into the aggregator.
type AggregatorDeps struct {
	Sources    []ports.ListingSource
	Classifier *classifier.Classifier
	Delivered  DeliveredSet
	// FetchTimeout bounds the whole fetching phase; zero means no bound.
	FetchTimeout time.Duration
	// Concurrency caps parallel sources; zero means one worker per source.
	Concurrency int
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

// Aggregator collects raw listings from every source and turns them into
// classified, deduplicated, not-yet-delivered listings.
type Aggregator struct {
	sources      []ports.ListingSource
	classifier   *classifier.Classifier
	delivered    DeliveredSet
	fetchTimeout time.Duration
	concurrency  int
	clock        clockwork.Clock
	logger       *slog.Logger
}

// NewAggregator constructs the aggregation component.
func NewAggregator(deps AggregatorDeps) *Aggregator {
	a := &Aggregator{
		sources:      deps.Sources,
		classifier:   deps.Classifier,
		delivered:    deps.Delivered,
		fetchTimeout: deps.FetchTimeout,
		concurrency:  deps.Concurrency,
		clock:        deps.Clock,
		logger:       deps.Logger,
	}
	if a.classifier == nil {
		a.classifier = classifier.New(classifier.DefaultTables())
	}
	if a.clock == nil {
		a.clock = clockwork.NewRealClock()
	}
	return a
}

// Sources returns the number of configured sources.
func (a *Aggregator) Sources() int {
	return len(a.sources)
}

// RunCycle fetches and processes one cycle. The result is unsorted.
func (a *Aggregator) RunCycle(ctx context.Context) []domain.Listing {
	return a.Process(a.Collect(ctx))
}

// Collect fetches every source concurrently. A failing, hung or panicking
// source yields a batch with Err set; it never fails the others. Batches are
// returned in source order. ctx is tagged with a fresh cycle id unless the
// caller already set one with scanner.WithCycle.
func (a *Aggregator) Collect(ctx context.Context) []SourceBatch {
	batches := make([]SourceBatch, len(a.sources))
	if len(a.sources) == 0 {
		return batches
	}
	if _, ok := scanner.CycleFrom(ctx); !ok {
		ctx = scanner.WithCycle(ctx, uuid.NewString())
	}

	fetchCtx := ctx
	if a.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, a.fetchTimeout)
		defer cancel()
	}

	limit := a.concurrency
	if limit <= 0 || limit > len(a.sources) {
		limit = len(a.sources)
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, src := range a.sources {
		i, src := i, src
		g.Go(func() error {
			batches[i] = a.fetchOne(fetchCtx, src)
			return nil
		})
	}
	_ = g.Wait()

	return batches
}

func (a *Aggregator) fetchOne(ctx context.Context, src ports.ListingSource) SourceBatch {
	batch := SourceBatch{Source: src.Name(), BaseURL: src.BaseURL()}

	type result struct {
		listings []domain.RawListing
		err      error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("source panicked: %v", r)}
			}
		}()
		listings, err := src.Fetch(ctx)
		done <- result{listings: listings, err: err}
	}()

	select {
	case r := <-done:
		batch.Listings, batch.Err = r.listings, r.err
	case <-ctx.Done():
		batch.Err = fmt.Errorf("fetch abandoned: %w", ctx.Err())
	}

	switch {
	case batch.Err == nil:
		a.debug("source fetched", "source", batch.Source, "count", len(batch.Listings))
	case errors.Is(batch.Err, scanner.ErrCoolingDown):
		a.info("source skipped", "source", batch.Source, "reason", batch.Err)
	default:
		a.warn("source unavailable this cycle", "source", batch.Source, "error", batch.Err)
	}
	return batch
}

// Process normalizes, filters, deduplicates and classifies raw listings. Listings
// without a resolvable URL, outside the target region or without a target make
// are dropped silently, as are ids already delivered. Within the cycle the first
// occurrence of an id wins.
func (a *Aggregator) Process(batches []SourceBatch) []domain.Listing {
	now := a.clock.Now()
	seen := make(map[string]struct{})
	var out []domain.Listing

	for _, batch := range batches {
		if batch.Err != nil {
			continue
		}
		for _, raw := range batch.Listings {
			absolute, id, err := NormalizeURL(raw.URL, batch.BaseURL)
			if err != nil {
				continue
			}

			text := raw.Title + " " + raw.Description
			if !a.classifier.IsInTargetRegion(raw.Location) && !a.classifier.IsInTargetRegion(text) {
				continue
			}
			vehicle := a.classifier.IdentifyMake(raw.Title)
			if vehicle == "" {
				continue
			}

			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			listing := domain.Listing{
				ID:             id,
				URL:            absolute,
				Title:          raw.Title,
				Description:    raw.Description,
				PriceText:      raw.Price,
				LocationText:   raw.Location,
				SourceName:     batch.Source,
				Make:           vehicle,
				Classification: a.classifier.Classify(text),
				Profile:        a.classifier.Profile(text),
				FoundAt:        now,
			}
			if listing.LocationText == "" {
				listing.LocationText = a.classifier.AreaOf(text)
			}

			if a.delivered != nil && a.delivered.Contains(id) {
				continue
			}
			out = append(out, listing)
		}
	}
	return out
}

func (a *Aggregator) debug(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}

func (a *Aggregator) info(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Info(msg, args...)
	}
}

func (a *Aggregator) warn(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Warn(msg, args...)
	}
}
