package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
	"DealScanner/internal/scanner"
)

// ErrCycleRunning is returned when a cycle is requested while another one runs.
var ErrCycleRunning = errors.New("a cycle is already running")

// State is the delivery loop phase.
type State string

const (
	StateIdle         State = "IDLE"
	StateFetching     State = "FETCHING"
	StateScoring      State = "SCORING"
	StateDispatching  State = "DISPATCHING"
	StateSleeping     State = "SLEEPING"
	StateErrorBackoff State = "ERROR_BACKOFF"
)

// ForceResult answers a manual cycle request.
type ForceResult string

const (
	ForceAccepted       ForceResult = "accepted"
	ForceAlreadyRunning ForceResult = "already_running"
)

// Ledger is the part of the dedup ledger the delivery loop needs.
type Ledger interface {
	DeliveredSet
	Commit(ctx context.Context, id string, at time.Time) error
	Flush(ctx context.Context) error
	Len() int
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
	Sources        int       `json:"sources"`
	FailedSources  int       `json:"failedSources"`
	Fetched        int       `json:"fetched"`
	Found          int       `json:"found"`
	Selected       int       `json:"selected"`
	Delivered      int       `json:"delivered"`
	SendFailures   int       `json:"sendFailures"`
	CommitFailures int       `json:"commitFailures"`
}

// Status is the externally visible loop state.
type Status struct {
	State         State     `json:"state"`
	LastSuccessAt time.Time `json:"lastSuccessAt"`
	LastCycleID   string    `json:"lastCycleId"`
	LastFound     int       `json:"lastFound"`
	LastDelivered int       `json:"lastDelivered"`
	LastError     string    `json:"lastError,omitempty"`
	CyclesRun     int       `json:"cyclesRun"`
	LedgerSize    int       `json:"ledgerSize"`
	NextRunAt     time.Time `json:"nextRunAt"`
}

// SchedulerOptions tune dispatch and backoff.
type SchedulerOptions struct {
	BatchSize     int
	MinScore      int
	DispatchDelay time.Duration
	ErrorCooldown time.Duration
	Interval      time.Duration
	SendStartup   bool
	SendSummary   bool
}

// SchedulerDeps wires the delivery loop.
type SchedulerDeps struct {
	Aggregator *Aggregator
	Ledger     Ledger
	Notifier   ports.Notifier
	// Operator receives failure alerts; nil falls back to Notifier.
	Operator  ports.Notifier
	Schedule  ports.Schedule
	Formatter MessageFormatter
	Options   SchedulerOptions
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

// Scheduler runs aggregation cycles, dispatches alerts and records deliveries.
// It is the only writer of the ledger and never runs two cycles at once.
type Scheduler struct {
	aggregator *Aggregator
	ledger     Ledger
	notifier   ports.Notifier
	operator   ports.Notifier
	schedule   ports.Schedule
	format     MessageFormatter
	opts       SchedulerOptions
	clock      clockwork.Clock
	logger     *slog.Logger

	running atomic.Bool
	force   chan struct{}

	mu     sync.Mutex
	status Status
}

// NewScheduler builds the delivery loop.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	s := &Scheduler{
		aggregator: deps.Aggregator,
		ledger:     deps.Ledger,
		notifier:   deps.Notifier,
		operator:   deps.Operator,
		schedule:   deps.Schedule,
		format:     deps.Formatter,
		opts:       deps.Options,
		clock:      deps.Clock,
		logger:     deps.Logger,
		force:      make(chan struct{}, 1),
		status:     Status{State: StateIdle},
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.operator == nil {
		s.operator = s.notifier
	}
	if s.opts.BatchSize <= 0 {
		s.opts.BatchSize = 8
	}
	if s.opts.ErrorCooldown <= 0 {
		s.opts.ErrorCooldown = 5 * time.Minute
	}
	return s
}

// Run loops until ctx is cancelled. Cycle errors never end the loop; they put
// it into ERROR_BACKOFF for the configured cool-down.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.opts.SendStartup {
		if err := s.SendStartup(ctx); err != nil {
			s.warn("startup message failed", "error", err)
		}
	}

	for {
		if ctx.Err() != nil {
			s.setState(StateIdle)
			return nil
		}

		report, err := s.RunCycle(ctx)
		if ctx.Err() != nil {
			s.setState(StateIdle)
			return nil
		}

		state, wait := StateSleeping, s.nextDelay()
		if err != nil {
			state, wait = StateErrorBackoff, s.opts.ErrorCooldown
		}
		next := s.clock.Now().Add(wait)
		s.mu.Lock()
		s.status.State = state
		s.status.NextRunAt = next
		s.mu.Unlock()

		if err != nil {
			s.logError("cycle failed, backing off", "cycle_id", report.ID, "error", err, "cooldown", wait)
			s.notifyOperator(ctx, err, wait)
		} else if s.opts.SendSummary {
			s.sendSummary(ctx, report, next)
		}

		if !s.sleep(ctx, wait) {
			s.setState(StateIdle)
			return nil
		}
		s.setState(StateIdle)
	}
}

// RunCycle executes one fetch, score and dispatch pass. It returns
// ErrCycleRunning when another cycle is in progress. Panics are recovered and
// returned as errors.
func (s *Scheduler) RunCycle(ctx context.Context) (report CycleReport, err error) {
	if !s.running.CompareAndSwap(false, true) {
		return CycleReport{}, ErrCycleRunning
	}
	defer s.running.Store(false)

	// the cycle starting now satisfies any pending manual request
	select {
	case <-s.force:
	default:
	}

	report.ID = uuid.NewString()
	report.StartedAt = s.clock.Now()
	log := s.logger
	if log != nil {
		log = log.With("cycle_id", report.ID)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
		report.FinishedAt = s.clock.Now()
		s.finishCycle(report, err)
	}()

	if s.aggregator == nil || s.ledger == nil || s.notifier == nil {
		return report, fmt.Errorf("scheduler is not fully wired")
	}

	s.setState(StateFetching)
	batches := s.aggregator.Collect(scanner.WithCycle(ctx, report.ID))
	report.Sources = len(batches)
	for _, b := range batches {
		if b.Err != nil {
			report.FailedSources++
		}
		report.Fetched += len(b.Listings)
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	s.setState(StateScoring)
	listings := s.aggregator.Process(batches)
	report.Found = len(listings)
	selected := s.prioritize(listings)
	report.Selected = len(selected)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	s.setState(StateDispatching)
	s.dispatch(ctx, log, selected, &report)

	if err := s.ledger.Flush(ctx); err != nil {
		return report, fmt.Errorf("flush ledger: %w", err)
	}

	if log != nil {
		log.Info("cycle finished",
			"sources", report.Sources,
			"failed_sources", report.FailedSources,
			"fetched", report.Fetched,
			"found", report.Found,
			"delivered", report.Delivered,
			"send_failures", report.SendFailures,
		)
	}
	return report, nil
}

// prioritize orders by score then title, drops listings under MinScore and caps the batch.
func (s *Scheduler) prioritize(listings []domain.Listing) []domain.Listing {
	out := make([]domain.Listing, 0, len(listings))
	for _, l := range listings {
		if l.Classification.Score >= s.opts.MinScore {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Classification.Score != out[j].Classification.Score {
			return out[i].Classification.Score > out[j].Classification.Score
		}
		return out[i].Title < out[j].Title
	})
	if len(out) > s.opts.BatchSize {
		out = out[:s.opts.BatchSize]
	}
	return out
}

// dispatch sends listings one at a time. A send that started is allowed to
// finish and be committed even if ctx is cancelled meanwhile; cancellation is
// only honoured between listings.
func (s *Scheduler) dispatch(ctx context.Context, log *slog.Logger, listings []domain.Listing, report *CycleReport) {
	for i, l := range listings {
		if i > 0 && s.opts.DispatchDelay > 0 {
			if err := sleepContext(ctx, s.clock, s.opts.DispatchDelay); err != nil {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		if err := s.notifier.Send(context.WithoutCancel(ctx), s.format.Alert(l)); err != nil {
			report.SendFailures++
			if log != nil {
				log.Warn("send failed, will retry next cycle", "listing", l.ID, "error", err)
			}
			continue
		}

		if err := s.ledger.Commit(ctx, l.ID, s.clock.Now()); err != nil {
			report.CommitFailures++
			if log != nil {
				log.Error("ledger commit failed", "listing", l.ID, "error", err)
			}
		}
		report.Delivered++
	}
}

// ForceCycle asks the loop to start a cycle now. Requests made while a cycle
// runs are rejected; repeated requests while idle coalesce into one.
func (s *Scheduler) ForceCycle() ForceResult {
	if s.running.Load() {
		return ForceAlreadyRunning
	}
	select {
	case s.force <- struct{}{}:
	default:
	}
	return ForceAccepted
}

// Status returns a snapshot of the loop state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()
	if s.ledger != nil {
		st.LedgerSize = s.ledger.Len()
	}
	return st
}

// SendStartup sends the startup message.
func (s *Scheduler) SendStartup(ctx context.Context) error {
	if s.notifier == nil {
		return fmt.Errorf("notifier is not configured")
	}
	sources := 0
	if s.aggregator != nil {
		sources = s.aggregator.Sources()
	}
	return s.notifier.Send(ctx, s.format.Startup(sources, s.opts.Interval, s.clock.Now()))
}

func (s *Scheduler) sendSummary(ctx context.Context, report CycleReport, next time.Time) {
	if err := s.notifier.Send(ctx, s.format.Summary(report, next)); err != nil {
		s.warn("summary message failed", "error", err)
	}
}

func (s *Scheduler) notifyOperator(ctx context.Context, cause error, wait time.Duration) {
	if s.operator == nil {
		return
	}
	if err := s.operator.Send(ctx, s.format.Failure(cause, s.clock.Now(), wait)); err != nil {
		s.warn("operator alert failed", "error", err)
	}
}

func (s *Scheduler) finishCycle(report CycleReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.CyclesRun++
	s.status.LastCycleID = report.ID
	s.status.LastFound = report.Found
	s.status.LastDelivered = report.Delivered
	if err != nil {
		s.status.LastError = err.Error()
		return
	}
	s.status.LastError = ""
	s.status.LastSuccessAt = report.FinishedAt
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.status.State = state
	s.mu.Unlock()
}

func (s *Scheduler) nextDelay() time.Duration {
	if s.schedule != nil {
		return s.schedule.Next()
	}
	if s.opts.Interval > 0 {
		return s.opts.Interval
	}
	return 10 * time.Minute
}

// sleep waits d or until a manual cycle is requested. It returns false when ctx ends.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	timer := s.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	case <-s.force:
		s.info("manual cycle requested")
		return true
	}
}

func sleepContext(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	timer := clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

func (s *Scheduler) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Scheduler) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Scheduler) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
