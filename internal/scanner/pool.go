package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sethvargo/go-retry"

	"DealScanner/internal/domain"
)

// ConnectorState is the transient, in-memory health of one pooled connector.
type ConnectorState struct {
	Current             string
	ConsecutiveFailures int
	CooldownUntil       time.Time
	LastSuccess         time.Time
	LastError           string
}

// Pool wraps one Connector with identity rotation, blocking handling and
// bounded retries. Fetch calls on the same Pool are serialized so one identity
// never issues concurrent requests.
type Pool struct {
	name       string
	connector  Connector
	identities []Identity
	policy     RetryPolicy
	clock      clockwork.Clock
	logger     *slog.Logger

	requestDelay   retry.Backoff
	transientDelay retry.Backoff

	fetchMu sync.Mutex
	cycle   cycleState

	mu    sync.Mutex
	next  int
	state ConnectorState
}

// PoolOption customizes a Pool.
type PoolOption func(*Pool)

// WithClock injects the clock used for delays and cool-downs.
func WithClock(clock clockwork.Clock) PoolOption {
	return func(p *Pool) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithLogger sets the pool logger.
func WithLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithName labels the pool in logs and errors; defaults to the connector name.
func WithName(name string) PoolOption {
	return func(p *Pool) {
		if name != "" {
			p.name = name
		}
	}
}

// NewPool builds a pool; with no identities a single direct identity is used.
func NewPool(connector Connector, identities []Identity, policy RetryPolicy, opts ...PoolOption) *Pool {
	if len(identities) == 0 {
		identities = []Identity{{Name: "direct"}}
	}
	policy = policy.normalized()
	p := &Pool{
		name:           connector.Name(),
		connector:      connector,
		identities:     append([]Identity(nil), identities...),
		policy:         policy,
		clock:          clockwork.NewRealClock(),
		requestDelay:   policy.RequestDelay.Schedule(),
		transientDelay: policy.TransientDelay.Schedule(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the pool label.
func (p *Pool) Name() string {
	return p.name
}

// State returns a snapshot of the connector state.
func (p *Pool) State() ConnectorState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Fetch runs one request through the rotation. A blocked identity is retired
// for the rest of the cycle (see WithCycle) and the next one is tried; a
// transient error is retried on the same identity before rotating. When the
// budget is spent an *ExhaustedError is returned and the caller is expected to
// carry on without this source.
func (p *Pool) Fetch(ctx context.Context, req Request) ([]domain.RawListing, error) {
	p.fetchMu.Lock()
	defer p.fetchMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cycleID, scoped := CycleFrom(ctx)
	if !scoped || cycleID != p.cycle.id {
		p.settleCycle()
		p.cycle = cycleState{id: cycleID, retired: make(map[int]bool)}
	}
	if !scoped {
		defer p.settleCycle()
	}

	if until := p.cooldownUntil(); p.clock.Now().Before(until) {
		return nil, fmt.Errorf("%s: %w until %s", p.name, ErrCoolingDown, until.Format(time.RFC3339))
	}

	budget := p.policy.AttemptBudget(len(p.identities))
	var (
		lastErr  error
		attempts int
	)
	for attempts < budget {
		idx, ok := p.nextIdentity(p.cycle.retired)
		if !ok {
			if lastErr == nil {
				lastErr = ErrNoIdentity
			}
			break
		}
		attempts++
		id := p.identities[idx]
		p.setCurrent(id)

		res, err := p.attempt(ctx, req, id)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if res.Blocked {
			p.cycle.retired[idx] = true
			lastErr = fmt.Errorf("identity %s: %w: %s", id.Label(), ErrBlocked, res.Reason)
			p.warn("identity blocked, retired for this cycle", "identity", id.Label(), "reason", res.Reason, "attempt", attempts)
			continue
		}
		if err != nil {
			lastErr = fmt.Errorf("identity %s: %w", id.Label(), err)
			p.warn("fetch failed, rotating", "identity", id.Label(), "error", err, "attempt", attempts)
			continue
		}

		p.cycle.succeeded = true
		p.recordSuccess()
		return res.Listings, nil
	}

	p.cycle.failed++
	p.recordError(lastErr)
	return nil, &ExhaustedError{Source: p.name, Attempts: attempts, Last: lastErr}
}

func (p *Pool) attempt(ctx context.Context, req Request, id Identity) (FetchResult, error) {
	for try := 0; ; try++ {
		if err := sleepContext(ctx, p.clock, nextDelay(p.requestDelay)); err != nil {
			return FetchResult{}, err
		}

		res, err := p.safeFetch(ctx, req, id)
		if res.Blocked {
			return res, nil
		}
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil || try >= p.policy.TransientRetries || isPermanent(err) {
			return res, err
		}

		p.debug("transient error, retrying same identity", "identity", id.Label(), "error", err)
		if err := sleepContext(ctx, p.clock, nextDelay(p.transientDelay)); err != nil {
			return FetchResult{}, err
		}
	}
}

func (p *Pool) safeFetch(ctx context.Context, req Request, id Identity) (res FetchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = FetchResult{}
			err = &PanicError{Connector: p.connector.Name(), Value: r}
		}
	}()
	return p.connector.Fetch(ctx, req, id)
}

func (p *Pool) nextIdentity(retired map[int]bool) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.identities)
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		if retired[idx] {
			continue
		}
		p.next = (idx + 1) % n
		return idx, true
	}
	return 0, false
}

func (p *Pool) setCurrent(id Identity) {
	p.mu.Lock()
	p.state.Current = id.Label()
	p.mu.Unlock()
}

func (p *Pool) cooldownUntil() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.CooldownUntil
}

func (p *Pool) recordSuccess() {
	p.mu.Lock()
	p.state.ConsecutiveFailures = 0
	p.state.LastSuccess = p.clock.Now()
	p.state.LastError = ""
	p.mu.Unlock()
}

func (p *Pool) recordError(err error) {
	if err == nil {
		return
	}
	p.mu.Lock()
	p.state.LastError = err.Error()
	p.mu.Unlock()
}

// settleCycle closes the cycle in progress. A cycle in which every page was
// exhausted counts as one consecutive failure; enough of them start the
// cool-down. Callers hold fetchMu.
func (p *Pool) settleCycle() {
	c := p.cycle
	p.cycle = cycleState{}
	if c.succeeded || c.failed == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.ConsecutiveFailures++
	if p.policy.CooldownAfter > 0 && p.state.ConsecutiveFailures >= p.policy.CooldownAfter {
		p.state.CooldownUntil = p.clock.Now().Add(p.policy.CooldownPeriod)
		p.state.ConsecutiveFailures = 0
		p.warn("connector cooling down", "until", p.state.CooldownUntil.Format(time.RFC3339))
	}
}

type permanent interface {
	Permanent() bool
}

func isPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p) && p.Permanent()
}

func (p *Pool) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, append([]any{"source", p.name}, args...)...)
	}
}

func (p *Pool) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, append([]any{"source", p.name}, args...)...)
	}
}
