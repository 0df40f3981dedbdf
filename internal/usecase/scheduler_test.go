package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
)

type schedulerFixture struct {
	clock    *clockwork.FakeClock
	source   *fakeSource
	notifier *fakeNotifier
	ledger   Ledger
	sched    *Scheduler
}

func newSchedulerFixture(t *testing.T, opts SchedulerOptions, listings ...domain.RawListing) *schedulerFixture {
	t.Helper()

	f := &schedulerFixture{
		clock:    clockwork.NewFakeClock(),
		source:   &fakeSource{name: "jiji", base: "https://jiji.ng", listings: listings},
		notifier: &fakeNotifier{},
	}
	f.ledger = newLedger(t)
	f.sched = f.build(opts)
	return f
}

func (f *schedulerFixture) build(opts SchedulerOptions) *Scheduler {
	agg := NewAggregator(AggregatorDeps{
		Sources:    []ports.ListingSource{f.source},
		Classifier: fixtureClassifier(),
		Delivered:  f.ledger,
		Clock:      f.clock,
	})
	return NewScheduler(SchedulerDeps{
		Aggregator: agg,
		Ledger:     f.ledger,
		Notifier:   f.notifier,
		Formatter:  MessageFormatter{ScoreCeiling: 10},
		Options:    opts,
		Clock:      f.clock,
	})
}

func TestSchedulerCommitsAfterSend(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t, SchedulerOptions{},
		abujaListing("Toyota Camry", "urgent", "/1"),
		abujaListing("Benz C300", "must sell", "/2"),
	)

	report, err := f.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Found)
	assert.Equal(t, 2, report.Delivered)
	assert.Len(t, f.notifier.messages(), 2)
	assert.True(t, f.ledger.Contains("https://jiji.ng/1"))
	assert.True(t, f.ledger.Contains("https://jiji.ng/2"))

	report, err = f.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Found)
	assert.Len(t, f.notifier.messages(), 2)
}

func TestSchedulerFailedSendIsRetriedNextCycle(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t, SchedulerOptions{},
		abujaListing("Toyota X", "", "/x"),
		abujaListing("Toyota Y", "", "/y"),
		abujaListing("Toyota Z", "", "/z"),
	)
	f.notifier.failOn = "Toyota X"

	report, err := f.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Delivered)
	assert.Equal(t, 1, report.SendFailures)
	assert.False(t, f.ledger.Contains("https://jiji.ng/x"))
	assert.True(t, f.ledger.Contains("https://jiji.ng/y"))
	assert.True(t, f.ledger.Contains("https://jiji.ng/z"))

	pending := f.sched.aggregator.RunCycle(context.Background())
	require.Len(t, pending, 1)
	assert.Equal(t, "https://jiji.ng/x", pending[0].ID)

	f.notifier.failOn = ""
	report, err = f.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.True(t, f.ledger.Contains("https://jiji.ng/x"))
}

func TestSchedulerPrioritizesAndCaps(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t, SchedulerOptions{BatchSize: 2, MinScore: 1},
		abujaListing("Toyota B", "negotiable", "/b"),
		abujaListing("Toyota A", "negotiable", "/a"),
		abujaListing("Toyota Top", "urgent sale", "/top"),
		abujaListing("Toyota Zero", "clean", "/zero"),
	)

	report, err := f.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Found)
	assert.Equal(t, 2, report.Selected)

	sent := f.notifier.messages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0], "Toyota Top")
	assert.Contains(t, sent[1], "Toyota A")
	assert.False(t, f.ledger.Contains("https://jiji.ng/zero"))
}

func TestSchedulerDispatchDelayUsesClock(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t, SchedulerOptions{DispatchDelay: 2 * time.Second},
		abujaListing("Toyota A", "", "/a"),
		abujaListing("Toyota B", "", "/b"),
	)

	done := make(chan error, 1)
	go func() {
		_, err := f.sched.RunCycle(context.Background())
		done <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	assert.Len(t, f.notifier.messages(), 1)

	f.clock.Advance(2 * time.Second)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("cycle did not finish")
	}
	assert.Len(t, f.notifier.messages(), 2)
}

func TestSchedulerShutdownBetweenSends(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t, SchedulerOptions{},
		abujaListing("Toyota A", "", "/a"),
		abujaListing("Toyota B", "", "/b"),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.notifier.onSend = func(string) { cancel() }

	_, err := f.sched.RunCycle(ctx)
	require.NoError(t, err)

	// the in-flight send completed and was committed; the next one never started
	assert.Len(t, f.notifier.messages(), 1)
	assert.Equal(t, 1, f.ledger.Len())
}

func TestSchedulerRejectsConcurrentCycles(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t, SchedulerOptions{}, abujaListing("Toyota A", "", "/a"))
	release := make(chan struct{})
	f.source.block = release

	done := make(chan error, 1)
	go func() {
		_, err := f.sched.RunCycle(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool {
		return f.sched.Status().State == StateFetching
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, ForceAlreadyRunning, f.sched.ForceCycle())
	_, err := f.sched.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleRunning)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, ForceAccepted, f.sched.ForceCycle())
	assert.Equal(t, ForceAccepted, f.sched.ForceCycle())
}

func TestSchedulerStatus(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t, SchedulerOptions{}, abujaListing("Toyota A", "", "/a"))
	report, err := f.sched.RunCycle(context.Background())
	require.NoError(t, err)

	st := f.sched.Status()
	assert.Equal(t, report.ID, st.LastCycleID)
	assert.Equal(t, 1, st.LastFound)
	assert.Equal(t, 1, st.LastDelivered)
	assert.Equal(t, 1, st.CyclesRun)
	assert.Equal(t, 1, st.LedgerSize)
	assert.Equal(t, f.clock.Now(), st.LastSuccessAt)
	assert.Empty(t, st.LastError)
}

type flakyLedger struct {
	Ledger
	mu       sync.Mutex
	flushErr error
}

func (l *flakyLedger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.flushErr != nil {
		return l.flushErr
	}
	return l.Ledger.Flush(ctx)
}

func (l *flakyLedger) heal() {
	l.mu.Lock()
	l.flushErr = nil
	l.mu.Unlock()
}

func TestSchedulerRunBacksOffOnCycleError(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t, SchedulerOptions{ErrorCooldown: 5 * time.Minute, Interval: time.Hour})
	flaky := &flakyLedger{Ledger: f.ledger, flushErr: errors.New("disk full")}
	f.ledger = flaky
	operator := &fakeNotifier{}
	f.sched = f.build(SchedulerOptions{ErrorCooldown: 5 * time.Minute, Interval: time.Hour})
	f.sched.operator = operator

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan error, 1)
	go func() { stopped <- f.sched.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.sched.Status().State == StateErrorBackoff && len(operator.messages()) == 1
	}, 5*time.Second, 5*time.Millisecond)
	assert.Contains(t, operator.messages()[0], "disk full")
	assert.Contains(t, f.sched.Status().LastError, "disk full")

	flaky.heal()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, f.clock.BlockUntilContext(waitCtx, 1))
	f.clock.Advance(5 * time.Minute)

	require.Eventually(t, func() bool {
		st := f.sched.Status()
		return st.State == StateSleeping && st.CyclesRun == 2 && st.LastError == ""
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestSchedulerForceWakesSleepingLoop(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t, SchedulerOptions{Interval: time.Hour, SendStartup: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan error, 1)
	go func() { stopped <- f.sched.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.sched.Status().State == StateSleeping
	}, 5*time.Second, 5*time.Millisecond)
	require.Len(t, f.notifier.messages(), 1)
	assert.True(t, strings.Contains(f.notifier.messages()[0], "started"))
	assert.Equal(t, f.clock.Now().Add(time.Hour), f.sched.Status().NextRunAt)

	assert.Equal(t, ForceAccepted, f.sched.ForceCycle())
	require.Eventually(t, func() bool {
		st := f.sched.Status()
		return st.CyclesRun == 2 && st.State == StateSleeping
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-stopped)
	assert.Equal(t, StateIdle, f.sched.Status().State)
}

func TestSchedulerRecoversCyclePanic(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t, SchedulerOptions{}, abujaListing("Toyota A", "", "/a"))
	f.notifier.onSend = func(string) { panic("formatter bug") }

	_, err := f.sched.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "formatter bug")

	// the cycle lock is released after a panic
	f.notifier.onSend = nil
	_, err = f.sched.RunCycle(context.Background())
	assert.NoError(t, err)
}

func TestSchedulerFetchesUnderCycleID(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t, SchedulerOptions{})

	first, err := f.sched.RunCycle(context.Background())
	require.NoError(t, err)
	second, err := f.sched.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{first.ID, second.ID}, f.source.seenCycles())
}
