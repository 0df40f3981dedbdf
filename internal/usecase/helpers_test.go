package usecase

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"DealScanner/internal/classifier"
	"DealScanner/internal/domain"
	"DealScanner/internal/infrastructure/storage"
	"DealScanner/internal/ledger"
	"DealScanner/internal/ports"
	"DealScanner/internal/scanner"
)

func fixtureClassifier() *classifier.Classifier {
	return classifier.New(classifier.Tables{
		Keywords: []classifier.WeightedKeyword{
			{Keyword: "urgent sale", Weight: 5},
			{Keyword: "must sell", Weight: 5},
			{Keyword: "urgent", Weight: 3},
			{Keyword: "negotiable", Weight: 2},
			{Keyword: "now", Weight: 1},
		},
		Makes: []classifier.MakeKeywords{
			{Make: "BENZ", Keywords: []string{"mercedes", "benz"}},
			{Make: "TOYOTA", Keywords: []string{"toyota", "camry"}},
		},
		Areas: []string{"abuja", "gwarinpa", "wuse"},
	})
}

type fakeSource struct {
	name     string
	base     string
	listings []domain.RawListing
	err      error
	panicMsg any
	block    chan struct{}
	calls    atomic.Int32

	mu     sync.Mutex
	cycles []string
}

var _ ports.ListingSource = (*fakeSource)(nil)

func (f *fakeSource) seenCycles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cycles...)
}

func (f *fakeSource) Name() string    { return f.name }
func (f *fakeSource) BaseURL() string { return f.base }

func (f *fakeSource) Fetch(ctx context.Context) ([]domain.RawListing, error) {
	f.calls.Add(1)
	if id, ok := scanner.CycleFrom(ctx); ok {
		f.mu.Lock()
		f.cycles = append(f.cycles, id)
		f.mu.Unlock()
	}
	if f.block != nil {
		<-f.block
	}
	if f.panicMsg != nil {
		panic(f.panicMsg)
	}
	return f.listings, f.err
}

type fakeNotifier struct {
	mu     sync.Mutex
	sent   []string
	failOn string
	onSend func(text string)
}

var _ ports.Notifier = (*fakeNotifier)(nil)

func (n *fakeNotifier) Send(_ context.Context, text string) error {
	if n.onSend != nil {
		n.onSend(text)
	}
	if n.failOn != "" && strings.Contains(text, n.failOn) {
		return errSendRejected
	}
	n.mu.Lock()
	n.sent = append(n.sent, text)
	n.mu.Unlock()
	return nil
}

func (n *fakeNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

type sendError string

func (e sendError) Error() string { return string(e) }

const errSendRejected = sendError("telegram rejected message")

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(context.Background(), storage.NewMemoryStore())
	require.NoError(t, err)
	return l
}

func abujaListing(title, description, path string) domain.RawListing {
	return domain.RawListing{
		Title:       title,
		Description: description,
		URL:         path,
		Price:       "₦ 5,000,000",
		Location:    "Gwarinpa, Abuja",
	}
}
