package scanner

import "context"

type cycleKey struct{}

// WithCycle tags ctx with the scan cycle it belongs to. Pools keep blocked
// identities retired and count failures per cycle id; a Fetch without one is
// treated as a cycle of its own.
func WithCycle(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleKey{}, id)
}

// CycleFrom returns the cycle id set by WithCycle.
func CycleFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(cycleKey{}).(string)
	return id, ok && id != ""
}

// cycleState is what a Pool remembers about the cycle in progress. Every page
// of a site shares it.
type cycleState struct {
	id        string
	retired   map[int]bool
	failed    int
	succeeded bool
}
