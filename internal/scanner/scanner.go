package scanner

import (
	"context"
	"fmt"
	"sort"

	"DealScanner/internal/domain"
)

// Selectors are CSS selectors used by HTML strategies to pull listings out of a page.
type Selectors struct {
	Card        string
	Title       string
	Price       string
	Location    string
	Link        string
	Description string
}

// Request carries all parameters required to fetch one page of one source.
type Request struct {
	SiteName     string
	URL          string
	Selectors    Selectors
	Limit        int
	MinBodyBytes int
	Options      map[string]string
}

// Option returns a request option or def when unset.
func (r Request) Option(key, def string) string {
	if v, ok := r.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// FetchResult is what a connector produced for one attempt. Blocked means the
// source refused or degraded automated access; Listings is then ignored.
type FetchResult struct {
	Listings   []domain.RawListing
	Blocked    bool
	Reason     string
	StatusCode int
}

// Connector captures a single fetch strategy (static HTML, rendered browser, crawl API).
// Implementations must not panic and must report blocking through FetchResult.Blocked
// rather than an opaque error.
type Connector interface {
	Name() string
	Fetch(ctx context.Context, req Request, id Identity) (FetchResult, error)
}

// Registry keeps a mapping from strategy names to their implementations.
type Registry struct {
	connectors map[string]Connector
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{connectors: map[string]Connector{}}
}

// Register adds or replaces a connector implementation.
func (r *Registry) Register(connector Connector) {
	if r.connectors == nil {
		r.connectors = map[string]Connector{}
	}
	r.connectors[connector.Name()] = connector
}

// Resolve returns a connector by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Connector, error) {
	if connector, ok := r.connectors[name]; ok {
		return connector, nil
	}
	return nil, fmt.Errorf("strategy %s is not registered", name)
}

// Names lists registered strategies in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
