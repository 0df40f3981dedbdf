package parser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"DealScanner/internal/config"
	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
	"DealScanner/internal/scanner"
)

// StrategySource implements ListingSource for one page of a configured site.
// Pages of the same site share one Pool so they never fetch concurrently.
type StrategySource struct {
	name    string
	baseURL string
	request scanner.Request
	pool    *scanner.Pool
	logger  *slog.Logger
}

var _ ports.ListingSource = (*StrategySource)(nil)

// SourceOptions carries shared settings for BuildSources.
type SourceOptions struct {
	Identities []config.IdentityConfig
	Policy     scanner.RetryPolicy
	Clock      clockwork.Clock
	Logger     *slog.Logger
}

// BuildSources resolves each site's strategy and returns one source per page.
func BuildSources(reg *scanner.Registry, sites []config.SiteConfig, opts SourceOptions) ([]ports.ListingSource, error) {
	if reg == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	var sources []ports.ListingSource
	for _, site := range sites {
		strategy, err := reg.Resolve(site.Strategy)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site.Name, err)
		}

		identities := toIdentities(site.Identities)
		if len(identities) == 0 {
			identities = toIdentities(opts.Identities)
		}
		if len(identities) == 0 {
			identities = scanner.DefaultIdentities()
		}

		var log *slog.Logger
		if opts.Logger != nil {
			log = opts.Logger.With("site", site.Name, "strategy", site.Strategy)
		}
		pool := scanner.NewPool(strategy, identities, opts.Policy,
			scanner.WithName(site.Name),
			scanner.WithClock(opts.Clock),
			scanner.WithLogger(log),
		)

		for _, page := range site.Pages {
			name := site.Name
			if page.Name != "" {
				name = site.Name + "/" + page.Name
			}
			baseURL := site.BaseURL
			if baseURL == "" {
				baseURL = page.URL
			}
			sources = append(sources, &StrategySource{
				name:    name,
				baseURL: baseURL,
				pool:    pool,
				logger:  log,
				request: scanner.Request{
					SiteName:     site.Name,
					URL:          page.URL,
					Selectors:    toSelectors(site.Selectors),
					Limit:        site.Limit,
					MinBodyBytes: site.MinBodyBytes,
					Options:      site.Options,
				},
			})
		}
	}
	return sources, nil
}

// Name identifies the source in logs and alerts.
func (s *StrategySource) Name() string {
	return s.name
}

// BaseURL resolves relative listing links.
func (s *StrategySource) BaseURL() string {
	return s.baseURL
}

// Fetch runs the page request through the site's pool.
func (s *StrategySource) Fetch(ctx context.Context) ([]domain.RawListing, error) {
	s.debug("fetch page", "url", s.request.URL)
	listings, err := s.pool.Fetch(ctx, s.request)
	if err != nil {
		return nil, err
	}
	s.debug("page produced listings", "count", len(listings))
	return listings, nil
}

// State exposes the pool state for diagnostics.
func (s *StrategySource) State() scanner.ConnectorState {
	return s.pool.State()
}

func toIdentities(cfg []config.IdentityConfig) []scanner.Identity {
	out := make([]scanner.Identity, 0, len(cfg))
	for _, id := range cfg {
		out = append(out, scanner.Identity{
			Name:      id.Name,
			ProxyURL:  id.ProxyURL,
			UserAgent: id.UserAgent,
			Headers:   id.Headers,
		})
	}
	return out
}

func toSelectors(cfg config.SelectorConfig) scanner.Selectors {
	return scanner.Selectors{
		Card:        cfg.Card,
		Title:       cfg.Title,
		Price:       cfg.Price,
		Location:    cfg.Location,
		Link:        cfg.Link,
		Description: cfg.Description,
	}
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
