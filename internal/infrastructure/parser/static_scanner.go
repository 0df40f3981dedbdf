package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"DealScanner/internal/scanner"
)

const defaultMaxBody = 8 << 20

// StaticScanner fetches a listing page over plain HTTP and parses it with goquery.
type StaticScanner struct {
	base    *http.Client
	maxBody int64

	mu      sync.Mutex
	proxied map[string]*http.Client
}

var _ scanner.Connector = (*StaticScanner)(nil)

// NewStaticScanner wires an HTTP client; nil gets a client with a 20s timeout.
func NewStaticScanner(client *http.Client) *StaticScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &StaticScanner{
		base:    client,
		maxBody: defaultMaxBody,
		proxied: map[string]*http.Client{},
	}
}

// Name identifies the strategy inside the registry.
func (s *StaticScanner) Name() string {
	return "static"
}

// Fetch downloads req.URL through the identity and extracts listing cards.
func (s *StaticScanner) Fetch(ctx context.Context, req scanner.Request, id scanner.Identity) (scanner.FetchResult, error) {
	client, err := s.clientFor(id)
	if err != nil {
		return scanner.FetchResult{}, &FetchError{URL: req.URL, Message: "configure proxy", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return scanner.FetchResult{}, &FetchError{URL: req.URL, Message: "build request", Cause: err}
	}
	applyIdentity(httpReq, id)

	resp, err := client.Do(httpReq)
	if err != nil {
		return scanner.FetchResult{}, &FetchError{URL: req.URL, Message: "request page", Cause: err, Retryable: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody))
	if err != nil {
		return scanner.FetchResult{}, &FetchError{URL: req.URL, Message: "read body", Cause: err, Retryable: true}
	}

	if blocked, reason := DetectBlocked(resp.StatusCode, body, req.MinBodyBytes); blocked {
		return scanner.FetchResult{Blocked: true, Reason: reason, StatusCode: resp.StatusCode}, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return scanner.FetchResult{}, &FetchError{URL: req.URL, Message: "parse document", Cause: err}
	}

	return scanner.FetchResult{
		Listings:   Extract(doc, req.Selectors, req.Limit),
		StatusCode: resp.StatusCode,
	}, nil
}

func (s *StaticScanner) clientFor(id scanner.Identity) (*http.Client, error) {
	if id.ProxyURL == "" {
		return s.base, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.proxied[id.ProxyURL]; ok {
		return c, nil
	}
	proxyURL, err := url.Parse(id.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyURL(proxyURL)
	c := &http.Client{
		Timeout:   s.base.Timeout,
		Transport: transport,
	}
	s.proxied[id.ProxyURL] = c
	return c, nil
}

func applyIdentity(req *http.Request, id scanner.Identity) {
	for k, v := range scanner.BrowserHeaders {
		req.Header.Set(k, v)
	}
	if id.UserAgent != "" {
		req.Header.Set("User-Agent", id.UserAgent)
	}
	for k, v := range id.Headers {
		req.Header.Set(k, v)
	}
}
