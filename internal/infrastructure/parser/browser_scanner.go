package parser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"DealScanner/internal/scanner"
)

// RenderFunc returns the rendered outer HTML of pageURL.
type RenderFunc func(ctx context.Context, pageURL string, id scanner.Identity, scrolls int) (string, error)

// RenderedScanner loads pages in headless Chrome for sites that build their
// listing grid with JavaScript.
type RenderedScanner struct {
	render  RenderFunc
	timeout time.Duration
}

var _ scanner.Connector = (*RenderedScanner)(nil)

// NewRenderedScanner uses chromedp unless render is provided.
func NewRenderedScanner(render RenderFunc, timeout time.Duration) *RenderedScanner {
	if render == nil {
		render = renderWithChrome
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &RenderedScanner{render: render, timeout: timeout}
}

// Name identifies the strategy inside the registry.
func (r *RenderedScanner) Name() string {
	return "rendered"
}

// Fetch renders req.URL and extracts listing cards. Option "scrolls" controls
// how many times the page is scrolled to trigger lazy loading (default 2).
func (r *RenderedScanner) Fetch(ctx context.Context, req scanner.Request, id scanner.Identity) (scanner.FetchResult, error) {
	scrolls, err := strconv.Atoi(req.Option("scrolls", "2"))
	if err != nil || scrolls < 0 {
		scrolls = 2
	}

	renderCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	html, err := r.render(renderCtx, req.URL, id, scrolls)
	if err != nil {
		return scanner.FetchResult{}, &FetchError{URL: req.URL, Message: "render page", Cause: err, Retryable: true}
	}

	if blocked, reason := DetectBlocked(200, []byte(html), req.MinBodyBytes); blocked {
		return scanner.FetchResult{Blocked: true, Reason: reason}, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return scanner.FetchResult{}, &FetchError{URL: req.URL, Message: "parse rendered document", Cause: err}
	}

	return scanner.FetchResult{Listings: Extract(doc, req.Selectors, req.Limit), StatusCode: 200}, nil
}

func renderWithChrome(ctx context.Context, pageURL string, id scanner.Identity, scrolls int) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	if id.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(id.UserAgent))
	}
	if id.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(id.ProxyURL))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	actions := []chromedp.Action{
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(2 * time.Second),
	}
	var height float64
	for i := 0; i < scrolls; i++ {
		actions = append(actions,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`, &height),
			chromedp.Sleep(1500*time.Millisecond),
		)
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html))

	if err := chromedp.Run(browserCtx, actions...); err != nil {
		return "", fmt.Errorf("browser rendering failed: %w", err)
	}
	return html, nil
}
