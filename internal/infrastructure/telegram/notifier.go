package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"DealScanner/internal/ports"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	maxMessageLen  = 4096
)

// Notifier sends HTML messages to a Telegram chat via the bot API.
type Notifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
}

var _ ports.Notifier = (*Notifier)(nil)

// Option customizes a Notifier.
type Option func(*Notifier)

// WithBaseURL points the notifier at another API root.
func WithBaseURL(base string) Option {
	return func(n *Notifier) {
		if base != "" {
			n.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(n *Notifier) {
		if client != nil {
			n.client = client
		}
	}
}

// WithRate limits outgoing messages per second; zero disables the limit.
func WithRate(perSecond float64) Option {
	return func(n *Notifier) {
		if perSecond <= 0 {
			n.limiter = nil
			return
		}
		n.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string, opts ...Option) *Notifier {
	n := &Notifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  defaultBaseURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(1), 1),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ForChat returns a notifier for another chat sharing client and rate limit.
func (n *Notifier) ForChat(chatID string) *Notifier {
	clone := *n
	clone.chatID = chatID
	return &clone
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts an HTML message. A text over Telegram's limit is stripped to plain
// text before truncating, so a cut never leaves a broken tag or entity behind.
func (n *Notifier) Send(ctx context.Context, text string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	body, mode := fitMessage(text)
	form.Set("text", body)
	if mode != "" {
		form.Set("parse_mode", mode)
	}
	form.Set("disable_web_page_preview", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", redact(err, n.botToken))
	}
	defer resp.Body.Close()

	var reply apiResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &reply)

	if resp.StatusCode != http.StatusOK || !reply.OK {
		if reply.Description != "" {
			return fmt.Errorf("telegram error: %s: %s", resp.Status, reply.Description)
		}
		return fmt.Errorf("telegram error: %s", resp.Status)
	}
	return nil
}

func fitMessage(text string) (string, string) {
	if utf8.RuneCountInString(text) <= maxMessageLen {
		return text, "HTML"
	}
	return truncate(plainText(text), maxMessageLen), ""
}

// plainText drops markup and unescapes entities; link targets follow their text.
func plainText(markup string) string {
	z := html.NewTokenizer(strings.NewReader(markup))
	var (
		b    strings.Builder
		href string
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken:
			if name, hasAttr := z.TagName(); string(name) == "a" && hasAttr {
				for {
					key, val, more := z.TagAttr()
					if string(key) == "href" {
						href = string(val)
					}
					if !more {
						break
					}
				}
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "a" && href != "" {
				b.WriteString(" " + href)
				href = ""
			}
		}
	}
}

func truncate(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit-1]) + "…"
}

// redact strips the bot token from transport errors, which embed the request URL.
func redact(err error, token string) error {
	if token == "" {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "***"))
}

// LogNotifier writes messages to the log instead of sending them.
type LogNotifier struct {
	logger *slog.Logger
}

var _ ports.Notifier = (*LogNotifier)(nil)

// NewLogNotifier is used for dry runs and when Telegram is not configured.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, text string) error {
	if n.logger != nil {
		n.logger.Info("notification", "text", text)
	}
	return nil
}
