package usecase

import (
	"fmt"
	"html"
	"strings"
	"time"

	"DealScanner/internal/domain"
)

const (
	maxAlertKeywords = 3
	maxFailureText   = 500
	maxTitleText     = 200
	maxFieldText     = 100
	timeLayout       = "2006-01-02 15:04"
)

var tierHeadline = map[domain.Tier]string{
	domain.TierExtreme: "🚨 EXTREME DEAL",
	domain.TierHot:     "🔥 HOT DEAL",
	domain.TierGood:    "✅ GOOD DEAL",
	domain.TierNormal:  "🚗 NEW LISTING",
}

// MessageFormatter renders Telegram HTML messages.
type MessageFormatter struct {
	ScoreCeiling int
	Location     *time.Location
}

func (f MessageFormatter) stamp(t time.Time) string {
	if f.Location != nil {
		t = t.In(f.Location)
	}
	return t.Format(timeLayout)
}

// Alert renders one listing.
func (f MessageFormatter) Alert(l domain.Listing) string {
	var b strings.Builder
	c := l.Classification

	if f.ScoreCeiling > 0 {
		fmt.Fprintf(&b, "<b>%s</b> (%d/%d)\n", tierHeadline[c.Tier], c.DisplayScore(f.ScoreCeiling), f.ScoreCeiling)
	} else {
		fmt.Fprintf(&b, "<b>%s</b> (%d)\n", tierHeadline[c.Tier], c.Score)
	}
	if l.LocationText != "" {
		fmt.Fprintf(&b, "📍 %s\n", html.EscapeString(clip(l.LocationText, maxFieldText)))
	}
	fmt.Fprintf(&b, "\n<b>%s</b>\n", html.EscapeString(clip(l.Title, maxTitleText)))
	if l.PriceText != "" {
		fmt.Fprintf(&b, "💰 %s\n", html.EscapeString(clip(l.PriceText, maxFieldText)))
	}
	if kws := c.TopKeywords(maxAlertKeywords); len(kws) > 0 {
		fmt.Fprintf(&b, "💡 %s\n", html.EscapeString(strings.Join(kws, ", ")))
	}
	if badges := l.Profile.Badges(); len(badges) > 0 {
		fmt.Fprintf(&b, "<code>%s</code>\n", strings.Join(badges, " | "))
	}
	fmt.Fprintf(&b, "\n🔗 <a href=\"%s\">View listing</a>\n", html.EscapeString(l.URL))
	fmt.Fprintf(&b, "🌐 %s · 🕐 %s", html.EscapeString(clip(l.SourceName, maxFieldText)), f.stamp(l.FoundAt))
	return b.String()
}

// Summary renders the end-of-cycle report.
func (f MessageFormatter) Summary(r CycleReport, next time.Time) string {
	var b strings.Builder
	b.WriteString("<b>📊 Scan complete</b>\n")
	fmt.Fprintf(&b, "Sources: %d ok / %d failed\n", r.Sources-r.FailedSources, r.FailedSources)
	fmt.Fprintf(&b, "New matches: %d\n", r.Found)
	fmt.Fprintf(&b, "Delivered: %d", r.Delivered)
	if r.SendFailures > 0 {
		fmt.Fprintf(&b, " (%d failed)", r.SendFailures)
	}
	fmt.Fprintf(&b, "\nDuration: %s", r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	if !next.IsZero() {
		fmt.Fprintf(&b, "\nNext run: %s", f.stamp(next))
	}
	return b.String()
}

// Startup renders the message sent when the loop starts.
func (f MessageFormatter) Startup(sources int, interval time.Duration, now time.Time) string {
	var b strings.Builder
	b.WriteString("<b>🤖 Deal scanner started</b>\n\n")
	fmt.Fprintf(&b, "🕐 %s\n", f.stamp(now))
	fmt.Fprintf(&b, "📡 Watching %d sources\n", sources)
	fmt.Fprintf(&b, "⏰ Checking every %s\n\n", interval)
	b.WriteString("Alerts include deal tier, price, location and seller badges.")
	return b.String()
}

// Failure renders an operator alert for a cycle-fatal error.
func (f MessageFormatter) Failure(err error, at time.Time, retryIn time.Duration) string {
	text := "unknown error"
	if err != nil {
		text = err.Error()
	}
	text = clip(text, maxFailureText)
	return fmt.Sprintf("<b>⚠️ Scan cycle failed</b>\n🕐 %s\n<code>%s</code>\nRetrying in %s",
		f.stamp(at), html.EscapeString(text), retryIn)
}

// clip shortens raw text before it is escaped, so entities are never cut.
func clip(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
