package usecase

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"DealScanner/internal/domain"
)

func TestFormatAlert(t *testing.T) {
	t.Parallel()

	f := MessageFormatter{ScoreCeiling: 10, Location: time.UTC}
	l := domain.Listing{
		ID:           "https://jiji.ng/ad/1",
		URL:          "https://jiji.ng/ad/1?a=1&b=2",
		Title:        "Benz C300 <clean>",
		PriceText:    "₦ 9,000,000",
		LocationText: "Wuse, Abuja",
		SourceName:   "jiji/abuja",
		Classification: domain.ClassificationResult{
			Score:           13,
			MatchedKeywords: []string{"urgent sale", "must sell", "urgent", "now"},
			Tier:            domain.TierExtreme,
		},
		Profile: domain.SellerProfile{DirectSeller: true, Distress: true},
		FoundAt: time.Date(2024, 2, 3, 4, 5, 0, 0, time.UTC),
	}

	msg := f.Alert(l)
	assert.Contains(t, msg, "EXTREME DEAL</b> (10/10)")
	assert.Contains(t, msg, "Benz C300 &lt;clean&gt;")
	assert.Contains(t, msg, "urgent sale, must sell, urgent")
	assert.NotContains(t, msg, "urgent, now")
	assert.Contains(t, msg, "DIRECT | DISTRESS")
	assert.Contains(t, msg, `href="https://jiji.ng/ad/1?a=1&amp;b=2"`)
	assert.Contains(t, msg, "2024-02-03 04:05")
	assert.Contains(t, msg, "Wuse, Abuja")
}

func TestFormatAlertClipsLongFieldsBeforeEscaping(t *testing.T) {
	t.Parallel()

	l := domain.Listing{
		URL:          "https://jiji.ng/ad/2",
		Title:        strings.Repeat("&", 5000),
		PriceText:    strings.Repeat("₦", 5000),
		LocationText: strings.Repeat("<", 5000),
		SourceName:   "jiji/abuja",
		Classification: domain.ClassificationResult{Score: 3, Tier: domain.TierGood},
	}

	msg := MessageFormatter{ScoreCeiling: 10}.Alert(l)
	assert.Less(t, utf8.RuneCountInString(msg), 4096)
	assert.Equal(t, maxTitleText-1, strings.Count(msg, "&amp;"))
	assert.Equal(t, maxFieldText-1, strings.Count(msg, "&lt;"))
	assert.Contains(t, msg, "&amp;…</b>")
}

func TestFormatAlertWithoutCeiling(t *testing.T) {
	t.Parallel()

	msg := MessageFormatter{}.Alert(domain.Listing{
		Title:          "Toyota",
		Classification: domain.ClassificationResult{Score: 2, Tier: domain.TierNormal},
	})
	assert.Contains(t, msg, "NEW LISTING</b> (2)")
	assert.NotContains(t, msg, "💰")
}

func TestFormatSummary(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	msg := MessageFormatter{Location: time.UTC}.Summary(CycleReport{
		StartedAt:     start,
		FinishedAt:    start.Add(42 * time.Second),
		Sources:       3,
		FailedSources: 1,
		Found:         5,
		Delivered:     4,
		SendFailures:  1,
	}, start.Add(10*time.Minute))

	assert.Contains(t, msg, "2 ok / 1 failed")
	assert.Contains(t, msg, "Delivered: 4 (1 failed)")
	assert.Contains(t, msg, "42s")
	assert.Contains(t, msg, "2024-01-01 10:10")
}

func TestFormatFailureTruncates(t *testing.T) {
	t.Parallel()

	long := errors.New(strings.Repeat("é", 900) + "<tail>")
	msg := MessageFormatter{}.Failure(long, time.Now(), 5*time.Minute)

	assert.Contains(t, msg, "Scan cycle failed")
	assert.Contains(t, msg, "…")
	assert.NotContains(t, msg, "tail")
	assert.Contains(t, msg, "Retrying in 5m0s")
}

func TestFormatStartup(t *testing.T) {
	t.Parallel()

	msg := MessageFormatter{}.Startup(3, 10*time.Minute, time.Now())
	assert.Contains(t, msg, "Watching 3 sources")
	assert.Contains(t, msg, "every 10m0s")
}
