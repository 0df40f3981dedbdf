// Package classifier scores listing text with weighted keyword tables.
// All functions are pure: a Classifier is built once and only read afterwards.
package classifier

import (
	"strings"

	"DealScanner/internal/domain"
)

// DefaultScoreCeiling caps scores for display.
const DefaultScoreCeiling = 10

// Tier thresholds.
const (
	extremeThreshold = 7
	hotThreshold     = 5
	goodThreshold    = 3
)

// Classifier applies immutable Tables to listing text.
type Classifier struct {
	tables  Tables
	ceiling int
}

// Option customizes a Classifier.
type Option func(*Classifier)

// WithScoreCeiling overrides the display ceiling.
func WithScoreCeiling(ceiling int) Option {
	return func(c *Classifier) {
		c.ceiling = ceiling
	}
}

// New copies tables into a Classifier.
func New(tables Tables, opts ...Option) *Classifier {
	c := &Classifier{tables: tables.clone(), ceiling: DefaultScoreCeiling}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ScoreCeiling reports the display ceiling.
func (c *Classifier) ScoreCeiling() int {
	return c.ceiling
}

// Classify sums the weight of every keyword present in text. A keyword counts
// once regardless of how often it occurs, and overlapping phrases such as
// "urgent sale" and "sale" both fire.
func (c *Classifier) Classify(text string) domain.ClassificationResult {
	lower := strings.ToLower(text)
	result := domain.ClassificationResult{}
	for _, kw := range c.tables.Keywords {
		if strings.Contains(lower, kw.Keyword) {
			result.Score += kw.Weight
			result.MatchedKeywords = append(result.MatchedKeywords, kw.Keyword)
		}
	}
	result.Tier = TierFor(result.Score)
	return result
}

// TierFor maps a score onto its tier.
func TierFor(score int) domain.Tier {
	switch {
	case score >= extremeThreshold:
		return domain.TierExtreme
	case score >= hotThreshold:
		return domain.TierHot
	case score >= goodThreshold:
		return domain.TierGood
	default:
		return domain.TierNormal
	}
}

// IdentifyMake returns the first make, in table order, with any keyword in the
// title. The first table entry wins ties; there is no longest-match rule.
func (c *Classifier) IdentifyMake(title string) domain.Make {
	lower := strings.ToLower(title)
	for _, m := range c.tables.Makes {
		if containsAny(lower, m.Keywords) {
			return m.Make
		}
	}
	return ""
}

// IsInTargetRegion reports whether text mentions any configured area.
func (c *Classifier) IsInTargetRegion(text string) bool {
	return containsAny(strings.ToLower(text), c.tables.Areas)
}

// AreaOf returns the first configured area found in text, title-cased, or "".
func (c *Classifier) AreaOf(text string) string {
	lower := strings.ToLower(text)
	for _, area := range c.tables.Areas {
		if strings.Contains(lower, area) {
			return titleCase(area)
		}
	}
	return ""
}

// Profile flags seller phrases in text.
func (c *Classifier) Profile(text string) domain.SellerProfile {
	lower := strings.ToLower(text)
	p := c.tables.Profile
	return domain.SellerProfile{
		DirectSeller: containsAny(lower, p.DirectSeller),
		Used:         containsAny(lower, p.Used),
		Cheap:        containsAny(lower, p.Cheap),
		Distress:     containsAny(lower, p.Distress),
	}
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
