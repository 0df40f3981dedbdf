package domain

import "time"

// Make is one of the target vehicle makes; the zero value means no match.
type Make string

// Tier is a discrete deal-quality bucket derived from a classification score.
type Tier string

const (
	TierExtreme Tier = "EXTREME"
	TierHot     Tier = "HOT"
	TierGood    Tier = "GOOD"
	TierNormal  Tier = "NORMAL"
)

// RawListing is what a connector extracts from a source before normalization.
type RawListing struct {
	Title       string
	Description string
	URL         string
	Price       string
	Location    string
	Attributes  map[string]string
}

// Listing is a normalized classified-ad record. Values are produced by the
// aggregator and never mutated afterwards.
type Listing struct {
	ID             string
	URL            string
	Title          string
	Description    string
	PriceText      string
	LocationText   string
	SourceName     string
	Make           Make
	Classification ClassificationResult
	Profile        SellerProfile
	FoundAt        time.Time
}

// Text returns the title and description joined the way the classifier scores them.
func (l Listing) Text() string {
	return l.Title + " " + l.Description
}

// ClassificationResult holds the keyword score of a listing.
type ClassificationResult struct {
	Score           int
	MatchedKeywords []string
	Tier            Tier
}

// DisplayScore caps the score at ceiling; a non-positive ceiling disables the cap.
func (c ClassificationResult) DisplayScore(ceiling int) int {
	if ceiling > 0 && c.Score > ceiling {
		return ceiling
	}
	return c.Score
}

// TopKeywords returns at most n matched keywords in table order.
func (c ClassificationResult) TopKeywords(n int) []string {
	if n <= 0 || len(c.MatchedKeywords) <= n {
		return c.MatchedKeywords
	}
	return c.MatchedKeywords[:n]
}

// SellerProfile flags phrases that hint at who is selling and why.
type SellerProfile struct {
	DirectSeller bool
	Used         bool
	Cheap        bool
	Distress     bool
}

// Badges renders the set flags in a fixed order.
func (p SellerProfile) Badges() []string {
	var badges []string
	if p.DirectSeller {
		badges = append(badges, "DIRECT")
	}
	if p.Used {
		badges = append(badges, "USED")
	}
	if p.Cheap {
		badges = append(badges, "CHEAP")
	}
	if p.Distress {
		badges = append(badges, "DISTRESS")
	}
	return badges
}

// LedgerEntry records that a listing id was delivered.
type LedgerEntry struct {
	ID          string
	DeliveredAt time.Time
}
