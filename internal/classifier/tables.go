package classifier

import (
	"strings"

	"DealScanner/internal/domain"
)

// WeightedKeyword is one row of the scoring table.
type WeightedKeyword struct {
	Keyword string
	Weight  int
}

// MakeKeywords lists the title keywords that identify one make.
type MakeKeywords struct {
	Make     domain.Make
	Keywords []string
}

// ProfileTables holds the phrase sets behind SellerProfile flags.
type ProfileTables struct {
	DirectSeller []string
	Used         []string
	Cheap        []string
	Distress     []string
}

// Tables is the complete keyword configuration of a Classifier. Order matters:
// Keywords order drives MatchedKeywords, Makes order drives IdentifyMake ties.
type Tables struct {
	Keywords []WeightedKeyword
	Makes    []MakeKeywords
	Areas    []string
	Profile  ProfileTables
}

// clone returns a lower-cased deep copy so later edits to the caller's slices
// cannot leak into a constructed Classifier.
func (t Tables) clone() Tables {
	out := Tables{
		Keywords: make([]WeightedKeyword, 0, len(t.Keywords)),
		Makes:    make([]MakeKeywords, 0, len(t.Makes)),
		Areas:    lowerAll(t.Areas),
		Profile: ProfileTables{
			DirectSeller: lowerAll(t.Profile.DirectSeller),
			Used:         lowerAll(t.Profile.Used),
			Cheap:        lowerAll(t.Profile.Cheap),
			Distress:     lowerAll(t.Profile.Distress),
		},
	}
	for _, kw := range t.Keywords {
		k := strings.ToLower(strings.TrimSpace(kw.Keyword))
		if k == "" {
			continue
		}
		out.Keywords = append(out.Keywords, WeightedKeyword{Keyword: k, Weight: kw.Weight})
	}
	for _, m := range t.Makes {
		out.Makes = append(out.Makes, MakeKeywords{Make: m.Make, Keywords: lowerAll(m.Keywords)})
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// DefaultTables returns the Abuja deployment tables.
func DefaultTables() Tables {
	return Tables{
		Keywords: []WeightedKeyword{
			{"distress sale", 5}, {"urgent sale", 5}, {"must sell", 5}, {"need cash", 5},
			{"desperate", 5}, {"emergency", 5}, {"quick sale", 5},

			{"relocation", 4}, {"relocating", 4}, {"leaving abroad", 4}, {"travelling", 4},
			{"moving abroad", 4}, {"change of plan", 4},

			{"price crash", 3}, {"below market", 3}, {"cheap offer", 3}, {"negotiable", 3},
			{"best offer", 3}, {"price reduced", 3}, {"slashed price", 3},

			{"today only", 3}, {"this week", 3}, {"month end", 3}, {"last price", 3},

			{"discount", 1}, {"sale", 1}, {"clearance", 1}, {"asap", 1}, {"now", 1},
		},
		Makes: []MakeKeywords{
			{Make: "BENZ", Keywords: []string{"mercedes", "benz", "c300", "e350", "gle", "glk", "c200", "e200", "s-class", "ml", "c250", "e250", "gl450"}},
			{Make: "LEXUS", Keywords: []string{"lexus", "rx350", "rx330", "rx300", "es350", "gx460", "lx570", "gs", "ls", "rx400", "rx450"}},
			{Make: "TOYOTA", Keywords: []string{"venza", "avalon", "camry", "toyota venza", "toyota avalon", "toyota camry"}},
		},
		Areas: []string{
			"abuja", "fct", "garki", "wuse", "maitama", "asokoro",
			"gwarinpa", "kubwa", "nyanya", "karu", "jabi", "utako",
			"wuye", "life camp", "apo", "lugbe", "kado", "gudu",
			"guzape", "durumi", "katampe", "dawaki", "gwagwalada",
		},
		Profile: ProfileTables{
			DirectSeller: []string{
				"direct owner", "owner selling", "personal use", "personal car",
				"direct from owner", "one owner", "first owner", "private seller",
				"not a dealer", "no agents", "no brokers", "sell by owner",
				"owner direct", "genuine owner", "myself selling", "i am selling",
				"my personal", "i sell", "owner dealing", "physically here",
				"you can come", "come see", "inspection welcome", "see and buy",
				"my car", "i dey sell", "person dey sell", "owner dey",
				"dey sell", "we dey negotiate", "cash carry", "baby use", "adult driven",
			},
			Used: []string{
				"used", "tokunbo", "fairly used", "second hand", "pre-owned",
				"locally used", "foreign used", "cleared", "duty paid", "custom cleared",
			},
			Cheap: []string{
				"cheap", "affordable", "bargain", "low price", "best price",
				"price drop", "reduced", "negotiable", "make offer",
				"budget", "economical", "wallet friendly", "cheapest",
				"price neg", "haggle", "best offer", "cash price", "good price",
				"give away", "giveaway", "below market", "fair price",
			},
			Distress: []string{
				"urgent", "distress", "must sell", "need to sell", "forced sale", "quick sale",
				"relocating", "relocation", "leaving abroad", "traveling", "travelling",
				"moving abroad", "leaving nigeria", "visa approved", "greencard",
				"moving overseas", "emigrating", "japa", "need cash", "quick cash",
				"emergency", "school fees", "medical", "hospital", "need money",
				"price crash", "sacrifice", "clearance", "last price", "must go",
				"slashed", "cut price",
			},
		},
	}
}
