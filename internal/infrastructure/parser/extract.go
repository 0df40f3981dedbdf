package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"DealScanner/internal/domain"
	"DealScanner/internal/scanner"
)

// DefaultLimit caps listings taken from one page.
const DefaultLimit = 20

// DefaultSelectors match the common classified-card markup.
var DefaultSelectors = scanner.Selectors{
	Card:     "div.b-list-advert-base, div.qa-advert-list-item",
	Title:    "[class*=title], h3",
	Price:    "[class*=price]",
	Location: "[class*=region], [class*=location]",
	Link:     "a[href]",
}

// Extract pulls up to limit listings out of doc. Cards without a title or link are skipped.
func Extract(doc *goquery.Document, sel scanner.Selectors, limit int) []domain.RawListing {
	sel = withDefaults(sel)
	if limit <= 0 {
		limit = DefaultLimit
	}

	var out []domain.RawListing
	doc.Find(sel.Card).EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if listing, ok := parseCard(card, sel); ok {
			out = append(out, listing)
		}
		return len(out) < limit
	})
	return out
}

func parseCard(card *goquery.Selection, sel scanner.Selectors) (domain.RawListing, bool) {
	title := text(card, sel.Title)
	if title == "" {
		title = collapse(card.Text())
	}

	href, ok := card.Find(sel.Link).First().Attr("href")
	if !ok && goquery.NodeName(card) == "a" {
		href, ok = card.Attr("href")
	}
	href = strings.TrimSpace(href)
	if title == "" || !ok || href == "" {
		return domain.RawListing{}, false
	}

	return domain.RawListing{
		Title:       title,
		Description: text(card, sel.Description),
		URL:         href,
		Price:       text(card, sel.Price),
		Location:    text(card, sel.Location),
	}, true
}

func text(card *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return collapse(card.Find(selector).First().Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func withDefaults(sel scanner.Selectors) scanner.Selectors {
	if sel.Card == "" {
		sel.Card = DefaultSelectors.Card
	}
	if sel.Title == "" {
		sel.Title = DefaultSelectors.Title
	}
	if sel.Price == "" {
		sel.Price = DefaultSelectors.Price
	}
	if sel.Location == "" {
		sel.Location = DefaultSelectors.Location
	}
	if sel.Link == "" {
		sel.Link = DefaultSelectors.Link
	}
	return sel
}
