package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"DealScanner/internal/domain"
	"DealScanner/internal/scanner"
)

// CrawlAPIScanner reads listings that an external crawler already stored in a
// dataset (Apify-compatible API). req.URL is the API root; option "token" is
// sent as a bearer token and option "datasetId" pins a dataset instead of
// picking the latest.
type CrawlAPIScanner struct {
	client *http.Client
}

var _ scanner.Connector = (*CrawlAPIScanner)(nil)

// NewCrawlAPIScanner wires an HTTP client; nil gets a client with a 30s timeout.
func NewCrawlAPIScanner(client *http.Client) *CrawlAPIScanner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &CrawlAPIScanner{client: client}
}

// Name identifies the strategy inside the registry.
func (c *CrawlAPIScanner) Name() string {
	return "crawlapi"
}

type datasetList struct {
	Data struct {
		Items []struct {
			ID        string `json:"id"`
			ItemCount int    `json:"itemCount"`
			CreatedAt string `json:"createdAt"`
		} `json:"items"`
	} `json:"data"`
}

// Fetch resolves the dataset and maps its items onto raw listings.
func (c *CrawlAPIScanner) Fetch(ctx context.Context, req scanner.Request, id scanner.Identity) (scanner.FetchResult, error) {
	root := strings.TrimSuffix(req.URL, "/")
	token := req.Option("token", "")

	datasetID := req.Option("datasetId", "")
	if datasetID == "" {
		var list datasetList
		res, err := c.getJSON(ctx, root+"/v2/datasets", url.Values{
			"limit": {"1"},
			"desc":  {"1"},
		}, token, id, &list)
		if err != nil || res.Blocked {
			return res, err
		}
		if len(list.Data.Items) == 0 {
			return scanner.FetchResult{}, &FetchError{URL: root, Message: "no datasets found"}
		}
		datasetID = list.Data.Items[0].ID
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var items []map[string]any
	res, err := c.getJSON(ctx, root+"/v2/datasets/"+url.PathEscape(datasetID)+"/items", url.Values{
		"format": {"json"},
		"limit":  {strconv.Itoa(limit)},
	}, token, id, &items)
	if err != nil || res.Blocked {
		return res, err
	}

	fields := fieldMap(req)
	listings := make([]domain.RawListing, 0, len(items))
	for _, item := range items {
		listing := domain.RawListing{
			Title:       field(item, fields.title),
			Description: field(item, fields.description),
			URL:         field(item, fields.url),
			Price:       field(item, fields.price),
			Location:    field(item, fields.location),
		}
		if listing.Title == "" || listing.URL == "" {
			continue
		}
		listings = append(listings, listing)
	}

	return scanner.FetchResult{Listings: listings, StatusCode: res.StatusCode}, nil
}

func (c *CrawlAPIScanner) getJSON(ctx context.Context, endpoint string, query url.Values, token string, id scanner.Identity, dst any) (scanner.FetchResult, error) {
	target := endpoint + "?" + query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return scanner.FetchResult{}, &FetchError{URL: endpoint, Message: "build request", Cause: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if id.UserAgent != "" {
		httpReq.Header.Set("User-Agent", id.UserAgent)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return scanner.FetchResult{}, &FetchError{URL: endpoint, Message: "request dataset", Cause: redact(err, token), Retryable: true}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return scanner.FetchResult{Blocked: true, Reason: fmt.Sprintf("status %d", resp.StatusCode), StatusCode: resp.StatusCode}, nil
	case resp.StatusCode >= 500:
		return scanner.FetchResult{StatusCode: resp.StatusCode}, &FetchError{URL: endpoint, Message: "crawl api returned " + resp.Status, Retryable: true}
	case resp.StatusCode != http.StatusOK:
		return scanner.FetchResult{StatusCode: resp.StatusCode}, &FetchError{URL: endpoint, Message: "crawl api returned " + resp.Status}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, defaultMaxBody)).Decode(dst); err != nil {
		return scanner.FetchResult{StatusCode: resp.StatusCode}, &FetchError{URL: endpoint, Message: "decode response", Cause: err}
	}
	return scanner.FetchResult{StatusCode: resp.StatusCode}, nil
}

type itemFields struct {
	title, description, url, price, location string
}

func fieldMap(req scanner.Request) itemFields {
	return itemFields{
		title:       req.Option("titleField", "title"),
		description: req.Option("descriptionField", "description"),
		url:         req.Option("urlField", "url"),
		price:       req.Option("priceField", "price"),
		location:    req.Option("locationField", "location"),
	}
}

func field(item map[string]any, key string) string {
	v, ok := item[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// redact strips the token from transport errors, which quote the request URL.
func redact(err error, token string) error {
	if err == nil || token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "***"))
}
