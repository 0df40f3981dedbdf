package usecase

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var errUnresolvable = errors.New("listing url cannot be resolved")

var trackingParams = map[string]struct{}{
	"fbclid": {},
	"gclid":  {},
}

// NormalizeURL resolves rawURL against base and returns the absolute URL
// together with the canonical listing id derived from it.
func NormalizeURL(rawURL, base string) (absolute, id string, err error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", "", errUnresolvable
	}

	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", errUnresolvable, err)
	}
	if !ref.IsAbs() {
		baseURL, err := url.Parse(strings.TrimSpace(base))
		if err != nil || !baseURL.IsAbs() {
			return "", "", errUnresolvable
		}
		ref = baseURL.ResolveReference(ref)
	}

	scheme := strings.ToLower(ref.Scheme)
	if (scheme != "http" && scheme != "https") || ref.Hostname() == "" {
		return "", "", errUnresolvable
	}

	return ref.String(), canonicalID(ref), nil
}

// canonicalID folds the cosmetic differences between two links to the same ad:
// scheme and host case, a leading www., default ports, fragments, trailing
// slashes, tracking parameters and query order.
func canonicalID(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if rest, ok := strings.CutPrefix(host, "www."); ok {
		if _, err := publicsuffix.EffectiveTLDPlusOne(rest); err == nil {
			host = rest
		}
	}
	if port := u.Port(); port != "" && !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host += ":" + port
	}

	path := strings.TrimRight(u.EscapedPath(), "/")

	query := u.Query()
	for key := range query {
		lower := strings.ToLower(key)
		if _, drop := trackingParams[lower]; drop || strings.HasPrefix(lower, "utm_") {
			query.Del(key)
		}
	}

	id := scheme + "://" + host + path
	if encoded := query.Encode(); encoded != "" {
		id += "?" + encoded
	}
	return id
}
