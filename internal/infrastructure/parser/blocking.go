package parser

import (
	"bytes"
	"fmt"
	"net/http"
)

// DefaultMinBodyBytes is the smallest page treated as a real listing page.
const DefaultMinBodyBytes = 5000

var challengeMarkers = [][]byte{
	[]byte("captcha"),
	[]byte("cf-challenge"),
	[]byte("challenge-platform"),
	[]byte("just a moment"),
	[]byte("access denied"),
	[]byte("are you a robot"),
}

// DetectBlocked reports whether a response looks like the source refusing automated access.
// minBytes <= 0 falls back to DefaultMinBodyBytes.
func DetectBlocked(status int, body []byte, minBytes int) (bool, string) {
	if status != http.StatusOK {
		return true, fmt.Sprintf("status %d", status)
	}
	if minBytes <= 0 {
		minBytes = DefaultMinBodyBytes
	}
	if len(body) < minBytes {
		return true, fmt.Sprintf("body too short (%d bytes)", len(body))
	}
	lower := bytes.ToLower(body)
	for _, marker := range challengeMarkers {
		if bytes.Contains(lower, marker) {
			return true, fmt.Sprintf("challenge marker %q", marker)
		}
	}
	return false, ""
}
