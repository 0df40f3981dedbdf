package scanner

// Identity is one egress fingerprint: an optional outbound proxy plus request headers.
type Identity struct {
	Name      string
	ProxyURL  string
	UserAgent string
	Headers   map[string]string
}

// Label is used in logs; it never includes proxy credentials.
func (i Identity) Label() string {
	if i.Name != "" {
		return i.Name
	}
	if i.ProxyURL != "" {
		return "proxy"
	}
	return "direct"
}

// DefaultUserAgents are the browser fingerprints rotated when no identities are configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
}

// DefaultIdentities builds one header-only identity per default user agent.
func DefaultIdentities() []Identity {
	out := make([]Identity, 0, len(DefaultUserAgents))
	for i, ua := range DefaultUserAgents {
		out = append(out, Identity{
			Name:      "ua-" + string(rune('a'+i)),
			UserAgent: ua,
		})
	}
	return out
}

// BrowserHeaders are sent with every static request unless an identity overrides them.
var BrowserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"DNT":                       "1",
	"Upgrade-Insecure-Requests": "1",
}
