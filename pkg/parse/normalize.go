package parse

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/Sriram-PR/page-loader/pkg/utils"
)

// NormalizeURL standardizes a URL for comparison
// It lowercases the scheme and host, removes default ports (80 for http, 443 for https), removes trailing slashes from paths (unless root "/"), ensures empty path becomes "/", and removes fragments
// The query string is kept: two pages differing only by query are distinct pages
// Does not modify the input *url.URL
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	host, port, err := net.SplitHostPort(normalized.Host)
	if err == nil && port == defaultPort(normalized.Scheme) {
		normalized.Host = host
	}

	if normalized.Path == "" {
		normalized.Path = "/"
	} else if len(normalized.Path) > 1 && strings.HasSuffix(normalized.Path, "/") {
		normalized.Path = normalized.Path[:len(normalized.Path)-1]
	}

	normalized.Fragment = ""
	normalized.RawFragment = ""

	return normalized.String()
}

// ParseAbsolute parses a page URL supplied by a caller
// The URL must be absolute, use http or https, and name a host.
// A fragment is dropped: it never reaches the server or the local names.
func ParseAbsolute(rawURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(rawURL)
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: URL '%s': %w", utils.ErrParsing, rawURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: URL '%s': unsupported scheme '%s'", utils.ErrParsing, rawURL, parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("%w: URL '%s': missing host", utils.ErrParsing, rawURL)
	}
	parsed.Fragment = ""
	parsed.RawFragment = ""
	return parsed, nil
}

// EffectivePort returns the explicit port of u, or the scheme default when none is given
func EffectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	return defaultPort(strings.ToLower(u.Scheme))
}

// Origin renders the scheme://host:port triple of u with the port always present
func Origin(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + net.JoinHostPort(strings.ToLower(u.Hostname()), EffectivePort(u))
}

// SameOrigin reports whether a and b share scheme, host and effective port
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return Origin(a) == Origin(b)
}

// ResourceKey identifies a downloadable resource: the URL minus its fragment
func ResourceKey(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}
