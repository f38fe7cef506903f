// Package discover finds candidate posts for an account from two
// sources: a host-restricted web search and authenticated per-community
// searches. Candidates carry unresolved metadata until the resolver
// fills it in.
package discover

import (
	"net/url"
	"strings"

	"github.com/replypilot/replypilot/internal/reddit"
)

// Candidate is one discovered post, keyed by its normalized URL.
// Metadata stays nil until the resolver attaches it.
type Candidate struct {
	Keyword       string
	Community     string // empty for web-search results
	URL           string
	NormalizedURL string
	Title         string
	Snippet       string
	Metadata      *reddit.Post
}

// NormalizeURL canonicalizes a post URL for dedup and idempotency:
// lowercased, query and fragment stripped, trailing slash stripped.
func NormalizeURL(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if u, err := url.Parse(s); err == nil {
		u.RawQuery = ""
		u.Fragment = ""
		s = u.String()
	}
	return strings.TrimSuffix(s, "/")
}

// Dedup merges candidate lists in argument order and keeps the first
// occurrence per normalized URL. Callers pass web-search results before
// community-search results so ties keep the web-search variant.
func Dedup(lists ...[]Candidate) []Candidate {
	seen := make(map[string]struct{})
	var out []Candidate
	for _, list := range lists {
		for _, c := range list {
			if c.NormalizedURL == "" {
				c.NormalizedURL = NormalizeURL(c.URL)
			}
			if _, ok := seen[c.NormalizedURL]; ok {
				continue
			}
			seen[c.NormalizedURL] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
