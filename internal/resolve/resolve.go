// Package resolve batch-fetches full post metadata for discovered
// candidates and caches it by normalized URL for later stages.
package resolve

import (
	"context"
	"log"
	"regexp"
	"sync"

	"github.com/replypilot/replypilot/internal/discover"
	"github.com/replypilot/replypilot/internal/reddit"
)

// BatchSize stays below the metadata API's per-call limit to leave
// headroom.
const BatchSize = reddit.InfoBatchLimit - 5

var postIDPattern = regexp.MustCompile(`/comments/([a-z0-9]+)`)

// PostID extracts the opaque post identifier from a normalized post
// URL. Empty when the URL does not look like a post permalink.
func PostID(normalizedURL string) string {
	m := postIDPattern.FindStringSubmatch(normalizedURL)
	if m == nil {
		return ""
	}
	return m[1]
}

type infoClient interface {
	Info(ctx context.Context, fullnames []string) ([]reddit.Post, error)
}

// Resolver attaches platform metadata to candidates. Resolved posts are
// kept in an internal cache so reply generation can reread them without
// another network call.
type Resolver struct {
	client infoClient

	mu    sync.Mutex
	cache map[string]*reddit.Post // keyed by normalized URL
}

// New creates a Resolver around an authenticated client.
func New(client infoClient) *Resolver {
	return &Resolver{client: client, cache: make(map[string]*reddit.Post)}
}

// Resolve fetches metadata for every candidate that still lacks it, in
// concurrent fixed-size batches. A failed batch leaves its members
// unresolved; downstream stages treat missing metadata as insufficient
// evidence, not as relevance.
func (r *Resolver) Resolve(ctx context.Context, candidates []discover.Candidate) []discover.Candidate {
	byID := make(map[string][]int)
	var fullnames []string
	for i, c := range candidates {
		if c.Metadata != nil {
			r.put(c.NormalizedURL, c.Metadata)
			continue
		}
		id := PostID(c.NormalizedURL)
		if id == "" {
			continue
		}
		if _, ok := byID[id]; !ok {
			fullnames = append(fullnames, "t3_"+id)
		}
		byID[id] = append(byID[id], i)
	}

	resolved := r.fetchAll(ctx, fullnames)

	for _, post := range resolved {
		for _, i := range byID[post.ID] {
			p := post
			candidates[i].Metadata = &p
			r.put(candidates[i].NormalizedURL, &p)
		}
	}
	return candidates
}

// Cached returns previously resolved metadata for a normalized URL, or
// nil.
func (r *Resolver) Cached(normalizedURL string) *reddit.Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache[normalizedURL]
}

func (r *Resolver) put(normalizedURL string, post *reddit.Post) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[normalizedURL] = post
}

func (r *Resolver) fetchAll(ctx context.Context, fullnames []string) []reddit.Post {
	var batches [][]string
	for len(fullnames) > 0 {
		n := min(len(fullnames), BatchSize)
		batches = append(batches, fullnames[:n])
		fullnames = fullnames[n:]
	}

	results := make([][]reddit.Post, len(batches))
	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(i int, batch []string) {
			defer wg.Done()
			posts, err := r.client.Info(ctx, batch)
			if err != nil {
				log.Printf("Metadata batch of %d failed: %v", len(batch), err)
				return
			}
			results[i] = posts
		}(i, batch)
	}
	wg.Wait()

	var out []reddit.Post
	for _, posts := range results {
		out = append(out, posts...)
	}
	return out
}
