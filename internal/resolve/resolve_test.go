package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/replypilot/replypilot/internal/discover"
	"github.com/replypilot/replypilot/internal/reddit"
)

type fakeInfoClient struct {
	mu      sync.Mutex
	batches [][]string
	fail    func(batch []string) bool
}

func (c *fakeInfoClient) Info(_ context.Context, fullnames []string) ([]reddit.Post, error) {
	c.mu.Lock()
	c.batches = append(c.batches, fullnames)
	c.mu.Unlock()

	if c.fail != nil && c.fail(fullnames) {
		return nil, errors.New("upstream unavailable")
	}
	posts := make([]reddit.Post, 0, len(fullnames))
	for _, fullname := range fullnames {
		id := strings.TrimPrefix(fullname, "t3_")
		posts = append(posts, reddit.Post{ID: id, Name: fullname, Title: "resolved " + id, Ups: 7})
	}
	return posts, nil
}

func candidate(id string) discover.Candidate {
	url := fmt.Sprintf("https://www.reddit.com/r/golang/comments/%s/foo", id)
	return discover.Candidate{URL: url, NormalizedURL: url}
}

func TestPostID(t *testing.T) {
	if got := PostID("https://www.reddit.com/r/golang/comments/abc123/foo"); got != "abc123" {
		t.Errorf("PostID = %q, want abc123", got)
	}
	if got := PostID("https://www.reddit.com/r/golang"); got != "" {
		t.Errorf("expected empty ID for a non-post URL, got %q", got)
	}
}

func TestResolveAttachesAndCaches(t *testing.T) {
	client := &fakeInfoClient{}
	r := New(client)

	got := r.Resolve(context.Background(), []discover.Candidate{candidate("abc123"), candidate("def456")})

	for _, c := range got {
		if c.Metadata == nil {
			t.Fatalf("candidate %s left unresolved", c.NormalizedURL)
		}
		if c.Metadata.Ups != 7 {
			t.Errorf("metadata not attached: %+v", c.Metadata)
		}
		if cached := r.Cached(c.NormalizedURL); cached == nil || cached.ID != c.Metadata.ID {
			t.Errorf("expected cache entry for %s", c.NormalizedURL)
		}
	}
}

func TestResolveSplitsIntoBatches(t *testing.T) {
	client := &fakeInfoClient{}
	r := New(client)

	candidates := make([]discover.Candidate, BatchSize+3)
	for i := range candidates {
		candidates[i] = candidate(fmt.Sprintf("id%04d", i))
	}
	r.Resolve(context.Background(), candidates)

	if len(client.batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(client.batches))
	}
	for _, batch := range client.batches {
		if len(batch) > BatchSize {
			t.Errorf("batch of %d exceeds cap %d", len(batch), BatchSize)
		}
	}
}

func TestResolveToleratesFailedBatch(t *testing.T) {
	client := &fakeInfoClient{fail: func(batch []string) bool {
		return batch[0] == "t3_id0000"
	}}
	r := New(client)

	candidates := make([]discover.Candidate, BatchSize+1)
	for i := range candidates {
		candidates[i] = candidate(fmt.Sprintf("id%04d", i))
	}
	got := r.Resolve(context.Background(), candidates)

	var resolved, unresolved int
	for _, c := range got {
		if c.Metadata != nil {
			resolved++
		} else {
			unresolved++
		}
	}
	if unresolved != BatchSize {
		t.Errorf("expected the failed batch's %d members unresolved, got %d", BatchSize, unresolved)
	}
	if resolved != 1 {
		t.Errorf("expected the surviving batch resolved, got %d", resolved)
	}
}

func TestResolveSkipsAlreadyResolved(t *testing.T) {
	client := &fakeInfoClient{}
	r := New(client)

	pre := candidate("abc123")
	pre.Metadata = &reddit.Post{ID: "abc123", Title: "already here"}
	got := r.Resolve(context.Background(), []discover.Candidate{pre})

	if len(client.batches) != 0 {
		t.Errorf("expected no fetch for pre-resolved candidates, got %d", len(client.batches))
	}
	if got[0].Metadata.Title != "already here" {
		t.Errorf("pre-resolved metadata overwritten: %+v", got[0].Metadata)
	}
	if r.Cached(pre.NormalizedURL) == nil {
		t.Error("pre-resolved metadata should still be cached")
	}
}
