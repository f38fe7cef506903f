package classify

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/replypilot/replypilot/internal/discover"
	"github.com/replypilot/replypilot/internal/reddit"
)

type fakeProvider struct {
	calls    atomic.Int64
	response string
	err      error
}

func (p *fakeProvider) Generate(context.Context, string, int) (string, error) {
	p.calls.Add(1)
	return p.response, p.err
}

func (p *fakeProvider) IsConfigured() bool { return true }

func fresh(id string, age time.Duration) discover.Candidate {
	url := fmt.Sprintf("https://www.reddit.com/r/golang/comments/%s/foo", id)
	return discover.Candidate{
		URL:           url,
		NormalizedURL: url,
		Title:         "post " + id,
		Metadata: &reddit.Post{
			ID:         id,
			Title:      "post " + id,
			CreatedUTC: float64(time.Now().Add(-age).Unix()),
		},
	}
}

func TestFilterFreshDropsStaleAndUnresolved(t *testing.T) {
	noTimestamp := fresh("c3", time.Hour)
	noTimestamp.Metadata.CreatedUTC = 0
	unresolved := discover.Candidate{NormalizedURL: "https://www.reddit.com/r/golang/comments/c4/foo"}

	got := New(&fakeProvider{}).FilterFresh([]discover.Candidate{
		fresh("c1", time.Hour),
		fresh("c2", 20 * time.Hour),
		noTimestamp,
		unresolved,
	})

	if len(got) != 1 || got[0].Metadata.ID != "c1" {
		t.Errorf("expected only the fresh resolved candidate, got %+v", got)
	}
}

func TestClassifyKeepsOnlyYes(t *testing.T) {
	provider := &fakeProvider{response: `{"c1": "YES", "c2": "MAYBE", "c3": "NO"}`}

	got := New(provider).Classify(context.Background(), "a weekly habit dashboard", []discover.Candidate{
		fresh("c1", time.Hour), fresh("c2", time.Hour), fresh("c3", time.Hour),
	})

	if len(got) != 1 || got[0].Metadata.ID != "c1" {
		t.Errorf("expected only the YES candidate, got %+v", got)
	}
}

func TestClassifyFailureResolvesToNo(t *testing.T) {
	provider := &fakeProvider{err: errors.New("model unavailable")}

	got := New(provider).Classify(context.Background(), "desc", []discover.Candidate{
		fresh("c1", time.Hour), fresh("c2", time.Hour),
	})
	if len(got) != 0 {
		t.Errorf("a failed classification call must never approve posts, got %+v", got)
	}
}

func TestClassifyUnparsableResponseResolvesToNo(t *testing.T) {
	provider := &fakeProvider{response: "sure, these all look great!"}

	got := New(provider).Classify(context.Background(), "desc", []discover.Candidate{fresh("c1", time.Hour)})
	if len(got) != 0 {
		t.Errorf("unparsable output must never approve posts, got %+v", got)
	}
}

func TestClassifyMissingIdentifierResolvesToNo(t *testing.T) {
	provider := &fakeProvider{response: `{"c1": "YES"}`}

	got := New(provider).Classify(context.Background(), "desc", []discover.Candidate{
		fresh("c1", time.Hour), fresh("c2", time.Hour),
	})
	if len(got) != 1 || got[0].Metadata.ID != "c1" {
		t.Errorf("identifier absent from output must resolve to NO, got %+v", got)
	}
}

func TestClassifyChunks(t *testing.T) {
	provider := &fakeProvider{response: `{}`}

	candidates := make([]discover.Candidate, ChunkSize+1)
	for i := range candidates {
		candidates[i] = fresh(fmt.Sprintf("id%04d", i), time.Hour)
	}
	New(provider).Classify(context.Background(), "desc", candidates)

	if n := provider.calls.Load(); n != 2 {
		t.Errorf("expected 2 chunk calls, got %d", n)
	}
}
