package discover

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/replypilot/replypilot/internal/reddit"
)

type fakePacer struct {
	waits      int
	updates    int
	decrements int
}

func (p *fakePacer) WaitIfNeeded(context.Context) { p.waits++ }

func (p *fakePacer) UpdateFromHeaders(http.Header) { p.updates++ }
func (p *fakePacer) Decrement()                    { p.decrements++ }

type fakeSearchClient struct {
	calls     int
	responses []func() ([]reddit.Post, http.Header, error)
}

func (c *fakeSearchClient) Search(_ context.Context, community, query, window string, limit int) ([]reddit.Post, http.Header, error) {
	next := c.responses[c.calls]
	c.calls++
	return next()
}

func newTestCommunitySearcher(client *fakeSearchClient, pacer *fakePacer) *CommunitySearcher {
	s := NewCommunitySearcher(client, pacer)
	s.backoff = func() retry.Backoff {
		return retry.WithMaxRetries(maxSearchAttempts-1, retry.NewConstant(time.Millisecond))
	}
	return s
}

func post(id string, age time.Duration) reddit.Post {
	return reddit.Post{
		ID:         id,
		Name:       "t3_" + id,
		Title:      "post " + id,
		Permalink:  "/r/productivity/comments/" + id + "/post/",
		Subreddit:  "productivity",
		CreatedUTC: float64(time.Now().Add(-age).Unix()),
	}
}

func TestCommunitySearchFiltersToFreshnessWindow(t *testing.T) {
	client := &fakeSearchClient{responses: []func() ([]reddit.Post, http.Header, error){
		func() ([]reddit.Post, http.Header, error) {
			return []reddit.Post{
				post("fresh1", time.Hour),
				post("stale1", 20 * time.Hour),
				{ID: "notime", Permalink: "/r/productivity/comments/notime/x/"},
			}, http.Header{}, nil
		},
	}}
	pacer := &fakePacer{}

	got := newTestCommunitySearcher(client, pacer).Search(context.Background(), []string{"habit tracker"}, []string{"productivity"})
	if len(got) != 1 {
		t.Fatalf("expected only the fresh post, got %d: %+v", len(got), got)
	}
	if got[0].Metadata == nil || got[0].Metadata.ID != "fresh1" {
		t.Errorf("unexpected candidate: %+v", got[0])
	}
	if got[0].Community != "productivity" {
		t.Errorf("expected originating community recorded, got %q", got[0].Community)
	}
	if pacer.updates != 1 || pacer.decrements != 1 {
		t.Errorf("expected limiter fed once, got updates=%d decrements=%d", pacer.updates, pacer.decrements)
	}
}

func TestCommunitySearchRetriesRateLimits(t *testing.T) {
	client := &fakeSearchClient{responses: []func() ([]reddit.Post, http.Header, error){
		func() ([]reddit.Post, http.Header, error) {
			return nil, http.Header{}, reddit.ErrRateLimited
		},
		func() ([]reddit.Post, http.Header, error) {
			return []reddit.Post{post("abc123", time.Hour)}, http.Header{}, nil
		},
	}}
	pacer := &fakePacer{}

	got := newTestCommunitySearcher(client, pacer).Search(context.Background(), []string{"q"}, []string{"productivity"})
	if client.calls != 2 {
		t.Errorf("expected a retry after the rate limit, got %d calls", client.calls)
	}
	if len(got) != 1 {
		t.Errorf("expected the retried call's post, got %d", len(got))
	}
	if pacer.decrements != 2 {
		t.Errorf("every dispatch consumes budget, got %d decrements", pacer.decrements)
	}
}

func TestCommunitySearchGivesUpAfterMaxAttempts(t *testing.T) {
	rateLimited := func() ([]reddit.Post, http.Header, error) {
		return nil, http.Header{}, reddit.ErrRateLimited
	}
	client := &fakeSearchClient{responses: []func() ([]reddit.Post, http.Header, error){
		rateLimited, rateLimited, rateLimited,
	}}

	got := newTestCommunitySearcher(client, &fakePacer{}).Search(context.Background(), []string{"q"}, []string{"productivity"})
	if client.calls != maxSearchAttempts {
		t.Errorf("expected exactly %d attempts, got %d", maxSearchAttempts, client.calls)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %+v", got)
	}
}

func TestCommunitySearchOtherErrorsAreTerminal(t *testing.T) {
	client := &fakeSearchClient{responses: []func() ([]reddit.Post, http.Header, error){
		func() ([]reddit.Post, http.Header, error) {
			return nil, http.Header{}, errors.New("boom")
		},
		func() ([]reddit.Post, http.Header, error) {
			return []reddit.Post{post("def456", time.Hour)}, http.Header{}, nil
		},
	}}

	got := newTestCommunitySearcher(client, &fakePacer{}).Search(context.Background(), []string{"a", "b"}, []string{"productivity"})
	if client.calls != 2 {
		t.Errorf("expected one call per pair with no retry, got %d", client.calls)
	}
	if len(got) != 1 || got[0].Keyword != "b" {
		t.Errorf("expected the second pair's candidate, got %+v", got)
	}
}
