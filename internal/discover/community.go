package discover

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/replypilot/replypilot/internal/ratelimit"
	"github.com/replypilot/replypilot/internal/reddit"
)

const (
	// searchWindow is the API-side recency window; results are filtered
	// further to FreshnessWindow before being returned.
	searchWindow    = "week"
	searchPageLimit = 100

	maxSearchAttempts = 3
	initialBackoff    = 2 * time.Second
)

// FreshnessWindow is the maximum post age the pipeline considers.
const FreshnessWindow = 12 * time.Hour

// communitySearcher is the slice of the platform client this connector
// needs.
type communitySearcher interface {
	Search(ctx context.Context, community, query, window string, limit int) ([]reddit.Post, http.Header, error)
}

// Pacer is the rate-limiter surface the connector drives around every
// call. *ratelimit.Limiter satisfies it; tests substitute a fake.
type Pacer interface {
	WaitIfNeeded(ctx context.Context)
	UpdateFromHeaders(h http.Header)
	Decrement()
}

var _ Pacer = (*ratelimit.Limiter)(nil)

// CommunitySearcher discovers fresh posts via authenticated searches,
// one call per (keyword, community) pair, paced through a shared
// rate limiter.
type CommunitySearcher struct {
	client  communitySearcher
	limiter Pacer
	now     func() time.Time
	backoff func() retry.Backoff
}

// NewCommunitySearcher creates a connector around an authenticated
// client and the run's rate limiter.
func NewCommunitySearcher(client communitySearcher, limiter Pacer) *CommunitySearcher {
	return &CommunitySearcher{
		client:  client,
		limiter: limiter,
		now:     time.Now,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(maxSearchAttempts-1, retry.NewExponential(initialBackoff))
		},
	}
}

// Search walks every (keyword, community) pair sequentially, so all
// calls serialize through the limiter. Rate-limit responses are retried
// with exponential backoff up to a small attempt cap; any other failure
// abandons that pair immediately.
func (s *CommunitySearcher) Search(ctx context.Context, keywords, communities []string) []Candidate {
	var out []Candidate
	for _, keyword := range keywords {
		for _, community := range communities {
			posts, err := s.searchPair(ctx, keyword, community)
			if err != nil {
				log.Printf("Community search %s/%q failed: %v", community, keyword, err)
				continue
			}
			cutoff := s.now().Add(-FreshnessWindow)
			for _, post := range posts {
				created := post.CreatedAt()
				if created.IsZero() || created.Before(cutoff) {
					continue
				}
				out = append(out, candidateFromPost(keyword, community, post))
			}
		}
	}
	return out
}

func (s *CommunitySearcher) searchPair(ctx context.Context, keyword, community string) ([]reddit.Post, error) {
	var posts []reddit.Post
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		s.limiter.WaitIfNeeded(ctx)
		result, header, err := s.client.Search(ctx, community, keyword, searchWindow, searchPageLimit)
		s.limiter.UpdateFromHeaders(header)
		s.limiter.Decrement()
		if errors.Is(err, reddit.ErrRateLimited) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		posts = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s for %q: %w", community, keyword, err)
	}
	return posts, nil
}

func candidateFromPost(keyword, community string, post reddit.Post) Candidate {
	p := post
	url := "https://www.reddit.com" + post.Permalink
	return Candidate{
		Keyword:       keyword,
		Community:     community,
		URL:           url,
		NormalizedURL: NormalizeURL(url),
		Title:         post.Title,
		Snippet:       snippet(post.SelfText),
		Metadata:      &p,
	}
}

func snippet(text string) string {
	const max = 200
	if len(text) <= max {
		return text
	}
	return text[:max]
}
