package discover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"sync"
	"time"
)

const (
	defaultSearchURL = "https://google.serper.dev/search"

	searchPageSize   = 10
	searchMaxResults = 20
)

// postURLPattern matches canonical post permalinks on the content host.
var postURLPattern = regexp.MustCompile(`(?i)^https?://[^/]*reddit\.com/r/[^/]+/comments/[a-z0-9]+`)

// WebSearcher queries a general web-search API restricted to the
// content host, one query per keyword.
type WebSearcher struct {
	APIKey    string
	SearchURL string

	client *http.Client
}

// NewWebSearcher creates a searcher for the given API key.
func NewWebSearcher(apiKey string) *WebSearcher {
	return &WebSearcher{
		APIKey:    apiKey,
		SearchURL: defaultSearchURL,
		client:    &http.Client{Timeout: 20 * time.Second},
	}
}

type searchResult struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// Search runs all keyword searches concurrently and returns candidates
// whose URLs look like post permalinks. A failing keyword logs and
// contributes nothing.
func (s *WebSearcher) Search(ctx context.Context, keywords []string) []Candidate {
	results := make([][]Candidate, len(keywords))

	var wg sync.WaitGroup
	for i, keyword := range keywords {
		wg.Add(1)
		go func(i int, keyword string) {
			defer wg.Done()
			candidates, err := s.searchKeyword(ctx, keyword)
			if err != nil {
				log.Printf("Web search for %q failed: %v", keyword, err)
				return
			}
			results[i] = candidates
		}(i, keyword)
	}
	wg.Wait()

	var out []Candidate
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func (s *WebSearcher) searchKeyword(ctx context.Context, keyword string) ([]Candidate, error) {
	var candidates []Candidate
	for page := 1; len(candidates) < searchMaxResults; page++ {
		result, err := s.fetchPage(ctx, keyword, page)
		if err != nil {
			return nil, err
		}
		if len(result.Organic) == 0 {
			break
		}
		for _, item := range result.Organic {
			if !postURLPattern.MatchString(item.Link) {
				continue
			}
			candidates = append(candidates, Candidate{
				Keyword:       keyword,
				URL:           item.Link,
				NormalizedURL: NormalizeURL(item.Link),
				Title:         item.Title,
				Snippet:       item.Snippet,
			})
			if len(candidates) >= searchMaxResults {
				break
			}
		}
		if len(result.Organic) < searchPageSize {
			break
		}
	}
	return candidates, nil
}

func (s *WebSearcher) fetchPage(ctx context.Context, keyword string, page int) (*searchResult, error) {
	payload, err := json.Marshal(map[string]any{
		"q":    fmt.Sprintf("site:reddit.com %s", keyword),
		"num":  searchPageSize,
		"page": page,
		"tbs":  "qdr:w",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.SearchURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search returned %d: %s", resp.StatusCode, string(body))
	}

	var result searchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	return &result, nil
}
