// Package fetch pulls readable text from the page a link post points
// at, as extra context for reply generation. Everything here is
// best-effort: a page that cannot be fetched or parsed just yields no
// context.
package fetch

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/replypilot/replypilot/internal/reddit"
)

const (
	minExtractedLength = 100
	maxContextLength   = 2000
)

// PageFetcher extracts readable page text via HTTP + readability.
type PageFetcher struct {
	UserAgent string

	client *http.Client
}

// NewPageFetcher creates a fetcher with the given timeout.
func NewPageFetcher(userAgent string, timeout time.Duration) *PageFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &PageFetcher{
		UserAgent: userAgent,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// PostContext returns text describing what a post links to. Self posts
// need no fetch, their body is the context. For link posts the target
// page is fetched and run through readability; any failure returns an
// empty string.
func (f *PageFetcher) PostContext(ctx context.Context, post *reddit.Post) string {
	if post == nil {
		return ""
	}
	if post.IsSelf {
		return truncate(strings.TrimSpace(post.SelfText))
	}
	if post.URL == "" {
		return ""
	}

	text, err := f.extract(ctx, post.URL)
	if err != nil {
		log.Printf("Page fetch for %s failed: %v", post.URL, err)
		return ""
	}
	return truncate(text)
}

func (f *PageFetcher) extract(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(string(bodyBytes)), parsedURL)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) < minExtractedLength {
		return "", nil
	}
	return text, nil
}

func truncate(text string) string {
	if len(text) <= maxContextLength {
		return text
	}
	cut := text[:maxContextLength]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}
