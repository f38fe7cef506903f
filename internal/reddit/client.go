// Package reddit is the authenticated client for the community platform:
// OAuth token refresh, scoped search, batch post lookup, community rules,
// and comment publishing.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL  = "https://oauth.reddit.com"
	defaultTokenURL = "https://www.reddit.com/api/v1/access_token"

	// InfoBatchLimit is the API's per-call item limit on /api/info.
	InfoBatchLimit = 100
)

// ErrRateLimited marks a 429 response. The community-search connector
// retries these with backoff; every other call site treats them as
// terminal for that unit of work.
var ErrRateLimited = errors.New("rate limited")

// APIError is a structured rejection returned inside a 200 response,
// e.g. from the comment endpoint.
type APIError struct {
	Errors [][]string
}

func (e *APIError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		parts = append(parts, strings.Join(item, ": "))
	}
	return "api rejection: " + strings.Join(parts, "; ")
}

// Client is an authenticated community-platform API client.
type Client struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	BaseURL      string
	TokenURL     string

	client      *http.Client
	accessToken string
}

// NewClient creates a client with the given OAuth application credentials.
func NewClient(clientID, clientSecret, userAgent string) *Client {
	return &Client{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		UserAgent:    userAgent,
		BaseURL:      defaultBaseURL,
		TokenURL:     defaultTokenURL,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

// RefreshAccessToken exchanges an account's refresh token for a fresh
// access token and installs it on the client for subsequent calls.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) error {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating token request: %w", err)
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("token refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("token refresh returned %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding token response: %w", err)
	}
	if result.AccessToken == "" {
		return fmt.Errorf("token refresh returned no access token")
	}

	c.accessToken = result.AccessToken
	return nil
}

// Search runs an authenticated search scoped to one community, sorted by
// recency over the given time window ("hour", "day", "week", ...).
// The response headers are returned alongside the posts so the caller
// can feed the rate limiter even on error responses.
func (c *Client) Search(ctx context.Context, community, query, window string, limit int) ([]Post, http.Header, error) {
	params := url.Values{
		"q":           {query},
		"restrict_sr": {"1"},
		"sort":        {"new"},
		"t":           {window},
		"limit":       {strconv.Itoa(limit)},
	}
	endpoint := fmt.Sprintf("%s/r/%s/search?%s", c.BaseURL, url.PathEscape(community), params.Encode())

	var result listing
	header, err := c.getJSON(ctx, endpoint, &result)
	if err != nil {
		return nil, header, err
	}
	return result.posts(), header, nil
}

// Info batch-fetches full post metadata by fullname (e.g. "t3_abc123").
// The caller is responsible for staying under InfoBatchLimit per call.
func (c *Client) Info(ctx context.Context, fullnames []string) ([]Post, error) {
	if len(fullnames) == 0 {
		return nil, nil
	}
	if len(fullnames) > InfoBatchLimit {
		return nil, fmt.Errorf("info batch of %d exceeds limit %d", len(fullnames), InfoBatchLimit)
	}

	endpoint := fmt.Sprintf("%s/api/info?id=%s", c.BaseURL, url.QueryEscape(strings.Join(fullnames, ",")))

	var result listing
	if _, err := c.getJSON(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return result.posts(), nil
}

// Rules fetches a community's posting rules as one text blob. An empty
// string means the community publishes no rules.
func (c *Client) Rules(ctx context.Context, community string) (string, error) {
	endpoint := fmt.Sprintf("%s/r/%s/about/rules", c.BaseURL, url.PathEscape(community))

	var result struct {
		Rules []struct {
			ShortName   string `json:"short_name"`
			Description string `json:"description"`
		} `json:"rules"`
	}
	if _, err := c.getJSON(ctx, endpoint, &result); err != nil {
		return "", err
	}

	var parts []string
	for _, r := range result.Rules {
		line := strings.TrimSpace(r.ShortName)
		if desc := strings.TrimSpace(r.Description); desc != "" {
			if line != "" {
				line += ": "
			}
			line += desc
		}
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// Comment publishes a reply under the given parent fullname. A 200
// response carrying a non-empty errors list is returned as *APIError.
func (c *Client) Comment(ctx context.Context, parentFullname, text string) error {
	form := url.Values{
		"api_type": {"json"},
		"thing_id": {parentFullname},
		"text":     {text},
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/api/comment", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating comment request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("comment call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("comment returned %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		JSON struct {
			Errors [][]string `json:"errors"`
		} `json:"json"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding comment response: %w", err)
	}
	if len(result.JSON.Errors) > 0 {
		return &APIError{Errors: result.JSON.Errors}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("User-Agent", c.UserAgent)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return resp.Header, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.Header, fmt.Errorf("API returned %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.Header, fmt.Errorf("decoding response: %w", err)
	}
	return resp.Header, nil
}
