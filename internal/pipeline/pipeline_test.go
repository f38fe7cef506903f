package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/replypilot/replypilot/internal/classify"
	"github.com/replypilot/replypilot/internal/database"
	"github.com/replypilot/replypilot/internal/discover"
	"github.com/replypilot/replypilot/internal/policy"
	"github.com/replypilot/replypilot/internal/publish"
	"github.com/replypilot/replypilot/internal/reddit"
	"github.com/replypilot/replypilot/internal/reply"
)

// scriptedProvider answers classification and reply prompts from one
// fake model.
type scriptedProvider struct {
	verdicts  string
	replyText string
}

func (p *scriptedProvider) Generate(_ context.Context, prompt string, _ int) (string, error) {
	if strings.Contains(prompt, "JSON object mapping") {
		return p.verdicts, nil
	}
	return p.replyText, nil
}

func (p *scriptedProvider) IsConfigured() bool { return true }

type fakeAuth struct {
	err   error
	calls int
}

func (a *fakeAuth) RefreshAccessToken(context.Context, string) error {
	a.calls++
	return a.err
}

type fakeWeb struct {
	candidates []discover.Candidate
}

func (w *fakeWeb) Search(context.Context, []string) []discover.Candidate { return w.candidates }

type fakeCommunity struct{}

func (fakeCommunity) Search(context.Context, []string, []string) []discover.Candidate { return nil }

type fakeExpander struct{}

func (fakeExpander) Expand(_ context.Context, seeds []string) []string { return seeds }

// fakeResolver attaches metadata with a fixed post age.
type fakeResolver struct {
	age time.Duration
}

func (r *fakeResolver) Resolve(_ context.Context, candidates []discover.Candidate) []discover.Candidate {
	for i := range candidates {
		if candidates[i].Metadata != nil {
			continue
		}
		candidates[i].Metadata = &reddit.Post{
			ID:         "abc123",
			Name:       "t3_abc123",
			Title:      candidates[i].Title,
			Subreddit:  "productivity",
			IsSelf:     true,
			SelfText:   "looking for recommendations",
			CreatedUTC: float64(time.Now().Add(-r.age).Unix()),
		}
	}
	return candidates
}

type fakeFetcher struct{}

func (fakeFetcher) PostContext(context.Context, *reddit.Post) string { return "" }

type fakeRules struct {
	text string
}

func (r *fakeRules) Rules(context.Context, string) (string, error) { return r.text, nil }

type fakeComment struct {
	calls int
	err   error
}

func (c *fakeComment) Comment(context.Context, string, string) error {
	c.calls++
	return c.err
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertAccount(t *testing.T, db *database.DB, name string) *database.Account {
	t.Helper()
	account := &database.Account{
		Name:               name,
		SeedKeywords:       []string{"habit tracker"},
		Communities:        []string{"productivity"},
		ProductDescription: "a weekly habit dashboard",
		ProductLink:        "https://example.com/acme",
		AutoPilotEnabled:   true,
		RefreshToken:       "rt",
	}
	id, err := db.InsertAccount(account)
	if err != nil {
		t.Fatalf("inserting account: %v", err)
	}
	account.ID = id
	return account
}

const candidateURL = "https://x.com/r/productivity/comments/abc123/foo"

func webCandidate() discover.Candidate {
	return discover.Candidate{
		Keyword:       "habit tracker",
		URL:           candidateURL,
		NormalizedURL: discover.NormalizeURL(candidateURL),
		Title:         "I finally found a habit tracker that works for me",
	}
}

// newTestPipeline wires a pipeline around a real database, real
// classifier, policy checker, generator and publisher, with the network
// edges faked.
func newTestPipeline(db *database.DB, postAge time.Duration, comment *fakeComment) *Pipeline {
	provider := &scriptedProvider{verdicts: `{"abc123": "YES"}`, replyText: "Congrats, keeping the streak visible helps a lot."}
	return &Pipeline{
		db:                   db,
		auth:                 &fakeAuth{},
		web:                  &fakeWeb{candidates: []discover.Candidate{webCandidate()}},
		expander:             fakeExpander{},
		resolver:             &fakeResolver{age: postAge},
		classifier:           classify.New(provider),
		checker:              policy.New(db, &fakeRules{text: ""}, provider),
		fetcher:              fakeFetcher{},
		generator:            reply.New(provider),
		publisher:            publish.New(comment, db),
		newCommunitySearcher: func() communitySearcher { return fakeCommunity{} },
		sleep:                func(time.Duration) {},
	}
}

func TestRunPublishesFreshApprovedPost(t *testing.T) {
	db := openTestDB(t)
	account := insertAccount(t, db, "acme")
	comment := &fakeComment{}

	result, err := newTestPipeline(db, time.Hour, comment).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Accounts) != 1 {
		t.Fatalf("expected 1 account result, got %d", len(result.Accounts))
	}
	r := result.Accounts[0]
	if r.Status != StatusDone || r.Discovered != 1 || r.Approved != 1 || r.Posted != 1 || r.Failed != 0 {
		t.Errorf("unexpected result %+v", r)
	}
	if comment.calls != 1 {
		t.Errorf("expected one write call, got %d", comment.calls)
	}

	records, err := db.ListPostRecords(account.ID, 10)
	if err != nil {
		t.Fatalf("listing records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(records))
	}
	rec := records[0]
	if rec.Status != database.StatusPosted || !rec.AutoPilot {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.NormalizedURL != discover.NormalizeURL(candidateURL) {
		t.Errorf("unexpected normalized URL %q", rec.NormalizedURL)
	}

	cached, err := db.GetCommunityPolicy("productivity")
	if err != nil || cached == nil || !cached.AllowsPromotion {
		t.Errorf("expected allow=true policy persisted, got %+v err=%v", cached, err)
	}
}

func TestRunDropsStalePost(t *testing.T) {
	db := openTestDB(t)
	account := insertAccount(t, db, "acme")
	comment := &fakeComment{}

	result, err := newTestPipeline(db, 20*time.Hour, comment).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	r := result.Accounts[0]
	if r.Status != StatusDone || r.Approved != 0 || r.Posted != 0 {
		t.Errorf("unexpected result %+v", r)
	}
	if comment.calls != 0 {
		t.Error("a stale post must never reach the write API")
	}
	records, _ := db.ListPostRecords(account.ID, 10)
	if len(records) != 0 {
		t.Errorf("expected zero records for a stale post, got %d", len(records))
	}
}

func TestRunExcludesAlreadyProcessedURL(t *testing.T) {
	db := openTestDB(t)
	account := insertAccount(t, db, "acme")
	if _, err := db.InsertPostRecord(&database.PostRecord{
		AccountID:     account.ID,
		Status:        database.StatusPosted,
		NormalizedURL: discover.NormalizeURL(candidateURL),
		AutoPilot:     true,
	}); err != nil {
		t.Fatalf("seeding history: %v", err)
	}
	comment := &fakeComment{}

	result, err := newTestPipeline(db, time.Hour, comment).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if comment.calls != 0 {
		t.Error("an already-posted URL must not be published again")
	}
	if r := result.Accounts[0]; r.Approved != 0 {
		t.Errorf("expected the candidate excluded before classification, got %+v", r)
	}

	records, _ := db.ListPostRecords(account.ID, 10)
	if len(records) != 1 {
		t.Errorf("expected only the seeded record, got %d", len(records))
	}
}

func TestRunSkipsIncompleteConfig(t *testing.T) {
	db := openTestDB(t)
	account := &database.Account{
		Name:             "bare",
		SeedKeywords:     []string{"habit tracker"},
		AutoPilotEnabled: true,
	}
	if _, err := db.InsertAccount(account); err != nil {
		t.Fatalf("inserting account: %v", err)
	}

	auth := &fakeAuth{}
	p := newTestPipeline(db, time.Hour, &fakeComment{})
	p.auth = auth

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r := result.Accounts[0]; r.Status != StatusSkippedConfig {
		t.Errorf("expected skipped_config, got %+v", r)
	}
	if auth.calls != 0 {
		t.Error("config gate must fire before the auth refresh")
	}
}

func TestRunAuthFailureMarksAccountFailed(t *testing.T) {
	db := openTestDB(t)
	insertAccount(t, db, "acme")
	comment := &fakeComment{}

	p := newTestPipeline(db, time.Hour, comment)
	p.auth = &fakeAuth{err: errors.New("invalid grant")}

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := result.Accounts[0]
	if r.Status != StatusFailed || r.Err == nil {
		t.Errorf("expected failed account, got %+v", r)
	}
	if comment.calls != 0 {
		t.Error("no publishing after a failed token refresh")
	}
}

// panicOnceWeb panics on its first call and delegates afterwards.
type panicOnceWeb struct {
	next  webSearcher
	calls int
}

func (w *panicOnceWeb) Search(ctx context.Context, keywords []string) []discover.Candidate {
	w.calls++
	if w.calls == 1 {
		panic("boom")
	}
	return w.next.Search(ctx, keywords)
}

func TestRunRecoversPanicAndContinues(t *testing.T) {
	db := openTestDB(t)
	insertAccount(t, db, "first")
	insertAccount(t, db, "second")

	var pauses int
	p := newTestPipeline(db, time.Hour, &fakeComment{})
	p.sleep = func(time.Duration) { pauses++ }
	p.web = &panicOnceWeb{next: p.web}

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Accounts) != 2 {
		t.Fatalf("expected both accounts processed, got %d", len(result.Accounts))
	}
	if result.Accounts[0].Status != StatusFailed {
		t.Errorf("expected first account failed, got %+v", result.Accounts[0])
	}
	if result.Accounts[1].Status != StatusDone {
		t.Errorf("expected second account to proceed, got %+v", result.Accounts[1])
	}
	if pauses != 1 {
		t.Errorf("expected one inter-account pause, got %d", pauses)
	}
}

func TestRunRecordsAccountRun(t *testing.T) {
	db := openTestDB(t)
	account := insertAccount(t, db, "acme")

	if _, err := newTestPipeline(db, time.Hour, &fakeComment{}).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	runs, err := db.ListAccountRuns(account.ID, 10)
	if err != nil {
		t.Fatalf("listing runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one run row, got %d", len(runs))
	}
	run := runs[0]
	if run.FinishedAt == nil || run.Discovered != 1 || run.Posted != 1 {
		t.Errorf("unexpected run row %+v", run)
	}
}

func TestRunFailedPublishRecordsFailure(t *testing.T) {
	db := openTestDB(t)
	account := insertAccount(t, db, "acme")
	comment := &fakeComment{err: &reddit.APIError{Errors: [][]string{{"RATELIMIT", "too fast"}}}}

	result, err := newTestPipeline(db, time.Hour, comment).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r := result.Accounts[0]; r.Posted != 0 || r.Failed != 1 {
		t.Errorf("unexpected result %+v", r)
	}

	records, _ := db.ListPostRecords(account.ID, 10)
	if len(records) != 1 || records[0].Status != database.StatusFailed {
		t.Fatalf("expected one failed record, got %+v", records)
	}
	if !strings.Contains(records[0].Note, "RATELIMIT") {
		t.Errorf("expected rejection reason in note, got %q", records[0].Note)
	}
}

func TestCandidateCommunityFallsBackToMetadata(t *testing.T) {
	c := discover.Candidate{Metadata: &reddit.Post{Subreddit: "golang"}}
	if got := candidateCommunity(c); got != "golang" {
		t.Errorf("expected metadata community, got %q", got)
	}
	c.Community = "productivity"
	if got := candidateCommunity(c); got != "productivity" {
		t.Errorf("expected explicit community preferred, got %q", got)
	}
}
