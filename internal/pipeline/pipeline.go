// Package pipeline drives the full engagement run: discover candidate
// posts per enrolled account, classify relevance, resolve community
// policy, generate replies and publish them, recording every outcome.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/replypilot/replypilot/internal/classify"
	"github.com/replypilot/replypilot/internal/config"
	"github.com/replypilot/replypilot/internal/database"
	"github.com/replypilot/replypilot/internal/discover"
	"github.com/replypilot/replypilot/internal/fetch"
	"github.com/replypilot/replypilot/internal/keywords"
	"github.com/replypilot/replypilot/internal/llm"
	"github.com/replypilot/replypilot/internal/policy"
	"github.com/replypilot/replypilot/internal/publish"
	"github.com/replypilot/replypilot/internal/ratelimit"
	"github.com/replypilot/replypilot/internal/reddit"
	"github.com/replypilot/replypilot/internal/reply"
	"github.com/replypilot/replypilot/internal/resolve"
)

// accountPause spreads load between sequential account runs.
const accountPause = 2 * time.Second

// Account outcome statuses.
const (
	StatusDone          = "done"
	StatusSkippedConfig = "skipped_config"
	StatusFailed        = "failed"
)

// AccountResult summarizes one account's run.
type AccountResult struct {
	AccountName string
	Status      string
	Discovered  int
	Approved    int
	Posted      int
	Failed      int
	Err         error
}

// Result holds the results of a full run across all accounts.
type Result struct {
	Accounts []AccountResult
}

// Collaborator surfaces, narrowed to what the orchestrator calls so
// tests can substitute fakes.
type (
	authClient interface {
		RefreshAccessToken(ctx context.Context, refreshToken string) error
	}
	webSearcher interface {
		Search(ctx context.Context, keywords []string) []discover.Candidate
	}
	communitySearcher interface {
		Search(ctx context.Context, keywords, communities []string) []discover.Candidate
	}
	keywordExpander interface {
		Expand(ctx context.Context, seeds []string) []string
	}
	postResolver interface {
		Resolve(ctx context.Context, candidates []discover.Candidate) []discover.Candidate
	}
	relevanceClassifier interface {
		FilterFresh(candidates []discover.Candidate) []discover.Candidate
		Classify(ctx context.Context, productDescription string, candidates []discover.Candidate) []discover.Candidate
	}
	policyChecker interface {
		AllowsPromotion(ctx context.Context, community string) bool
	}
	contextFetcher interface {
		PostContext(ctx context.Context, post *reddit.Post) string
	}
	replyGenerator interface {
		Generate(ctx context.Context, account *database.Account, candidate discover.Candidate, pageContext string, allowsPromotion bool) (string, error)
	}
	resultPublisher interface {
		Publish(ctx context.Context, accountID int64, candidate discover.Candidate, replyText string) bool
		RecordFailure(accountID int64, candidate discover.Candidate, note string)
	}
)

// Pipeline orchestrates one run across all auto-pilot accounts.
type Pipeline struct {
	db *database.DB

	auth       authClient
	web        webSearcher
	expander   keywordExpander
	resolver   postResolver
	classifier relevanceClassifier
	checker    policyChecker
	fetcher    contextFetcher
	generator  replyGenerator
	publisher  resultPublisher

	// newCommunitySearcher builds a fresh connector per account so each
	// account's calls pace through its own rate limiter.
	newCommunitySearcher func() communitySearcher

	sleep func(time.Duration)
}

// New wires a pipeline from configuration.
func New(cfg *config.Config, db *database.DB) *Pipeline {
	provider := llm.CreateProvider(cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.APIKeyEnv)
	client := reddit.NewClient(cfg.Reddit.ClientID, cfg.Reddit.ClientSecret, cfg.Reddit.UserAgent)
	resolver := resolve.New(client)

	return &Pipeline{
		db:         db,
		auth:       client,
		web:        discover.NewWebSearcher(os.Getenv(cfg.WebSearch.APIKeyEnv)),
		expander:   keywords.New(provider),
		resolver:   resolver,
		classifier: classify.New(provider),
		checker:    policy.New(db, client, provider),
		fetcher:    fetch.NewPageFetcher(cfg.Reddit.UserAgent, 15*time.Second),
		generator:  reply.New(provider),
		publisher:  publish.New(client, db),
		newCommunitySearcher: func() communitySearcher {
			return discover.NewCommunitySearcher(client, ratelimit.New())
		},
		sleep: time.Sleep,
	}
}

// Run processes every auto-pilot account strictly sequentially with a
// fixed pause between accounts. Per-account failures never stop the
// run.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	accounts, err := p.db.ListAutoPilotAccounts()
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}

	r := &Result{}
	for i := range accounts {
		if i > 0 {
			p.sleep(accountPause)
		}
		result := p.processAccount(ctx, &accounts[i])
		r.Accounts = append(r.Accounts, result)
		log.Printf("Account %s: %s (discovered %d, approved %d, posted %d, failed %d)",
			result.AccountName, result.Status, result.Discovered, result.Approved, result.Posted, result.Failed)
	}
	return r, nil
}

func (p *Pipeline) processAccount(ctx context.Context, account *database.Account) (result AccountResult) {
	result = AccountResult{AccountName: account.Name}

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Account %s panicked: %v", account.Name, rec)
			result.Status = StatusFailed
			result.Err = fmt.Errorf("panic: %v", rec)
		}
	}()

	if len(account.SeedKeywords) == 0 || account.ProductDescription == "" || account.ProductLink == "" {
		result.Status = StatusSkippedConfig
		return result
	}

	runID, err := p.db.StartAccountRun(account.ID)
	if err != nil {
		log.Printf("Recording run start for %s failed: %v", account.Name, err)
	}
	defer func() {
		if runID == 0 {
			return
		}
		errText := ""
		if result.Err != nil {
			errText = result.Err.Error()
		}
		if err := p.db.FinishAccountRun(runID, result.Discovered, result.Approved, result.Posted, result.Failed, errText); err != nil {
			log.Printf("Recording run finish for %s failed: %v", account.Name, err)
		}
	}()

	if err := p.auth.RefreshAccessToken(ctx, account.RefreshToken); err != nil {
		result.Status = StatusFailed
		result.Err = fmt.Errorf("refreshing access token: %w", err)
		return result
	}

	expanded := p.expander.Expand(ctx, account.SeedKeywords)

	webResults := p.web.Search(ctx, expanded)
	communityResults := p.newCommunitySearcher().Search(ctx, expanded, account.Communities)
	candidates := discover.Dedup(webResults, communityResults)
	result.Discovered = len(candidates)

	candidates = p.resolver.Resolve(ctx, candidates)
	candidates = p.dropProcessed(account.ID, candidates)

	fresh := p.classifier.FilterFresh(candidates)
	approved := p.classifier.Classify(ctx, account.ProductDescription, fresh)
	result.Approved = len(approved)

	// Publishing is externally visible; keep it one post at a time.
	for _, candidate := range approved {
		allowed := p.checker.AllowsPromotion(ctx, candidateCommunity(candidate))
		pageContext := p.fetcher.PostContext(ctx, candidate.Metadata)

		text, err := p.generator.Generate(ctx, account, candidate, pageContext, allowed)
		if err != nil {
			log.Printf("Reply generation for %s failed: %v", candidate.NormalizedURL, err)
			p.publisher.RecordFailure(account.ID, candidate, "reply generation failed: "+err.Error())
			result.Failed++
			continue
		}

		if p.publisher.Publish(ctx, account.ID, candidate, text) {
			result.Posted++
		} else {
			result.Failed++
		}
	}

	result.Status = StatusDone
	return result
}

// dropProcessed removes candidates whose normalized URL already has a
// posted or skipped record. Checked once per run, before
// classification; there is no per-publish recheck.
func (p *Pipeline) dropProcessed(accountID int64, candidates []discover.Candidate) []discover.Candidate {
	if len(candidates) == 0 {
		return candidates
	}
	urls := make([]string, 0, len(candidates))
	for _, c := range candidates {
		urls = append(urls, c.NormalizedURL)
	}

	processed, err := p.db.QueryProcessed(accountID, urls)
	if err != nil {
		log.Printf("History lookup failed, keeping all candidates: %v", err)
		return candidates
	}

	var out []discover.Candidate
	for _, c := range candidates {
		if _, ok := processed[c.NormalizedURL]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

func candidateCommunity(c discover.Candidate) string {
	if c.Community != "" {
		return c.Community
	}
	if c.Metadata != nil {
		return c.Metadata.Subreddit
	}
	return ""
}
