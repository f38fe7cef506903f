// Package policy resolves whether a community permits self-promotional
// replies, cache-first with a rules-fetch and classification fallback.
package policy

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/replypilot/replypilot/internal/database"
	"github.com/replypilot/replypilot/internal/llm"
)

const maxPolicyTokens = 200

// Store is the persisted policy cache. *database.DB satisfies it.
type Store interface {
	GetCommunityPolicy(community string) (*database.CommunityPolicy, error)
	UpsertCommunityPolicy(community string, allowsPromotion bool) error
}

// RulesFetcher returns a community's posting rules as one text blob.
type RulesFetcher interface {
	Rules(ctx context.Context, community string) (string, error)
}

// Checker resolves per-community promotion policy. Resolutions are
// persisted, so each community pays the network cost at most once
// across all runs.
type Checker struct {
	store    Store
	rules    RulesFetcher
	provider llm.Provider
}

// New creates a Checker.
func New(store Store, rules RulesFetcher, provider llm.Provider) *Checker {
	return &Checker{store: store, rules: rules, provider: provider}
}

// AllowsPromotion resolves the policy for one community. Communities
// with no published rules default to allowing promotion; communities
// whose rules cannot be classified default to disallowing it. Both
// resolutions are persisted. A failed rules fetch suppresses promotion
// for this run without persisting, so the next run retries.
func (c *Checker) AllowsPromotion(ctx context.Context, community string) bool {
	cached, err := c.store.GetCommunityPolicy(community)
	if err != nil {
		log.Printf("Policy lookup for %s failed: %v", community, err)
	} else if cached != nil {
		return cached.AllowsPromotion
	}

	rules, err := c.rules.Rules(ctx, community)
	if err != nil {
		log.Printf("Rules fetch for %s failed, suppressing promotion this run: %v", community, err)
		return false
	}

	allowed := true
	if strings.TrimSpace(rules) != "" {
		allowed = c.classifyRules(ctx, community, rules)
	}

	if err := c.store.UpsertCommunityPolicy(community, allowed); err != nil {
		log.Printf("Persisting policy for %s failed: %v", community, err)
	}
	return allowed
}

func (c *Checker) classifyRules(ctx context.Context, community, rules string) bool {
	prompt := fmt.Sprintf(
		"Community rules for %s:\n\n%s\n\nDo these rules permit a reply that mentions and links a relevant product? Answer with exactly YES or NO.",
		community, rules)

	response, err := c.provider.Generate(ctx, prompt, maxPolicyTokens)
	if err != nil {
		log.Printf("Policy classification for %s failed, suppressing promotion: %v", community, err)
		return false
	}
	verdict, ok := parseVerdict(response)
	if !ok {
		log.Printf("Ambiguous policy response for %s, suppressing promotion: %q", community, response)
		return false
	}
	return verdict
}

// parseVerdict accepts the YES/NO shapes models actually emit: bare
// words, fenced or quoted text, or a small JSON object.
func parseVerdict(response string) (bool, bool) {
	if verdict, ok := matchYesNo(response); ok {
		return verdict, true
	}
	parsed := llm.ParseJSONResponse(response)
	for _, key := range []string{"answer", "allowed", "allows_promotion", "verdict"} {
		switch v := parsed[key].(type) {
		case bool:
			return v, true
		case string:
			if verdict, ok := matchYesNo(v); ok {
				return verdict, true
			}
		}
	}
	return false, false
}

func matchYesNo(s string) (bool, bool) {
	cleaned := strings.ToUpper(strings.Trim(s, "\"'.` \t\r\n"))
	words := strings.FieldsFunc(cleaned, func(r rune) bool {
		return r < 'A' || r > 'Z'
	})
	if len(words) == 0 {
		return false, false
	}
	switch words[0] {
	case "YES":
		return true, true
	case "NO":
		return false, true
	}
	return false, false
}
