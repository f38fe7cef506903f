// Package reply turns one approved candidate into reply text via a
// single model call.
package reply

import (
	"context"
	"fmt"
	"strings"

	"github.com/replypilot/replypilot/internal/database"
	"github.com/replypilot/replypilot/internal/discover"
	"github.com/replypilot/replypilot/internal/llm"
)

const maxReplyTokens = 1200

// Generator produces reply text for approved candidates.
type Generator struct {
	provider llm.Provider
}

// New creates a Generator on the given provider.
func New(provider llm.Provider) *Generator {
	return &Generator{provider: provider}
}

// Generate issues one model call for the candidate. The policy verdict
// shapes the prompt rather than gating the reply: with promotion
// disallowed the model is told to help without naming or linking the
// product. A failed call or empty output is an error; the caller marks
// the candidate failed, there is no retry.
func (g *Generator) Generate(ctx context.Context, account *database.Account, candidate discover.Candidate, pageContext string, allowsPromotion bool) (string, error) {
	text, err := g.provider.Generate(ctx, buildPrompt(account, candidate, pageContext, allowsPromotion), maxReplyTokens)
	if err != nil {
		return "", fmt.Errorf("generating reply: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("model returned empty reply")
	}
	return text, nil
}

func buildPrompt(account *database.Account, candidate discover.Candidate, pageContext string, allowsPromotion bool) string {
	var b strings.Builder
	b.WriteString("Write a reply to the discussion-board post below, as a regular community member sharing firsthand experience.\n\n")

	fmt.Fprintf(&b, "Post title: %s\n", candidate.Title)
	if candidate.Metadata != nil && strings.TrimSpace(candidate.Metadata.SelfText) != "" {
		fmt.Fprintf(&b, "Post body: %s\n", strings.TrimSpace(candidate.Metadata.SelfText))
	} else if candidate.Snippet != "" {
		fmt.Fprintf(&b, "Post excerpt: %s\n", candidate.Snippet)
	}
	if candidate.Metadata != nil {
		fmt.Fprintf(&b, "Community: %s, upvotes: %d, comments: %d\n",
			candidate.Metadata.Subreddit, candidate.Metadata.Ups, candidate.Metadata.NumComments)
	}
	if pageContext != "" {
		fmt.Fprintf(&b, "Linked page content: %s\n", pageContext)
	}

	fmt.Fprintf(&b, "\nProduct: %s\n", account.ProductDescription)
	if account.ProductBenefits != "" {
		fmt.Fprintf(&b, "Why people use it: %s\n", account.ProductBenefits)
	}

	if allowsPromotion {
		fmt.Fprintf(&b, "\nIf the product genuinely fits the author's problem, mention it naturally and include this link: %s\n", account.ProductLink)
	} else {
		b.WriteString("\nThis community does not allow promotion. Help the author with their problem; do not name the product and do not include any link.\n")
	}

	b.WriteString("\nKeep the reply short, specific and conversational. Reply with the comment text only.")
	return b.String()
}
