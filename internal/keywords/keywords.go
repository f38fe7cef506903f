// Package keywords broadens an account's seed keywords with model
// suggestions. Expansion is best-effort enrichment: seeds always
// survive, failures contribute nothing.
package keywords

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/replypilot/replypilot/internal/llm"
)

// MaxSuggestionsPerSeed caps how many model suggestions one seed may
// contribute.
const MaxSuggestionsPerSeed = 5

const maxExpandTokens = 500

// Expander turns seed keywords into a broader search set.
type Expander struct {
	provider llm.Provider
}

// New creates an Expander on the given provider.
func New(provider llm.Provider) *Expander {
	return &Expander{provider: provider}
}

// Expand issues one model call per seed, all concurrently, and returns
// the deduplicated union of seeds and suggestions, lower-cased and
// trimmed, seeds first. A failing or unparsable call leaves only its
// seed; there is no retry.
func (e *Expander) Expand(ctx context.Context, seeds []string) []string {
	suggestions := make([][]string, len(seeds))

	var wg sync.WaitGroup
	for i, seed := range seeds {
		wg.Add(1)
		go func(i int, seed string) {
			defer wg.Done()
			expanded, err := e.expandSeed(ctx, seed)
			if err != nil {
				log.Printf("Keyword expansion for %q failed: %v", seed, err)
				return
			}
			suggestions[i] = expanded
		}(i, seed)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	var out []string
	add := func(keyword string) {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" {
			return
		}
		if _, ok := seen[keyword]; ok {
			return
		}
		seen[keyword] = struct{}{}
		out = append(out, keyword)
	}

	for _, seed := range seeds {
		add(seed)
	}
	for _, list := range suggestions {
		for _, keyword := range list {
			add(keyword)
		}
	}
	return out
}

func (e *Expander) expandSeed(ctx context.Context, seed string) ([]string, error) {
	prompt := fmt.Sprintf(
		"List up to %d short search phrases people use on discussion boards when talking about %q. Respond with a JSON array of strings only.",
		MaxSuggestionsPerSeed, seed)

	response, err := e.provider.Generate(ctx, prompt, maxExpandTokens)
	if err != nil {
		return nil, err
	}
	parsed := llm.ParseJSONArrayResponse(response)
	if parsed == nil {
		return nil, fmt.Errorf("unparsable expansion response")
	}

	var out []string
	for _, item := range parsed {
		s, ok := item.(string)
		if !ok {
			continue
		}
		out = append(out, s)
		if len(out) >= MaxSuggestionsPerSeed {
			break
		}
	}
	return out, nil
}
