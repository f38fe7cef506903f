// Package classify produces a per-post relevance verdict from a
// language model, failing closed: any post the model does not clearly
// approve is dropped.
package classify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/replypilot/replypilot/internal/discover"
	"github.com/replypilot/replypilot/internal/llm"
	"github.com/replypilot/replypilot/internal/resolve"
)

// ChunkSize is the number of (id, title) pairs per classification call.
const ChunkSize = 100

const maxVerdictTokens = 4000

// Verdict is the classifier's per-post output.
type Verdict string

const (
	VerdictYes   Verdict = "YES"
	VerdictMaybe Verdict = "MAYBE"
	VerdictNo    Verdict = "NO"
)

// Classifier batches candidates through a model call and keeps only the
// ones with a clear YES verdict.
type Classifier struct {
	provider llm.Provider
	now      func() time.Time
}

// New creates a Classifier on the given provider.
func New(provider llm.Provider) *Classifier {
	return &Classifier{provider: provider, now: time.Now}
}

// FilterFresh drops candidates older than the freshness window or with
// no resolvable creation timestamp.
func (c *Classifier) FilterFresh(candidates []discover.Candidate) []discover.Candidate {
	cutoff := c.now().Add(-discover.FreshnessWindow)
	var out []discover.Candidate
	for _, cand := range candidates {
		if cand.Metadata == nil {
			continue
		}
		created := cand.Metadata.CreatedAt()
		if created.IsZero() || created.Before(cutoff) {
			continue
		}
		out = append(out, cand)
	}
	return out
}

// Classify issues one model call per chunk, all chunks concurrently,
// and returns the candidates with a YES verdict. An identifier missing
// from a chunk's output, or a chunk whose call fails, resolves to NO
// for every member.
func (c *Classifier) Classify(ctx context.Context, productDescription string, candidates []discover.Candidate) []discover.Candidate {
	if len(candidates) == 0 {
		return nil
	}

	verdicts := make(map[string]Verdict, len(candidates))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for start := 0; start < len(candidates); start += ChunkSize {
		chunk := candidates[start:min(start+ChunkSize, len(candidates))]
		wg.Add(1)
		go func(chunk []discover.Candidate) {
			defer wg.Done()
			result := c.classifyChunk(ctx, productDescription, chunk)
			mu.Lock()
			for id, v := range result {
				verdicts[id] = v
			}
			mu.Unlock()
		}(chunk)
	}
	wg.Wait()

	var approved []discover.Candidate
	for _, cand := range candidates {
		if verdicts[postID(cand)] == VerdictYes {
			approved = append(approved, cand)
		}
	}
	return approved
}

func (c *Classifier) classifyChunk(ctx context.Context, productDescription string, chunk []discover.Candidate) map[string]Verdict {
	response, err := c.provider.Generate(ctx, buildPrompt(productDescription, chunk), maxVerdictTokens)
	if err != nil {
		log.Printf("Classification chunk of %d failed: %v", len(chunk), err)
		return nil
	}

	parsed := llm.ParseJSONResponse(response)
	if parsed == nil {
		log.Printf("Unparsable classification response for chunk of %d", len(chunk))
		return nil
	}

	verdicts := make(map[string]Verdict, len(chunk))
	for id, raw := range parsed {
		switch strings.ToUpper(strings.TrimSpace(fmt.Sprint(raw))) {
		case "YES":
			verdicts[id] = VerdictYes
		case "MAYBE":
			verdicts[id] = VerdictMaybe
		default:
			verdicts[id] = VerdictNo
		}
	}
	return verdicts
}

func buildPrompt(productDescription string, chunk []discover.Candidate) string {
	var b strings.Builder
	b.WriteString("You review discussion-board posts for a product team.\n\n")
	b.WriteString("Product: ")
	b.WriteString(productDescription)
	b.WriteString("\n\nFor each post below, judge whether a reply mentioning this product would be genuinely helpful to the author. ")
	b.WriteString("Respond with a JSON object mapping each post id to exactly one of \"YES\", \"MAYBE\" or \"NO\". ")
	b.WriteString("Use \"YES\" only when the post clearly asks for or would welcome such a suggestion.\n\nPosts:\n")
	for _, cand := range chunk {
		fmt.Fprintf(&b, "- id: %s title: %s\n", postID(cand), cand.Title)
	}
	return b.String()
}

func postID(c discover.Candidate) string {
	if c.Metadata != nil && c.Metadata.ID != "" {
		return c.Metadata.ID
	}
	return resolve.PostID(c.NormalizedURL)
}
