// Package publish posts generated replies through the write API and
// records the outcome.
package publish

import (
	"context"
	"errors"
	"log"

	"github.com/replypilot/replypilot/internal/database"
	"github.com/replypilot/replypilot/internal/discover"
	"github.com/replypilot/replypilot/internal/reddit"
)

type commentClient interface {
	Comment(ctx context.Context, parentFullname, text string) error
}

type recordStore interface {
	InsertPostRecord(r *database.PostRecord) (int64, error)
}

// Publisher issues write calls and appends one PostRecord per attempt.
type Publisher struct {
	client commentClient
	store  recordStore
}

// New creates a Publisher.
func New(client commentClient, store recordStore) *Publisher {
	return &Publisher{client: client, store: store}
}

// Publish posts the reply under the candidate's post. It returns true
// when the write call succeeded. Every attempt appends a record: posted
// on success, failed with the rejection or transport error otherwise.
// There is no retry, and a record that fails to persist only logs.
func (p *Publisher) Publish(ctx context.Context, accountID int64, candidate discover.Candidate, replyText string) bool {
	record := recordFor(accountID, candidate)
	record.ReplyText = replyText

	err := p.client.Comment(ctx, fullname(candidate), replyText)
	switch {
	case err == nil:
		record.Status = database.StatusPosted
	default:
		record.Status = database.StatusFailed
		var apiErr *reddit.APIError
		if errors.As(err, &apiErr) {
			record.Note = "rejected: " + apiErr.Error()
		} else {
			record.Note = "publish failed: " + err.Error()
		}
		log.Printf("Publish to %s failed: %v", candidate.NormalizedURL, err)
	}

	p.append(record)
	return err == nil
}

// RecordFailure appends a failed record for a candidate that never
// reached the write call, e.g. when reply generation failed.
func (p *Publisher) RecordFailure(accountID int64, candidate discover.Candidate, note string) {
	record := recordFor(accountID, candidate)
	record.Status = database.StatusFailed
	record.Note = note
	p.append(record)
}

func (p *Publisher) append(record *database.PostRecord) {
	if _, err := p.store.InsertPostRecord(record); err != nil {
		log.Printf("Persisting %s record for %s failed: %v", record.Status, record.NormalizedURL, err)
	}
}

func recordFor(accountID int64, candidate discover.Candidate) *database.PostRecord {
	record := &database.PostRecord{
		AccountID:     accountID,
		NormalizedURL: candidate.NormalizedURL,
		Title:         candidate.Title,
		Snippet:       candidate.Snippet,
		Community:     candidate.Community,
		AutoPilot:     true,
	}
	if m := candidate.Metadata; m != nil {
		record.PostID = m.ID
		record.Upvotes = m.Ups
		record.CommentCount = m.NumComments
		if record.Community == "" {
			record.Community = m.Subreddit
		}
		if record.Title == "" {
			record.Title = m.Title
		}
	}
	return record
}

func fullname(candidate discover.Candidate) string {
	if m := candidate.Metadata; m != nil && m.Name != "" {
		return m.Name
	}
	return ""
}
