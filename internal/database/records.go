package database

import "strings"

// InsertPostRecord appends a processing outcome for one candidate.
func (db *DB) InsertPostRecord(r *PostRecord) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO post_records (account_id, status, normalized_url, title, snippet,
			community, post_id, upvotes, comment_count, reply_text, note, auto_pilot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.AccountID, r.Status, r.NormalizedURL, r.Title, r.Snippet,
		r.Community, r.PostID, r.Upvotes, r.CommentCount, r.ReplyText, r.Note,
		boolToInt(r.AutoPilot),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// QueryProcessed returns the subset of urls that already have a posted or
// skipped record for the account. This backs the idempotency guard: it is
// consulted once at the start of a run, not re-checked per publish.
func (db *DB) QueryProcessed(accountID int64, urls []string) (map[string]struct{}, error) {
	processed := make(map[string]struct{})
	if len(urls) == 0 {
		return processed, nil
	}

	placeholders := strings.Repeat("?,", len(urls))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(urls)+1)
	args = append(args, accountID)
	for _, u := range urls {
		args = append(args, u)
	}

	rows, err := db.conn.Query(
		`SELECT DISTINCT normalized_url FROM post_records
		WHERE account_id = ? AND status IN ('posted', 'skipped')
		AND normalized_url IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		processed[u] = struct{}{}
	}
	return processed, rows.Err()
}

// ListPostRecords returns records for an account, newest first.
func (db *DB) ListPostRecords(accountID int64, limit int) ([]PostRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(
		`SELECT id, account_id, status, normalized_url, title, snippet, community,
			post_id, upvotes, comment_count, reply_text, note, auto_pilot, created_at
		FROM post_records WHERE account_id = ?
		ORDER BY id DESC LIMIT ?`, accountID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PostRecord
	for rows.Next() {
		var r PostRecord
		var autoPilot int
		err := rows.Scan(&r.ID, &r.AccountID, &r.Status, &r.NormalizedURL, &r.Title,
			&r.Snippet, &r.Community, &r.PostID, &r.Upvotes, &r.CommentCount,
			&r.ReplyText, &r.Note, &autoPilot, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		r.AutoPilot = autoPilot != 0
		records = append(records, r)
	}
	return records, rows.Err()
}
