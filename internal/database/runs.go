package database

// StartAccountRun records the beginning of a per-account pipeline pass.
func (db *DB) StartAccountRun(accountID int64) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO account_runs (account_id, started_at) VALUES (?, datetime('now'))`,
		accountID,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// FinishAccountRun records the outcome of a per-account pipeline pass.
func (db *DB) FinishAccountRun(runID int64, discovered, approved, posted, failed int, runErr string) error {
	_, err := db.conn.Exec(
		`UPDATE account_runs SET finished_at = datetime('now'),
			discovered = ?, approved = ?, posted = ?, failed = ?, error = ?
		WHERE id = ?`,
		discovered, approved, posted, failed, runErr, runID,
	)
	return err
}

// ListAccountRuns returns recent runs for an account, newest first.
func (db *DB) ListAccountRuns(accountID int64, limit int) ([]AccountRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(
		`SELECT id, account_id, started_at, finished_at, discovered, approved, posted, failed, error
		FROM account_runs WHERE account_id = ? ORDER BY id DESC LIMIT ?`,
		accountID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []AccountRun
	for rows.Next() {
		var r AccountRun
		err := rows.Scan(&r.ID, &r.AccountID, &r.StartedAt, &r.FinishedAt,
			&r.Discovered, &r.Approved, &r.Posted, &r.Failed, &r.Error)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
