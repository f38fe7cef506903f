package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// InsertAccount creates a new account. Communities beyond MaxCommunities
// are rejected rather than silently truncated.
func (db *DB) InsertAccount(a *Account) (int64, error) {
	if len(a.Communities) > MaxCommunities {
		return 0, fmt.Errorf("account %q lists %d communities, max is %d",
			a.Name, len(a.Communities), MaxCommunities)
	}

	keywords, err := json.Marshal(a.SeedKeywords)
	if err != nil {
		return 0, err
	}
	communities, err := json.Marshal(a.Communities)
	if err != nil {
		return 0, err
	}

	result, err := db.conn.Exec(
		`INSERT INTO accounts (name, seed_keywords, communities, product_description,
			product_link, product_benefits, autopilot_enabled, refresh_token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, string(keywords), string(communities), a.ProductDescription,
		a.ProductLink, a.ProductBenefits, boolToInt(a.AutoPilotEnabled), a.RefreshToken,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListAccounts returns all accounts.
func (db *DB) ListAccounts() ([]Account, error) {
	return db.queryAccounts(accountSelect + " ORDER BY id")
}

// ListAutoPilotAccounts returns accounts with auto-pilot enabled.
// This is the pipeline's entry query.
func (db *DB) ListAutoPilotAccounts() ([]Account, error) {
	return db.queryAccounts(accountSelect + " WHERE autopilot_enabled = 1 ORDER BY id")
}

// GetAccount returns a single account by ID, or nil if not found.
func (db *DB) GetAccount(id int64) (*Account, error) {
	row := db.conn.QueryRow(accountSelect+" WHERE id = ?", id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SetAutoPilot toggles the auto-pilot flag for an account.
func (db *DB) SetAutoPilot(id int64, enabled bool) error {
	_, err := db.conn.Exec(
		"UPDATE accounts SET autopilot_enabled = ? WHERE id = ?",
		boolToInt(enabled), id,
	)
	return err
}

const accountSelect = `SELECT id, name, seed_keywords, communities, product_description,
	product_link, product_benefits, autopilot_enabled, refresh_token, created_at
	FROM accounts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var a Account
	var keywords, communities string
	var enabled int
	err := row.Scan(&a.ID, &a.Name, &keywords, &communities, &a.ProductDescription,
		&a.ProductLink, &a.ProductBenefits, &enabled, &a.RefreshToken, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(keywords), &a.SeedKeywords); err != nil {
		return nil, fmt.Errorf("account %d seed_keywords: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(communities), &a.Communities); err != nil {
		return nil, fmt.Errorf("account %d communities: %w", a.ID, err)
	}
	a.AutoPilotEnabled = enabled != 0
	return &a, nil
}

func (db *DB) queryAccounts(query string, args ...any) ([]Account, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
