package database

import "database/sql"

// GetCommunityPolicy returns the cached policy for a community, or nil
// if the community has never been resolved.
func (db *DB) GetCommunityPolicy(community string) (*CommunityPolicy, error) {
	row := db.conn.QueryRow(
		`SELECT community, allows_promotion, resolved_at
		FROM community_policies WHERE community = ?`, community,
	)

	var p CommunityPolicy
	var allows int
	err := row.Scan(&p.Community, &allows, &p.ResolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.AllowsPromotion = allows != 0
	return &p, nil
}

// UpsertCommunityPolicy persists a resolved policy verdict. Policies are
// created once and overwritten only by an explicit re-resolution; the
// pipeline never deletes them.
func (db *DB) UpsertCommunityPolicy(community string, allowsPromotion bool) error {
	_, err := db.conn.Exec(
		`INSERT INTO community_policies (community, allows_promotion)
		VALUES (?, ?)
		ON CONFLICT(community) DO UPDATE SET
			allows_promotion = excluded.allows_promotion,
			resolved_at = datetime('now')`,
		community, boolToInt(allowsPromotion),
	)
	return err
}
