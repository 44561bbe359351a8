package sqlstore

import (
	"context"
	"time"
)

// RevocationStore is the SQL token blacklist.
type RevocationStore struct{ s *Store }

func (r *RevocationStore) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if !until.After(r.s.now()) {
		return nil
	}
	if _, err := r.s.db.ExecContext(ctx, r.s.rebind(
		`INSERT INTO ca_revoked_tokens (token_id, expires_at) VALUES (?, ?)
		 ON CONFLICT (token_id) DO NOTHING`),
		tokenID, until.UnixMilli()); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *RevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var n int
	if err := r.s.db.QueryRowContext(ctx, r.s.rebind(
		`SELECT COUNT(*) FROM ca_revoked_tokens WHERE token_id = ? AND expires_at > ?`),
		tokenID, r.s.now().UnixMilli()).Scan(&n); err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}
