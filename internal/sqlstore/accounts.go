package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MrEthical07/courierauth/internal/stores"
)

type AccountStore struct{ s *Store }

func (a *AccountStore) FindAccount(ctx context.Context, identifier, identifierType string) (*stores.Account, error) {
	var (
		acct      stores.Account
		createdMs int64
	)
	err := a.s.db.QueryRowContext(ctx, a.s.rebind(
		`SELECT id, identifier, identifier_type, role, store_id, created_at
		 FROM ca_accounts WHERE identifier_type = ? AND identifier = ?`),
		identifierType, identifier,
	).Scan(&acct.ID, &acct.Identifier, &acct.IdentifierType, &acct.Role, &acct.StoreID, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, stores.ErrAccountNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	acct.CreatedAt = time.UnixMilli(createdMs)
	return &acct, nil
}

// CreateAccount inserts account; a duplicate identifier yields
// stores.ErrAccountExists.
func (a *AccountStore) CreateAccount(ctx context.Context, account stores.Account) error {
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = a.s.now()
	}
	res, err := a.s.db.ExecContext(ctx, a.s.rebind(
		`INSERT INTO ca_accounts (id, identifier, identifier_type, role, store_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`),
		account.ID, account.Identifier, account.IdentifierType, account.Role, account.StoreID, createdAt.UnixMilli())
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return stores.ErrAccountExists
	}
	return nil
}
