package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MrEthical07/courierauth/internal"
	"github.com/MrEthical07/courierauth/internal/stores"
)

// OTPStore persists codes in ca_otp_codes.
type OTPStore struct{ s *Store }

// Save inserts record and discards any earlier unconsumed code for the same
// identifier and purpose.
func (o *OTPStore) Save(ctx context.Context, record *stores.OTPRecord) error {
	tx, err := o.s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, o.s.rebind(
		`DELETE FROM ca_otp_codes WHERE identifier = ? AND purpose = ? AND consumed_at IS NULL`),
		record.Identifier, record.Purpose); err != nil {
		return unavailable(err)
	}

	if _, err := tx.ExecContext(ctx, o.s.rebind(
		`INSERT INTO ca_otp_codes (id, identifier, identifier_type, purpose, code_hash, attempts, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		record.ID, record.Identifier, record.IdentifierType, record.Purpose,
		record.CodeHash[:], int(record.Attempts),
		record.CreatedAt.UnixMilli(), record.ExpiresAt.UnixMilli()); err != nil {
		return unavailable(err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Consume marks the live record consumed when providedHash matches. The
// UPDATE only touches unconsumed, unexpired rows, so at most one caller can
// win. A wrong code increments attempts and deletes the row at maxAttempts.
func (o *OTPStore) Consume(
	ctx context.Context,
	identifier, purpose string,
	providedHash [32]byte,
	maxAttempts int,
) (*stores.OTPRecord, error) {
	now := o.s.now()

	var (
		record    = &stores.OTPRecord{Identifier: identifier, Purpose: purpose}
		hash      []byte
		attempts  int
		createdMs int64
		expiresMs int64
	)
	err := o.s.db.QueryRowContext(ctx, o.s.rebind(
		`UPDATE ca_otp_codes SET consumed_at = ?
		 WHERE identifier = ? AND purpose = ? AND code_hash = ? AND consumed_at IS NULL AND expires_at > ?
		 RETURNING id, identifier_type, code_hash, attempts, created_at, expires_at`),
		now.UnixMilli(), identifier, purpose, providedHash[:], now.UnixMilli(),
	).Scan(&record.ID, &record.IdentifierType, &hash, &attempts, &createdMs, &expiresMs)

	switch {
	case err == nil:
		copy(record.CodeHash[:], hash)
		if !internal.EqualHash(record.CodeHash, providedHash) {
			return nil, stores.ErrOTPMismatch
		}
		record.Attempts = uint16(attempts)
		record.CreatedAt = time.UnixMilli(createdMs)
		record.ExpiresAt = time.UnixMilli(expiresMs)
		record.ConsumedAt = now
		return record, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, unavailable(err)
	}

	return nil, o.recordFailure(ctx, identifier, purpose, maxAttempts, now)
}

func (o *OTPStore) recordFailure(ctx context.Context, identifier, purpose string, maxAttempts int, now time.Time) error {
	var (
		id       string
		attempts int
	)
	err := o.s.db.QueryRowContext(ctx, o.s.rebind(
		`UPDATE ca_otp_codes SET attempts = attempts + 1
		 WHERE identifier = ? AND purpose = ? AND consumed_at IS NULL AND expires_at > ?
		 RETURNING id, attempts`),
		identifier, purpose, now.UnixMilli(),
	).Scan(&id, &attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return stores.ErrOTPNotFound
	}
	if err != nil {
		return unavailable(err)
	}

	if attempts < maxAttempts {
		return stores.ErrOTPMismatch
	}
	if _, err := o.s.db.ExecContext(ctx, o.s.rebind(`DELETE FROM ca_otp_codes WHERE id = ?`), id); err != nil {
		return unavailable(err)
	}
	return stores.ErrOTPAttemptsExceeded
}

// Delete removes every unconsumed code for identifier and purpose.
func (o *OTPStore) Delete(ctx context.Context, identifier, purpose string) error {
	if _, err := o.s.db.ExecContext(ctx, o.s.rebind(
		`DELETE FROM ca_otp_codes WHERE identifier = ? AND purpose = ? AND consumed_at IS NULL`),
		identifier, purpose); err != nil {
		return unavailable(err)
	}
	return nil
}
