package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// AccountStore keeps accounts as JSON values keyed by identifier. It exists
// for Redis-only deployments; the SQL store is the usual system of record.
type AccountStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewAccountStore(redisClient redis.UniversalClient, prefix string) *AccountStore {
	if prefix == "" {
		prefix = "ca"
	}
	return &AccountStore{redis: redisClient, prefix: prefix}
}

func (s *AccountStore) key(identifier, identifierType string) string {
	return s.prefix + ":acct:" + identifierType + ":" + identifier
}

func (s *AccountStore) FindAccount(ctx context.Context, identifier, identifierType string) (*Account, error) {
	raw, err := s.redis.Get(ctx, s.key(identifier, identifierType)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var account Account
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &account, nil
}

func (s *AccountStore) CreateAccount(ctx context.Context, account Account) error {
	raw, err := json.Marshal(account)
	if err != nil {
		return err
	}

	ok, err := s.redis.SetNX(ctx, s.key(account.Identifier, account.IdentifierType), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return ErrAccountExists
	}
	return nil
}
