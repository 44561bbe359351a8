package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blacklist records revoked token ids until the caller's deadline, which
// must cover every instant the token can still be parsed.
type Blacklist struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewBlacklist(redisClient redis.UniversalClient, prefix string) *Blacklist {
	if prefix == "" {
		prefix = "ca"
	}
	return &Blacklist{redis: redisClient, prefix: prefix, now: time.Now}
}

func (b *Blacklist) key(tokenID string) string {
	return b.prefix + ":bl:" + tokenID
}

// Revoke blacklists tokenID until until. Revoking an already expired token
// is a no-op.
func (b *Blacklist) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(b.now())
	if ttl <= 0 {
		return nil
	}
	if err := b.redis.Set(ctx, b.key(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *Blacklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := b.redis.Exists(ctx, b.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}
