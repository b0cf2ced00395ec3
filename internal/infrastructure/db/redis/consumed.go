package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumedTTL outlives the purpose-token lifetime so a token can never be
// replayed after its consumed marker expires.
const consumedTTL = 25 * time.Hour

// ConsumedTokenStore records purpose tokens that already verified once.
// Only a hash of the token is stored. Key format: consumed:<sha256(token)>
type ConsumedTokenStore struct {
	client *redis.Client
}

// NewConsumedTokenStore creates a ConsumedTokenStore wrapping the given Redis client.
func NewConsumedTokenStore(client *redis.Client) *ConsumedTokenStore {
	return &ConsumedTokenStore{client: client}
}

// IsConsumed reports whether this token has already been used.
func (s *ConsumedTokenStore) IsConsumed(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("consumed check: %w", err)
	}
	return n > 0, nil
}

// MarkConsumed records that this token has been used (expires after consumedTTL).
func (s *ConsumedTokenStore) MarkConsumed(ctx context.Context, token string) error {
	return s.client.Set(ctx, s.key(token), "1", consumedTTL).Err()
}

func (s *ConsumedTokenStore) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "consumed:" + hex.EncodeToString(sum[:])
}
