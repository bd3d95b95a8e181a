// Package sessions keeps the Redis list of signed-out session tokens.
package sessions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedPrefix = "revoked:session:"

// Revoker records signed-out session tokens in Redis until they expire. A
// Revoker with a nil client is a no-op, so local setups run without Redis.
type Revoker struct {
	client *redis.Client
}

func NewRevoker(c *redis.Client) *Revoker {
	return &Revoker{client: c}
}

// key hashes the token so raw credentials never sit in Redis.
func key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return revokedPrefix + hex.EncodeToString(sum[:])
}

// Revoke marks token revoked for ttl. Non-positive ttls are ignored, since
// the token has already expired.
func (r *Revoker) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if r == nil || r.client == nil || ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, key(token), "1", ttl).Err()
}

// IsRevoked returns true when the token was revoked and has not expired.
func (r *Revoker) IsRevoked(ctx context.Context, token string) (bool, error) {
	if r == nil || r.client == nil {
		return false, nil
	}
	exists, err := r.client.Exists(ctx, key(token)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// Ping reports whether the backing Redis is reachable; it is the /ready check.
func (r *Revoker) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Ping(ctx).Err()
}
