package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenRevoker tracks logged-out session tokens until they expire, and
// per-user cutoffs before which every session is void.
type TokenRevoker interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
	RevokeUser(ctx context.Context, userID int64, cutoff time.Time) error
	RevokedAfter(ctx context.Context, userID int64) (time.Time, error)
}

// MemoryTokenRevoker keeps revocations in-process (single instance only).
type MemoryTokenRevoker struct {
	mu      sync.Mutex
	tokens  map[string]time.Time
	cutoffs map[int64]time.Time
}

// NewMemoryTokenRevoker builds an in-memory revoker.
func NewMemoryTokenRevoker() *MemoryTokenRevoker {
	return &MemoryTokenRevoker{
		tokens:  make(map[string]time.Time),
		cutoffs: make(map[int64]time.Time),
	}
}

func (r *MemoryTokenRevoker) Revoke(_ context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[tokenDigest(token)] = time.Now().Add(ttl)
	return nil
}

func (r *MemoryTokenRevoker) IsRevoked(_ context.Context, token string) (bool, error) {
	key := tokenDigest(token)
	r.mu.Lock()
	defer r.mu.Unlock()
	expiry, ok := r.tokens[key]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(r.tokens, key)
		return false, nil
	}
	return true, nil
}

// RevokeUser records cutoff; an older cutoff never replaces a newer one.
func (r *MemoryTokenRevoker) RevokeUser(_ context.Context, userID int64, cutoff time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.cutoffs[userID]; ok && !cutoff.After(current) {
		return nil
	}
	r.cutoffs[userID] = cutoff
	return nil
}

func (r *MemoryTokenRevoker) RevokedAfter(_ context.Context, userID int64) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cutoffs[userID], nil
}

// RedisTokenRevoker stores revocations in Redis so they hold across instances.
type RedisTokenRevoker struct {
	client    *redis.Client
	cutoffTTL time.Duration
}

// NewRedisTokenRevoker builds a Redis-backed revoker. Per-user cutoffs are
// kept for cutoffTTL, which should be at least the session lifetime.
func NewRedisTokenRevoker(client *redis.Client, cutoffTTL time.Duration) *RedisTokenRevoker {
	if cutoffTTL <= 0 {
		cutoffTTL = 30 * 24 * time.Hour
	}
	return &RedisTokenRevoker{client: client, cutoffTTL: cutoffTTL}
}

var raiseCutoffScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local incoming = tonumber(ARGV[1])
if incoming > current then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
end
return 1
`)

func (r *RedisTokenRevoker) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.client.Set(ctx, "musiclib:revoked:"+tokenDigest(token), "1", ttl).Err()
}

func (r *RedisTokenRevoker) IsRevoked(ctx context.Context, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	n, err := r.client.Exists(ctx, "musiclib:revoked:"+tokenDigest(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisTokenRevoker) RevokeUser(ctx context.Context, userID int64, cutoff time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return raiseCutoffScript.Run(ctx, r.client, []string{cutoffKey(userID)},
		cutoff.UnixMilli(), r.cutoffTTL.Milliseconds()).Err()
}

func (r *RedisTokenRevoker) RevokedAfter(ctx context.Context, userID int64) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	ms, err := r.client.Get(ctx, cutoffKey(userID)).Int64()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func cutoffKey(userID int64) string {
	return "musiclib:revoked-user:" + strconv.FormatInt(userID, 10)
}

// tokenDigest keeps raw bearer tokens out of memory maps and Redis keys.
func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
