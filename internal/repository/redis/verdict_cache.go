package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/nexosupport/access-service/internal/core/port"
)

const (
	defaultVerdictPrefix = "rbac:acl"
	defaultVerdictTTL    = 5 * time.Minute
)

// VerdictCache memoizes access check verdicts in Redis using versioned keys.
// Invalidation bumps a generation counter (global or per-user) instead of
// scanning for keys; entries written under older generations become
// unreachable and expire via TTL. That makes invalidation O(1) and safe
// across processes.
type VerdictCache struct {
	client *red.Client
	prefix string
	ttl    time.Duration
}

// NewVerdictCache wires a Redis client into a verdict cache.
func NewVerdictCache(client *red.Client, keyPrefix string, ttl time.Duration) *VerdictCache {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultVerdictPrefix
	}
	if ttl <= 0 {
		ttl = defaultVerdictTTL
	}

	return &VerdictCache{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the cached verdict for (user, capability, context) and whether
// one was present. The returned handle is the versioned key computed from the
// generations as they stood at read time; Set stores under it verbatim, so a
// generation bump between Get and Set leaves the write unreachable.
func (c *VerdictCache) Get(ctx context.Context, userID int64, capability string, contextID int64) (bool, bool, string, error) {
	key, err := c.verdictKey(ctx, userID, capability, contextID)
	if err != nil {
		return false, false, "", err
	}

	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return false, false, key, nil
		}
		return false, false, "", fmt.Errorf("redis get verdict: %w", err)
	}

	return value == "1", true, key, nil
}

// Set stores a verdict under a handle returned by Get. The generations are
// deliberately not re-read here.
func (c *VerdictCache) Set(ctx context.Context, handle string, verdict bool) error {
	if handle == "" {
		return nil
	}

	value := "0"
	if verdict {
		value = "1"
	}

	if err := c.client.Set(ctx, handle, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set verdict: %w", err)
	}

	return nil
}

// InvalidateUser orphans every cached verdict for one user by bumping the
// user generation counter.
func (c *VerdictCache) InvalidateUser(ctx context.Context, userID int64) error {
	if err := c.client.Incr(ctx, c.userVersionKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis bump user verdict generation: %w", err)
	}
	return nil
}

// InvalidateAll orphans every cached verdict by bumping the global
// generation counter.
func (c *VerdictCache) InvalidateAll(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.globalVersionKey()).Err(); err != nil {
		return fmt.Errorf("redis bump global verdict generation: %w", err)
	}
	return nil
}

func (c *VerdictCache) verdictKey(ctx context.Context, userID int64, capability string, contextID int64) (string, error) {
	pipe := c.client.Pipeline()
	globalGet := pipe.Get(ctx, c.globalVersionKey())
	userGet := pipe.Get(ctx, c.userVersionKey(userID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, red.Nil) {
		return "", fmt.Errorf("redis get verdict generations: %w", err)
	}

	globalGen := generationOf(globalGet)
	userGen := generationOf(userGet)

	return fmt.Sprintf("%s:g%d:u%d:%d:%s:%d", c.prefix, globalGen, userGen, userID, capability, contextID), nil
}

func (c *VerdictCache) globalVersionKey() string {
	return c.prefix + ":ver:global"
}

func (c *VerdictCache) userVersionKey(userID int64) string {
	return fmt.Sprintf("%s:ver:user:%d", c.prefix, userID)
}

func generationOf(cmd *red.StringCmd) int64 {
	gen, err := cmd.Int64()
	if err != nil {
		return 0
	}
	return gen
}

var _ port.VerdictCache = (*VerdictCache)(nil)
