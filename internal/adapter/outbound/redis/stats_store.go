// Package redis provides a Redis implementation of the StatsStore port.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Sentinel-Gate/ratelog/internal/port/outbound"
)

const (
	fieldName       = "name"
	fieldEmitted    = "emitted"
	fieldSuppressed = "suppressed"
)

// StatsStore implements outbound.StatsStore on Redis hashes.
//
// Layout, with the default prefix:
//
//	ratelog:stats:total        hash  emitted, suppressed (cumulative, never expires)
//	ratelog:stats:sites        set   site hashes seen
//	ratelog:stats:site:<hash>  hash  name, emitted, suppressed (expires after ttl)
//
// Site names are hashed with xxhash to keep keys short and free of the
// spaces and colons found in function names and file paths.
type StatsStore struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Option configures a StatsStore.
type Option func(*StatsStore)

// WithPrefix sets the key prefix. Surrounding colons are trimmed.
func WithPrefix(prefix string) Option {
	return func(s *StatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithTTL sets the expiry of per-site hashes. Zero disables expiry.
func WithTTL(d time.Duration) Option {
	return func(s *StatsStore) { s.ttl = d }
}

// NewStatsStore creates a new StatsStore using rdb.
func NewStatsStore(rdb goredis.UniversalClient, opts ...Option) *StatsStore {
	s := &StatsStore{
		rdb:    rdb,
		prefix: "ratelog:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to the Redis server at addr and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*StatsStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewStatsStore(client, opts...), nil
}

// SiteHash returns the hash used in per-site keys.
func SiteHash(name string) string {
	return strconv.FormatUint(xxhash.Sum64String(name), 16)
}

func (s *StatsStore) totalKey() string { return s.prefix + ":total" }
func (s *StatsStore) indexKey() string { return s.prefix + ":sites" }
func (s *StatsStore) siteKey(hash string) string {
	return s.prefix + ":site:" + hash
}

// Add implements outbound.StatsStore. All increments are sent in one
// pipeline.
func (s *StatsStore) Add(ctx context.Context, deltas map[string]outbound.SiteCounts) error {
	if len(deltas) == 0 {
		return nil
	}

	var emitted, suppressed int64
	pipe := s.rdb.Pipeline()
	for name, d := range deltas {
		emitted += d.Emitted
		suppressed += d.Suppressed

		hash := SiteHash(name)
		key := s.siteKey(hash)
		pipe.SAdd(ctx, s.indexKey(), hash)
		pipe.HSet(ctx, key, fieldName, name)
		if d.Emitted != 0 {
			pipe.HIncrBy(ctx, key, fieldEmitted, d.Emitted)
		}
		if d.Suppressed != 0 {
			pipe.HIncrBy(ctx, key, fieldSuppressed, d.Suppressed)
		}
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}
	if emitted != 0 {
		pipe.HIncrBy(ctx, s.totalKey(), fieldEmitted, emitted)
	}
	if suppressed != 0 {
		pipe.HIncrBy(ctx, s.totalKey(), fieldSuppressed, suppressed)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis stats pipeline: %w", err)
	}
	return nil
}

// Load implements outbound.StatsStore. Sites whose hash expired are dropped
// from the index.
func (s *StatsStore) Load(ctx context.Context) (map[string]outbound.SiteCounts, error) {
	hashes, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load site index: %w", err)
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(hashes))
	for i, h := range hashes {
		cmds[i] = pipe.HGetAll(ctx, s.siteKey(h))
	}
	if len(hashes) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("redis load sites: %w", err)
		}
	}

	out := make(map[string]outbound.SiteCounts, len(hashes))
	var expired []any
	for i, cmd := range cmds {
		fields := cmd.Val()
		name, ok := fields[fieldName]
		if !ok {
			expired = append(expired, hashes[i])
			continue
		}
		out[name] = outbound.SiteCounts{
			Emitted:    parseCount(fields[fieldEmitted]),
			Suppressed: parseCount(fields[fieldSuppressed]),
		}
	}
	if len(expired) > 0 {
		if err := s.rdb.SRem(ctx, s.indexKey(), expired...).Err(); err != nil {
			return out, fmt.Errorf("redis prune site index: %w", err)
		}
	}
	return out, nil
}

// Totals returns the cumulative emitted and suppressed counters.
func (s *StatsStore) Totals(ctx context.Context) (outbound.SiteCounts, error) {
	fields, err := s.rdb.HGetAll(ctx, s.totalKey()).Result()
	if err != nil {
		return outbound.SiteCounts{}, fmt.Errorf("redis load totals: %w", err)
	}
	return outbound.SiteCounts{
		Emitted:    parseCount(fields[fieldEmitted]),
		Suppressed: parseCount(fields[fieldSuppressed]),
	}, nil
}

// Ping reports whether the Redis server is reachable.
func (s *StatsStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close implements outbound.StatsStore.
func (s *StatsStore) Close() error {
	return s.rdb.Close()
}

func parseCount(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}

// Compile-time interface verification.
var _ outbound.StatsStore = (*StatsStore)(nil)
