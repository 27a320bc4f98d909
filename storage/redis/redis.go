// Package redis provides a Redis implementation of the foliokit.Storage interface.
// This implementation uses atomic operations via Lua scripts for transaction safety.
//
// Key layout (all under the configured prefix):
//
//	entitlement:<userID>        hash  plan, portfolios_limit, projects_limit, blog_posts_limit, updated_at
//	usage:<userID>:<resource>   hash  used, updated_at
//	purchase:<sessionID>        string, JSON-encoded Purchase
//	purchases:<userID>          zset, session IDs scored by creation time
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/foliokit/foliokit/pkg/foliokit"
)

// Storage implements foliokit.Storage using Redis
type Storage struct {
	client  redis.UniversalClient
	config  Config
	scripts map[string]*redis.Script
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "foliokit:")
	KeyPrefix string

	// EntitlementTTL is the TTL for entitlement keys (0 = no expiration).
	// Limits are durable credit balances, so the default is no expiration;
	// a TTL only makes sense when Redis caches in front of another store.
	EntitlementTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix:      "foliokit:",
		EntitlementTTL: 0,
	}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "foliokit:"
	}

	s := &Storage{
		client:  client,
		config:  config,
		scripts: make(map[string]*redis.Script),
	}

	s.loadScripts()

	return s, nil
}

// loadScripts loads and compiles Lua scripts for atomic operations
func (s *Storage) loadScripts() {
	// Consume a creation slot atomically: check against the limit and
	// increment in one round trip so concurrent creations cannot both win
	// the last slot.
	s.scripts["consume"] = redis.NewScript(`
		local usageKey = KEYS[1]
		local limit = tonumber(ARGV[1])
		local now = ARGV[2]

		local current = redis.call('HGET', usageKey, 'used')
		local currentUsed = 0
		if current then
			currentUsed = tonumber(current)
		end

		if currentUsed >= limit then
			return {currentUsed, 'limit_reached'}
		end

		local newUsed = redis.call('HINCRBY', usageKey, 'used', 1)
		redis.call('HSET', usageKey, 'updated_at', now)

		return {newUsed, 'ok'}
	`)

	// Release a slot, floored at zero
	s.scripts["release"] = redis.NewScript(`
		local usageKey = KEYS[1]
		local now = ARGV[1]

		local current = redis.call('HGET', usageKey, 'used')
		local currentUsed = 0
		if current then
			currentUsed = tonumber(current)
		end

		if currentUsed > 0 then
			redis.call('HINCRBY', usageKey, 'used', -1)
		end
		redis.call('HSET', usageKey, 'updated_at', now)

		return 'ok'
	`)

	// Apply a purchase atomically. The purchase key is the idempotency
	// gate: if it already exists nothing is written. Otherwise the ledger
	// entry, the limit increments and the per-user index all land together.
	s.scripts["applyPurchase"] = redis.NewScript(`
		local purchaseKey = KEYS[1]
		local entitlementKey = KEYS[2]
		local indexKey = KEYS[3]
		local purchaseData = ARGV[1]
		local portfoliosDelta = tonumber(ARGV[2])
		local projectsDelta = tonumber(ARGV[3])
		local blogPostsDelta = tonumber(ARGV[4])
		local score = ARGV[5]
		local sessionID = ARGV[6]
		local now = ARGV[7]

		if redis.call('EXISTS', purchaseKey) == 1 then
			return 'exists'
		end

		if redis.call('EXISTS', entitlementKey) == 0 then
			return 'no_entitlement'
		end

		redis.call('SET', purchaseKey, purchaseData)
		redis.call('HINCRBY', entitlementKey, 'portfolios_limit', portfoliosDelta)
		redis.call('HINCRBY', entitlementKey, 'projects_limit', projectsDelta)
		redis.call('HINCRBY', entitlementKey, 'blog_posts_limit', blogPostsDelta)
		redis.call('HSET', entitlementKey, 'updated_at', now)
		redis.call('ZADD', indexKey, score, sessionID)

		return 'ok'
	`)
}

func (s *Storage) entitlementKey(userID string) string {
	return fmt.Sprintf("%sentitlement:%s", s.config.KeyPrefix, userID)
}

func (s *Storage) usageKey(userID string, resource foliokit.Resource) string {
	return fmt.Sprintf("%susage:%s:%s", s.config.KeyPrefix, userID, resource)
}

func (s *Storage) purchaseKey(sessionID string) string {
	return fmt.Sprintf("%spurchase:%s", s.config.KeyPrefix, sessionID)
}

func (s *Storage) purchaseIndexKey(userID string) string {
	return fmt.Sprintf("%spurchases:%s", s.config.KeyPrefix, userID)
}

// GetEntitlement implements foliokit.Storage
func (s *Storage) GetEntitlement(ctx context.Context, userID string) (*foliokit.Entitlement, error) {
	key := s.entitlementKey(userID)

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}
	if len(fields) == 0 {
		return nil, foliokit.ErrEntitlementNotFound
	}

	ent := &foliokit.Entitlement{
		UserID: userID,
		Plan:   fields["plan"],
	}
	if ent.Limits.Portfolios, err = atoiField(fields, "portfolios_limit"); err != nil {
		return nil, err
	}
	if ent.Limits.Projects, err = atoiField(fields, "projects_limit"); err != nil {
		return nil, err
	}
	if ent.Limits.BlogPosts, err = atoiField(fields, "blog_posts_limit"); err != nil {
		return nil, err
	}
	if raw := fields["updated_at"]; raw != "" {
		if ent.UpdatedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
	}

	return ent, nil
}

// SetEntitlement implements foliokit.Storage
func (s *Storage) SetEntitlement(ctx context.Context, ent *foliokit.Entitlement) error {
	if ent == nil || ent.UserID == "" {
		return fmt.Errorf("invalid entitlement")
	}

	key := s.entitlementKey(ent.UserID)

	err := s.client.HSet(ctx, key,
		"plan", ent.Plan,
		"portfolios_limit", ent.Limits.Portfolios,
		"projects_limit", ent.Limits.Projects,
		"blog_posts_limit", ent.Limits.BlogPosts,
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set entitlement: %w", err)
	}

	if s.config.EntitlementTTL > 0 {
		if err := s.client.Expire(ctx, key, s.config.EntitlementTTL).Err(); err != nil {
			return fmt.Errorf("failed to set entitlement ttl: %w", err)
		}
	}

	return nil
}

// GetUsage implements foliokit.Storage
func (s *Storage) GetUsage(
	ctx context.Context, userID string, resource foliokit.Resource,
) (*foliokit.Usage, error) {
	key := s.usageKey(userID, resource)

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil // No usage yet
	}

	usage := &foliokit.Usage{
		UserID:   userID,
		Resource: resource,
	}
	if usage.Used, err = atoiField(fields, "used"); err != nil {
		return nil, err
	}
	if raw := fields["updated_at"]; raw != "" {
		if usage.UpdatedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
	}

	return usage, nil
}

// ConsumeSlot implements foliokit.Storage with atomic consumption via Lua script
func (s *Storage) ConsumeSlot(ctx context.Context, req *foliokit.SlotRequest) (int, error) {
	result, err := s.scripts["consume"].Run(
		ctx,
		s.client,
		[]string{s.usageKey(req.UserID, req.Resource)},
		req.Limit,
		time.Now().UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to execute consume script: %w", err)
	}

	used, status, err := parseConsumeResult(result)
	if err != nil {
		return 0, err
	}

	if status == "limit_reached" {
		return used, foliokit.ErrLimitReached
	}

	return used, nil
}

// ReleaseSlot implements foliokit.Storage
func (s *Storage) ReleaseSlot(ctx context.Context, userID string, resource foliokit.Resource) error {
	err := s.scripts["release"].Run(
		ctx,
		s.client,
		[]string{s.usageKey(userID, resource)},
		time.Now().UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to execute release script: %w", err)
	}
	return nil
}

// ApplyPurchase implements foliokit.Storage. The ledger write, the limit
// increments and the per-user index update run in one Lua script, and the
// purchase key gates the whole thing for idempotency.
func (s *Storage) ApplyPurchase(
	ctx context.Context, purchase *foliokit.Purchase, grant foliokit.CreditGrant,
) error {
	if purchase == nil || purchase.SessionID == "" {
		return fmt.Errorf("invalid purchase")
	}

	stored := *purchase
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal purchase: %w", err)
	}

	result, err := s.scripts["applyPurchase"].Run(
		ctx,
		s.client,
		[]string{
			s.purchaseKey(stored.SessionID),
			s.entitlementKey(stored.UserID),
			s.purchaseIndexKey(stored.UserID),
		},
		string(data),
		grant.Portfolios,
		grant.Projects,
		grant.BlogPosts,
		stored.CreatedAt.UnixNano(),
		stored.SessionID,
		time.Now().UTC().Format(time.RFC3339Nano),
	).Text()
	if err != nil {
		return fmt.Errorf("failed to execute apply purchase script: %w", err)
	}

	switch result {
	case "ok":
		return nil
	case "exists":
		return foliokit.ErrPurchaseExists
	case "no_entitlement":
		return fmt.Errorf("no entitlement for user %q", stored.UserID)
	default:
		return fmt.Errorf("unexpected script result %q", result)
	}
}

// GetPurchase implements foliokit.Storage
func (s *Storage) GetPurchase(ctx context.Context, sessionID string) (*foliokit.Purchase, error) {
	data, err := s.client.Get(ctx, s.purchaseKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, foliokit.ErrPurchaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}

	var p foliokit.Purchase
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal purchase: %w", err)
	}

	return &p, nil
}

// ListPurchases implements foliokit.Storage, newest first
func (s *Storage) ListPurchases(ctx context.Context, userID string) ([]foliokit.Purchase, error) {
	sessionIDs, err := s.client.ZRevRange(ctx, s.purchaseIndexKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	if len(sessionIDs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(sessionIDs))
	for i, id := range sessionIDs {
		keys[i] = s.purchaseKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch purchases: %w", err)
	}

	out := make([]foliokit.Purchase, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // Index entry without a ledger key
		}
		var p foliokit.Purchase
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal purchase: %w", err)
		}
		out = append(out, p)
	}

	return out, nil
}

// Ping checks the Redis connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// parseConsumeResult parses the result from the consume Lua script
func parseConsumeResult(result interface{}) (used int, status string, err error) {
	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) != 2 {
		err = fmt.Errorf("unexpected script result format")
		return
	}

	usedInt64, ok := resultSlice[0].(int64)
	if !ok {
		err = fmt.Errorf("failed to parse used amount")
		return
	}
	used = int(usedInt64)

	status, ok = resultSlice[1].(string)
	if !ok {
		err = fmt.Errorf("failed to parse status")
		return
	}

	return
}

func atoiField(fields map[string]string, name string) (int, error) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return v, nil
}
