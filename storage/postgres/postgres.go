// Package postgres provides a PostgreSQL implementation of the foliokit.Storage
// interface. Slot reservation uses SELECT FOR UPDATE inside a transaction; credit
// application uses the purchase insert (unique on session id) as the idempotency
// gate for the limit increments, so a redelivered webhook cannot credit twice.
//
// Expected schema:
//
//	CREATE TABLE entitlements (
//	    user_id          TEXT PRIMARY KEY,
//	    plan             TEXT NOT NULL,
//	    portfolios_limit INT  NOT NULL DEFAULT 0,
//	    projects_limit   INT  NOT NULL DEFAULT 0,
//	    blog_posts_limit INT  NOT NULL DEFAULT 0,
//	    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//
//	CREATE TABLE resource_usage (
//	    user_id    TEXT NOT NULL,
//	    resource   TEXT NOT NULL,
//	    used       INT  NOT NULL DEFAULT 0,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    PRIMARY KEY (user_id, resource)
//	);
//
//	CREATE TABLE purchases (
//	    session_id    TEXT PRIMARY KEY,
//	    payment_id    TEXT,
//	    user_id       TEXT NOT NULL,
//	    sku           TEXT NOT NULL,
//	    quantity      INT  NOT NULL,
//	    amount_cents  BIGINT NOT NULL,
//	    credits_added INT  NOT NULL,
//	    status        TEXT NOT NULL,
//	    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE INDEX purchases_user_idx ON purchases (user_id, created_at DESC);
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foliokit/foliokit/pkg/foliokit"
)

// uniqueViolation is the PostgreSQL error code for duplicate keys
const uniqueViolation = "23505"

// Storage implements foliokit.Storage using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Storage{pool: pool, config: config}, nil
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the PostgreSQL connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetEntitlement implements foliokit.Storage
func (s *Storage) GetEntitlement(ctx context.Context, userID string) (*foliokit.Entitlement, error) {
	var ent foliokit.Entitlement

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, plan, portfolios_limit, projects_limit, blog_posts_limit, updated_at
			FROM entitlements WHERE user_id = $1`,
		userID).Scan(
		&ent.UserID,
		&ent.Plan,
		&ent.Limits.Portfolios,
		&ent.Limits.Projects,
		&ent.Limits.BlogPosts,
		&ent.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, foliokit.ErrEntitlementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}

	return &ent, nil
}

// SetEntitlement implements foliokit.Storage
func (s *Storage) SetEntitlement(ctx context.Context, ent *foliokit.Entitlement) error {
	if ent == nil || ent.UserID == "" {
		return fmt.Errorf("invalid entitlement")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO entitlements (user_id, plan, portfolios_limit, projects_limit, blog_posts_limit, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id) DO UPDATE SET
				plan = EXCLUDED.plan,
				portfolios_limit = EXCLUDED.portfolios_limit,
				projects_limit = EXCLUDED.projects_limit,
				blog_posts_limit = EXCLUDED.blog_posts_limit,
				updated_at = EXCLUDED.updated_at`,
		ent.UserID, ent.Plan, ent.Limits.Portfolios, ent.Limits.Projects, ent.Limits.BlogPosts,
		time.Now().UTC(),
	)

	if err != nil {
		return fmt.Errorf("failed to set entitlement: %w", err)
	}

	return nil
}

// GetUsage implements foliokit.Storage
func (s *Storage) GetUsage(
	ctx context.Context, userID string, resource foliokit.Resource,
) (*foliokit.Usage, error) {
	var usage foliokit.Usage

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, resource, used, updated_at
			FROM resource_usage
			WHERE user_id = $1 AND resource = $2`,
		userID, string(resource)).Scan(
		&usage.UserID,
		&usage.Resource,
		&usage.Used,
		&usage.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // No usage yet is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}

	return &usage, nil
}

// ConsumeSlot implements foliokit.Storage with an atomic check-and-increment
// via transaction. Two concurrent creations racing for the last slot serialize
// on the row lock; exactly one wins.
func (s *Storage) ConsumeSlot(ctx context.Context, req *foliokit.SlotRequest) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		//nolint:errcheck // Rollback error is safe to ignore if transaction was committed
		_ = tx.Rollback(ctx)
	}()

	// Ensure the row exists so SELECT FOR UPDATE has something to lock
	_, err = tx.Exec(ctx,
		`INSERT INTO resource_usage (user_id, resource, used, updated_at)
			VALUES ($1, $2, 0, NOW())
			ON CONFLICT (user_id, resource) DO NOTHING`,
		req.UserID, string(req.Resource))
	if err != nil {
		return 0, fmt.Errorf("failed to ensure usage record exists: %w", err)
	}

	var currentUsed int
	err = tx.QueryRow(ctx,
		`SELECT used FROM resource_usage
			WHERE user_id = $1 AND resource = $2
			FOR UPDATE`,
		req.UserID, string(req.Resource)).Scan(&currentUsed)
	if err != nil {
		return 0, fmt.Errorf("failed to get usage for update: %w", err)
	}

	if currentUsed >= req.Limit {
		return currentUsed, foliokit.ErrLimitReached
	}

	newUsed := currentUsed + 1
	_, err = tx.Exec(ctx,
		`UPDATE resource_usage SET used = $1, updated_at = NOW()
			WHERE user_id = $2 AND resource = $3`,
		newUsed, req.UserID, string(req.Resource))
	if err != nil {
		return 0, fmt.Errorf("failed to update usage: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	return newUsed, nil
}

// ReleaseSlot implements foliokit.Storage with a clamp at zero
func (s *Storage) ReleaseSlot(ctx context.Context, userID string, resource foliokit.Resource) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE resource_usage
			SET used = GREATEST(0, used - 1), updated_at = NOW()
			WHERE user_id = $1 AND resource = $2`,
		userID, string(resource))
	if err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}
	return nil
}

// ApplyPurchase implements foliokit.Storage. The purchase insert and the limit
// increments run in one transaction; the primary key on session_id makes the
// insert the idempotency gate, so a duplicate delivery rolls back without
// touching the counters.
func (s *Storage) ApplyPurchase(
	ctx context.Context, purchase *foliokit.Purchase, grant foliokit.CreditGrant,
) error {
	if purchase == nil || purchase.SessionID == "" {
		return fmt.Errorf("invalid purchase")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		//nolint:errcheck // Rollback error is safe to ignore if transaction was committed
		_ = tx.Rollback(ctx)
	}()

	// 1. Insert the ledger entry first; a duplicate session id stops here
	createdAt := purchase.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO purchases
			(session_id, payment_id, user_id, sku, quantity, amount_cents, credits_added, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		purchase.SessionID, purchase.PaymentID, purchase.UserID, string(purchase.SKU),
		purchase.Quantity, purchase.AmountCents, purchase.CreditsAdded, purchase.Status, createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return foliokit.ErrPurchaseExists
		}
		return fmt.Errorf("failed to record purchase: %w", err)
	}

	// 2. Apply the limit increments as atomic deltas
	tag, err := tx.Exec(ctx,
		`UPDATE entitlements
			SET portfolios_limit = portfolios_limit + $1,
				projects_limit = projects_limit + $2,
				blog_posts_limit = blog_posts_limit + $3,
				updated_at = NOW()
			WHERE user_id = $4`,
		grant.Portfolios, grant.Projects, grant.BlogPosts, purchase.UserID)
	if err != nil {
		return fmt.Errorf("failed to increment limits: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// No entitlement row: rolling back also removes the ledger entry,
		// so the notification stays retryable.
		return fmt.Errorf("no entitlement for user %q", purchase.UserID)
	}

	return tx.Commit(ctx)
}

// GetPurchase implements foliokit.Storage
func (s *Storage) GetPurchase(ctx context.Context, sessionID string) (*foliokit.Purchase, error) {
	var p foliokit.Purchase

	err := s.pool.QueryRow(ctx,
		`SELECT session_id, payment_id, user_id, sku, quantity, amount_cents, credits_added, status, created_at
			FROM purchases WHERE session_id = $1`,
		sessionID).Scan(
		&p.SessionID,
		&p.PaymentID,
		&p.UserID,
		&p.SKU,
		&p.Quantity,
		&p.AmountCents,
		&p.CreditsAdded,
		&p.Status,
		&p.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, foliokit.ErrPurchaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}

	return &p, nil
}

// ListPurchases implements foliokit.Storage
func (s *Storage) ListPurchases(ctx context.Context, userID string) ([]foliokit.Purchase, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, payment_id, user_id, sku, quantity, amount_cents, credits_added, status, created_at
			FROM purchases
			WHERE user_id = $1
			ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var out []foliokit.Purchase
	for rows.Next() {
		var p foliokit.Purchase
		if err := rows.Scan(
			&p.SessionID,
			&p.PaymentID,
			&p.UserID,
			&p.SKU,
			&p.Quantity,
			&p.AmountCents,
			&p.CreditsAdded,
			&p.Status,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate purchases: %w", err)
	}

	return out, nil
}
