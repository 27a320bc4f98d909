// Package postgres provides a PostgreSQL implementation of the
// portfolio.Store interface. Slug uniqueness is enforced by database
// constraints; unique violations surface as portfolio.ErrSlugTaken.
//
// Expected schema:
//
//	CREATE TABLE portfolios (
//	    id            TEXT PRIMARY KEY,
//	    user_id       TEXT NOT NULL,
//	    slug          TEXT NOT NULL UNIQUE,
//	    name          TEXT NOT NULL,
//	    description   TEXT NOT NULL DEFAULT '',
//	    profile_image TEXT NOT NULL DEFAULT '',
//	    banner_image  TEXT NOT NULL DEFAULT '',
//	    primary_color TEXT NOT NULL DEFAULT '',
//	    seo_title     TEXT NOT NULL DEFAULT '',
//	    seo_subtitle  TEXT NOT NULL DEFAULT '',
//	    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE INDEX portfolios_user_idx ON portfolios (user_id);
//
//	CREATE TABLE projects (
//	    id           TEXT PRIMARY KEY,
//	    portfolio_id TEXT NOT NULL REFERENCES portfolios (id) ON DELETE CASCADE,
//	    user_id      TEXT NOT NULL,
//	    slug         TEXT NOT NULL,
//	    title        TEXT NOT NULL,
//	    description  TEXT NOT NULL DEFAULT '',
//	    technologies TEXT[] NOT NULL DEFAULT '{}',
//	    demo_url     TEXT NOT NULL DEFAULT '',
//	    repo_url     TEXT NOT NULL DEFAULT '',
//	    cover_image  TEXT NOT NULL DEFAULT '',
//	    featured     BOOLEAN NOT NULL DEFAULT FALSE,
//	    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    UNIQUE (portfolio_id, slug)
//	);
//
//	CREATE TABLE posts (
//	    id           TEXT PRIMARY KEY,
//	    portfolio_id TEXT NOT NULL REFERENCES portfolios (id) ON DELETE CASCADE,
//	    user_id      TEXT NOT NULL,
//	    slug         TEXT NOT NULL,
//	    title        TEXT NOT NULL,
//	    content      TEXT NOT NULL DEFAULT '',
//	    published    BOOLEAN NOT NULL DEFAULT FALSE,
//	    published_at TIMESTAMPTZ,
//	    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    UNIQUE (portfolio_id, slug)
//	);
//
//	CREATE TABLE sections (
//	    id           TEXT PRIMARY KEY,
//	    portfolio_id TEXT NOT NULL REFERENCES portfolios (id) ON DELETE CASCADE,
//	    user_id      TEXT NOT NULL,
//	    kind         TEXT NOT NULL,
//	    title        TEXT NOT NULL,
//	    subtitle     TEXT NOT NULL DEFAULT '',
//	    description  TEXT NOT NULL DEFAULT '',
//	    start_date   TIMESTAMPTZ,
//	    end_date     TIMESTAMPTZ,
//	    sort_order   INT NOT NULL DEFAULT 0,
//	    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE INDEX sections_portfolio_idx ON sections (portfolio_id, kind, sort_order);
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foliokit/foliokit/pkg/portfolio"
)

// uniqueViolation is the PostgreSQL error code for duplicate keys
const uniqueViolation = "23505"

// Store implements portfolio.Store using PostgreSQL
type Store struct {
	pool *pgxpool.Pool
}

// Config holds PostgreSQL store configuration
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

// New creates a new PostgreSQL store
func New(ctx context.Context, config Config) (*Store, error) {
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

	return &Store{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// CreatePortfolio implements portfolio.Store
func (s *Store) CreatePortfolio(ctx context.Context, p *portfolio.Portfolio) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO portfolios (id, user_id, slug, name, description, profile_image,
			banner_image, primary_color, seo_title, seo_subtitle, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.UserID, p.Slug, p.Name, p.Description, p.ProfileImage,
		p.BannerImage, p.PrimaryColor, p.SEOTitle, p.SEOSubtitle, p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return portfolio.ErrSlugTaken
	}
	if err != nil {
		return fmt.Errorf("failed to insert portfolio: %w", err)
	}
	return nil
}

const portfolioColumns = `id, user_id, slug, name, description, profile_image,
	banner_image, primary_color, seo_title, seo_subtitle, created_at, updated_at`

func scanPortfolio(row pgx.Row) (*portfolio.Portfolio, error) {
	var p portfolio.Portfolio
	err := row.Scan(&p.ID, &p.UserID, &p.Slug, &p.Name, &p.Description, &p.ProfileImage,
		&p.BannerImage, &p.PrimaryColor, &p.SEOTitle, &p.SEOSubtitle, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, portfolio.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan portfolio: %w", err)
	}
	return &p, nil
}

// GetPortfolio implements portfolio.Store
func (s *Store) GetPortfolio(ctx context.Context, id string) (*portfolio.Portfolio, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+portfolioColumns+` FROM portfolios WHERE id = $1`, id)
	return scanPortfolio(row)
}

// GetPortfolioBySlug implements portfolio.Store
func (s *Store) GetPortfolioBySlug(ctx context.Context, slug string) (*portfolio.Portfolio, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+portfolioColumns+` FROM portfolios WHERE slug = $1`, slug)
	return scanPortfolio(row)
}

// ListPortfolios implements portfolio.Store
func (s *Store) ListPortfolios(ctx context.Context, userID string) ([]*portfolio.Portfolio, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+portfolioColumns+` FROM portfolios WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var out []*portfolio.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePortfolio implements portfolio.Store
func (s *Store) UpdatePortfolio(ctx context.Context, p *portfolio.Portfolio) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE portfolios
		SET slug = $2, name = $3, description = $4, profile_image = $5, banner_image = $6,
			primary_color = $7, seo_title = $8, seo_subtitle = $9, updated_at = $10
		WHERE id = $1`,
		p.ID, p.Slug, p.Name, p.Description, p.ProfileImage, p.BannerImage,
		p.PrimaryColor, p.SEOTitle, p.SEOSubtitle, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return portfolio.ErrSlugTaken
	}
	if err != nil {
		return fmt.Errorf("failed to update portfolio: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return portfolio.ErrNotFound
	}
	return nil
}

// DeletePortfolio implements portfolio.Store. The ON DELETE CASCADE
// constraints remove contained projects, posts and sections.
func (s *Store) DeletePortfolio(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM portfolios WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return portfolio.ErrNotFound
	}
	return nil
}

// CreateProject implements portfolio.Store
func (s *Store) CreateProject(ctx context.Context, p *portfolio.Project) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO projects (id, portfolio_id, user_id, slug, title, description,
			technologies, demo_url, repo_url, cover_image, featured, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.PortfolioID, p.UserID, p.Slug, p.Title, p.Description,
		p.Technologies, p.DemoURL, p.RepoURL, p.CoverImage, p.Featured, p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return portfolio.ErrSlugTaken
	}
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

const projectColumns = `id, portfolio_id, user_id, slug, title, description,
	technologies, demo_url, repo_url, cover_image, featured, created_at, updated_at`

func scanProject(row pgx.Row) (*portfolio.Project, error) {
	var p portfolio.Project
	err := row.Scan(&p.ID, &p.PortfolioID, &p.UserID, &p.Slug, &p.Title, &p.Description,
		&p.Technologies, &p.DemoURL, &p.RepoURL, &p.CoverImage, &p.Featured, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, portfolio.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	return &p, nil
}

// GetProject implements portfolio.Store
func (s *Store) GetProject(ctx context.Context, id string) (*portfolio.Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

// ListProjects implements portfolio.Store
func (s *Store) ListProjects(ctx context.Context, portfolioID string) ([]*portfolio.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE portfolio_id = $1 ORDER BY created_at`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var out []*portfolio.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProject implements portfolio.Store
func (s *Store) UpdateProject(ctx context.Context, p *portfolio.Project) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE projects
		SET slug = $2, title = $3, description = $4, technologies = $5, demo_url = $6,
			repo_url = $7, cover_image = $8, featured = $9, updated_at = $10
		WHERE id = $1`,
		p.ID, p.Slug, p.Title, p.Description, p.Technologies, p.DemoURL,
		p.RepoURL, p.CoverImage, p.Featured, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return portfolio.ErrSlugTaken
	}
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return portfolio.ErrNotFound
	}
	return nil
}

// DeleteProject implements portfolio.Store
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return portfolio.ErrNotFound
	}
	return nil
}

// CreatePost implements portfolio.Store
func (s *Store) CreatePost(ctx context.Context, p *portfolio.Post) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO posts (id, portfolio_id, user_id, slug, title, content,
			published, published_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.PortfolioID, p.UserID, p.Slug, p.Title, p.Content,
		p.Published, p.PublishedAt, p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return portfolio.ErrSlugTaken
	}
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

const postColumns = `id, portfolio_id, user_id, slug, title, content,
	published, published_at, created_at, updated_at`

func scanPost(row pgx.Row) (*portfolio.Post, error) {
	var p portfolio.Post
	err := row.Scan(&p.ID, &p.PortfolioID, &p.UserID, &p.Slug, &p.Title, &p.Content,
		&p.Published, &p.PublishedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, portfolio.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan post: %w", err)
	}
	return &p, nil
}

// GetPost implements portfolio.Store
func (s *Store) GetPost(ctx context.Context, id string) (*portfolio.Post, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	return scanPost(row)
}

// ListPosts implements portfolio.Store
func (s *Store) ListPosts(ctx context.Context, portfolioID string, publishedOnly bool) ([]*portfolio.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE portfolio_id = $1`
	if publishedOnly {
		query += ` AND published`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var out []*portfolio.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePost implements portfolio.Store
func (s *Store) UpdatePost(ctx context.Context, p *portfolio.Post) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE posts
		SET slug = $2, title = $3, content = $4, published = $5, published_at = $6, updated_at = $7
		WHERE id = $1`,
		p.ID, p.Slug, p.Title, p.Content, p.Published, p.PublishedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return portfolio.ErrSlugTaken
	}
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return portfolio.ErrNotFound
	}
	return nil
}

// DeletePost implements portfolio.Store
func (s *Store) DeletePost(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return portfolio.ErrNotFound
	}
	return nil
}

// CreateSection implements portfolio.Store
func (s *Store) CreateSection(ctx context.Context, sec *portfolio.Section) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sections (id, portfolio_id, user_id, kind, title, subtitle,
			description, start_date, end_date, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sec.ID, sec.PortfolioID, sec.UserID, sec.Kind, sec.Title, sec.Subtitle,
		sec.Description, sec.StartDate, sec.EndDate, sec.SortOrder, sec.CreatedAt, sec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert section: %w", err)
	}
	return nil
}

const sectionColumns = `id, portfolio_id, user_id, kind, title, subtitle,
	description, start_date, end_date, sort_order, created_at, updated_at`

func scanSection(row pgx.Row) (*portfolio.Section, error) {
	var sec portfolio.Section
	err := row.Scan(&sec.ID, &sec.PortfolioID, &sec.UserID, &sec.Kind, &sec.Title, &sec.Subtitle,
		&sec.Description, &sec.StartDate, &sec.EndDate, &sec.SortOrder, &sec.CreatedAt, &sec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, portfolio.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan section: %w", err)
	}
	return &sec, nil
}

// GetSection implements portfolio.Store
func (s *Store) GetSection(ctx context.Context, id string) (*portfolio.Section, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sectionColumns+` FROM sections WHERE id = $1`, id)
	return scanSection(row)
}

// ListSections implements portfolio.Store
func (s *Store) ListSections(ctx context.Context, portfolioID string) ([]*portfolio.Section, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sectionColumns+` FROM sections WHERE portfolio_id = $1 ORDER BY kind, sort_order`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections: %w", err)
	}
	defer rows.Close()

	var out []*portfolio.Section
	for rows.Next() {
		sec, err := scanSection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

// UpdateSection implements portfolio.Store
func (s *Store) UpdateSection(ctx context.Context, sec *portfolio.Section) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sections
		SET title = $2, subtitle = $3, description = $4, start_date = $5, end_date = $6, updated_at = $7
		WHERE id = $1`,
		sec.ID, sec.Title, sec.Subtitle, sec.Description, sec.StartDate, sec.EndDate, sec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update section: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return portfolio.ErrNotFound
	}
	return nil
}

// DeleteSection implements portfolio.Store
func (s *Store) DeleteSection(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete section: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return portfolio.ErrNotFound
	}
	return nil
}

// UpdateSectionOrder implements portfolio.Store. The whole ordering for one
// kind is rewritten in a single transaction.
func (s *Store) UpdateSectionOrder(ctx context.Context, portfolioID string, kind portfolio.SectionKind, orderedIDs []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for pos, id := range orderedIDs {
		tag, err := tx.Exec(ctx, `
			UPDATE sections SET sort_order = $1, updated_at = NOW()
			WHERE id = $2 AND portfolio_id = $3 AND kind = $4`,
			pos, id, portfolioID, kind,
		)
		if err != nil {
			return fmt.Errorf("failed to update section order: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return portfolio.ErrNotFound
		}
	}

	return tx.Commit(ctx)
}
