package portfolio

import "context"

// Store persists portfolio records. Implementations must enforce the slug
// uniqueness rules (portfolio slugs globally, project and post slugs within
// their portfolio) and return ErrSlugTaken on collision and ErrNotFound for
// missing records.
type Store interface {
	// Portfolios
	CreatePortfolio(ctx context.Context, p *Portfolio) error
	GetPortfolio(ctx context.Context, id string) (*Portfolio, error)
	GetPortfolioBySlug(ctx context.Context, slug string) (*Portfolio, error)
	ListPortfolios(ctx context.Context, userID string) ([]*Portfolio, error)
	UpdatePortfolio(ctx context.Context, p *Portfolio) error
	DeletePortfolio(ctx context.Context, id string) error

	// Projects
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context, portfolioID string) ([]*Project, error)
	UpdateProject(ctx context.Context, p *Project) error
	DeleteProject(ctx context.Context, id string) error

	// Posts
	CreatePost(ctx context.Context, p *Post) error
	GetPost(ctx context.Context, id string) (*Post, error)
	ListPosts(ctx context.Context, portfolioID string, publishedOnly bool) ([]*Post, error)
	UpdatePost(ctx context.Context, p *Post) error
	DeletePost(ctx context.Context, id string) error

	// Sections
	CreateSection(ctx context.Context, s *Section) error
	GetSection(ctx context.Context, id string) (*Section, error)
	ListSections(ctx context.Context, portfolioID string) ([]*Section, error)
	UpdateSection(ctx context.Context, s *Section) error
	DeleteSection(ctx context.Context, id string) error

	// UpdateSectionOrder rewrites the sort order for the given kind within a
	// portfolio. orderedIDs must contain exactly the IDs of that kind's
	// sections; the store assigns SortOrder by position.
	UpdateSectionOrder(ctx context.Context, portfolioID string, kind SectionKind, orderedIDs []string) error
}
