package portfolio

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foliokit/foliokit/pkg/foliokit"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Service coordinates the entitlement gate and the content store. Creating a
// portfolio, project or blog post first reserves a slot through the manager;
// if the insert then fails the slot is released so a failed request never
// burns credit.
type Service struct {
	manager *foliokit.Manager
	store   Store
	logger  foliokit.Logger
	now     func() time.Time
	newID   func() string
}

// ServiceConfig configures a Service. Manager and Store are required.
type ServiceConfig struct {
	Manager *foliokit.Manager
	Store   Store
	Logger  foliokit.Logger
}

// NewService validates the config and returns a ready Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("portfolio: manager is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("portfolio: store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &foliokit.NoopLogger{}
	}
	return &Service{
		manager: cfg.Manager,
		store:   cfg.Store,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}, nil
}

// CreatePortfolio reserves a portfolio slot for the user and inserts the
// record. Returns *foliokit.LimitError when the user is at their ceiling and
// ErrSlugTaken when the slug is already in use.
func (s *Service) CreatePortfolio(ctx context.Context, p *Portfolio) (*Portfolio, error) {
	if p == nil || p.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !slugPattern.MatchString(p.Slug) {
		return nil, fmt.Errorf("%w: slug %q is not a valid slug", ErrInvalidInput, p.Slug)
	}

	if err := s.manager.Consume(ctx, p.UserID, foliokit.ResourcePortfolios); err != nil {
		return nil, err
	}

	rec := *p
	rec.ID = s.newID()
	rec.CreatedAt = s.now().UTC()
	rec.UpdatedAt = rec.CreatedAt

	if err := s.store.CreatePortfolio(ctx, &rec); err != nil {
		s.release(ctx, p.UserID, foliokit.ResourcePortfolios)
		return nil, err
	}
	return &rec, nil
}

// GetPortfolio returns a portfolio by ID.
func (s *Service) GetPortfolio(ctx context.Context, id string) (*Portfolio, error) {
	return s.store.GetPortfolio(ctx, id)
}

// ListPortfolios returns all portfolios owned by a user.
func (s *Service) ListPortfolios(ctx context.Context, userID string) ([]*Portfolio, error) {
	return s.store.ListPortfolios(ctx, userID)
}

// UpdatePortfolio applies metadata changes. The slot count is unaffected.
func (s *Service) UpdatePortfolio(ctx context.Context, p *Portfolio) (*Portfolio, error) {
	if p == nil || p.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if p.Slug != "" && !slugPattern.MatchString(p.Slug) {
		return nil, fmt.Errorf("%w: slug %q is not a valid slug", ErrInvalidInput, p.Slug)
	}
	rec := *p
	rec.UpdatedAt = s.now().UTC()
	if err := s.store.UpdatePortfolio(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeletePortfolio removes the portfolio and frees its slot. Contained
// projects, posts and sections are removed by the store; their slots are
// released too.
func (s *Service) DeletePortfolio(ctx context.Context, id string) error {
	p, err := s.store.GetPortfolio(ctx, id)
	if err != nil {
		return err
	}

	projects, err := s.store.ListProjects(ctx, id)
	if err != nil {
		return err
	}
	posts, err := s.store.ListPosts(ctx, id, false)
	if err != nil {
		return err
	}

	if err := s.store.DeletePortfolio(ctx, id); err != nil {
		return err
	}

	s.release(ctx, p.UserID, foliokit.ResourcePortfolios)
	for range projects {
		s.release(ctx, p.UserID, foliokit.ResourceProjects)
	}
	for range posts {
		s.release(ctx, p.UserID, foliokit.ResourceBlogPosts)
	}
	return nil
}

// CreateProject reserves a project slot and inserts the record.
func (s *Service) CreateProject(ctx context.Context, p *Project) (*Project, error) {
	if p == nil || p.PortfolioID == "" {
		return nil, fmt.Errorf("%w: portfolio_id is required", ErrInvalidInput)
	}
	if p.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if !slugPattern.MatchString(p.Slug) {
		return nil, fmt.Errorf("%w: slug %q is not a valid slug", ErrInvalidInput, p.Slug)
	}

	parent, err := s.store.GetPortfolio(ctx, p.PortfolioID)
	if err != nil {
		return nil, err
	}

	if err := s.manager.Consume(ctx, parent.UserID, foliokit.ResourceProjects); err != nil {
		return nil, err
	}

	rec := *p
	rec.ID = s.newID()
	rec.UserID = parent.UserID
	rec.CreatedAt = s.now().UTC()
	rec.UpdatedAt = rec.CreatedAt

	if err := s.store.CreateProject(ctx, &rec); err != nil {
		s.release(ctx, parent.UserID, foliokit.ResourceProjects)
		return nil, err
	}
	return &rec, nil
}

// GetProject returns a project by ID.
func (s *Service) GetProject(ctx context.Context, id string) (*Project, error) {
	return s.store.GetProject(ctx, id)
}

// ListProjects returns all projects in a portfolio.
func (s *Service) ListProjects(ctx context.Context, portfolioID string) ([]*Project, error) {
	return s.store.ListProjects(ctx, portfolioID)
}

// UpdateProject applies changes to an existing project.
func (s *Service) UpdateProject(ctx context.Context, p *Project) (*Project, error) {
	if p == nil || p.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if p.Slug != "" && !slugPattern.MatchString(p.Slug) {
		return nil, fmt.Errorf("%w: slug %q is not a valid slug", ErrInvalidInput, p.Slug)
	}
	rec := *p
	rec.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateProject(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteProject removes the project and frees its slot.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.release(ctx, p.UserID, foliokit.ResourceProjects)
	return nil
}

// CreatePost reserves a blog post slot and inserts the record as a draft.
// Drafts count against the limit the same as published posts.
func (s *Service) CreatePost(ctx context.Context, p *Post) (*Post, error) {
	if p == nil || p.PortfolioID == "" {
		return nil, fmt.Errorf("%w: portfolio_id is required", ErrInvalidInput)
	}
	if p.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if !slugPattern.MatchString(p.Slug) {
		return nil, fmt.Errorf("%w: slug %q is not a valid slug", ErrInvalidInput, p.Slug)
	}

	parent, err := s.store.GetPortfolio(ctx, p.PortfolioID)
	if err != nil {
		return nil, err
	}

	if err := s.manager.Consume(ctx, parent.UserID, foliokit.ResourceBlogPosts); err != nil {
		return nil, err
	}

	rec := *p
	rec.ID = s.newID()
	rec.UserID = parent.UserID
	rec.Published = false
	rec.PublishedAt = nil
	rec.CreatedAt = s.now().UTC()
	rec.UpdatedAt = rec.CreatedAt

	if err := s.store.CreatePost(ctx, &rec); err != nil {
		s.release(ctx, parent.UserID, foliokit.ResourceBlogPosts)
		return nil, err
	}
	return &rec, nil
}

// GetPost returns a post by ID.
func (s *Service) GetPost(ctx context.Context, id string) (*Post, error) {
	return s.store.GetPost(ctx, id)
}

// ListPosts returns a portfolio's posts, optionally published ones only.
func (s *Service) ListPosts(ctx context.Context, portfolioID string, publishedOnly bool) ([]*Post, error) {
	return s.store.ListPosts(ctx, portfolioID, publishedOnly)
}

// UpdatePost applies content changes without touching publication state.
func (s *Service) UpdatePost(ctx context.Context, p *Post) (*Post, error) {
	if p == nil || p.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	current, err := s.store.GetPost(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	rec := *p
	rec.Published = current.Published
	rec.PublishedAt = current.PublishedAt
	rec.UpdatedAt = s.now().UTC()
	if err := s.store.UpdatePost(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// PublishPost marks a post published. Publishing an already published post
// is a no-op; PublishedAt keeps its first value.
func (s *Service) PublishPost(ctx context.Context, id string) (*Post, error) {
	p, err := s.store.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Published {
		return p, nil
	}
	now := s.now().UTC()
	p.Published = true
	p.PublishedAt = &now
	p.UpdatedAt = now
	if err := s.store.UpdatePost(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UnpublishPost reverts a post to draft. The slot stays consumed.
func (s *Service) UnpublishPost(ctx context.Context, id string) (*Post, error) {
	p, err := s.store.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Published {
		return p, nil
	}
	p.Published = false
	p.PublishedAt = nil
	p.UpdatedAt = s.now().UTC()
	if err := s.store.UpdatePost(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePost removes the post and frees its slot.
func (s *Service) DeletePost(ctx context.Context, id string) error {
	p, err := s.store.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeletePost(ctx, id); err != nil {
		return err
	}
	s.release(ctx, p.UserID, foliokit.ResourceBlogPosts)
	return nil
}

// CreateSection adds a profile section. Sections are not limit-gated; the
// new section is appended at the end of its kind's ordering.
func (s *Service) CreateSection(ctx context.Context, sec *Section) (*Section, error) {
	if sec == nil || sec.PortfolioID == "" {
		return nil, fmt.Errorf("%w: portfolio_id is required", ErrInvalidInput)
	}
	if !sec.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown section kind %q", ErrInvalidInput, sec.Kind)
	}
	if sec.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	parent, err := s.store.GetPortfolio(ctx, sec.PortfolioID)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.ListSections(ctx, sec.PortfolioID)
	if err != nil {
		return nil, err
	}
	next := 0
	for _, other := range existing {
		if other.Kind == sec.Kind && other.SortOrder >= next {
			next = other.SortOrder + 1
		}
	}

	rec := *sec
	rec.ID = s.newID()
	rec.UserID = parent.UserID
	rec.SortOrder = next
	rec.CreatedAt = s.now().UTC()
	rec.UpdatedAt = rec.CreatedAt

	if err := s.store.CreateSection(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateSection applies changes to an existing section. Kind and SortOrder
// are immutable here; use ReorderSections for ordering.
func (s *Service) UpdateSection(ctx context.Context, sec *Section) (*Section, error) {
	if sec == nil || sec.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	current, err := s.store.GetSection(ctx, sec.ID)
	if err != nil {
		return nil, err
	}
	rec := *sec
	rec.Kind = current.Kind
	rec.SortOrder = current.SortOrder
	rec.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSection(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteSection removes a section.
func (s *Service) DeleteSection(ctx context.Context, id string) error {
	return s.store.DeleteSection(ctx, id)
}

// ListSections returns a portfolio's sections ordered by kind and SortOrder.
func (s *Service) ListSections(ctx context.Context, portfolioID string) ([]*Section, error) {
	return s.store.ListSections(ctx, portfolioID)
}

// ReorderSections rewrites the ordering of one kind's sections. orderedIDs
// must be a permutation of exactly that kind's section IDs.
func (s *Service) ReorderSections(ctx context.Context, portfolioID string, kind SectionKind, orderedIDs []string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown section kind %q", ErrInvalidInput, kind)
	}

	existing, err := s.store.ListSections(ctx, portfolioID)
	if err != nil {
		return err
	}
	current := make(map[string]bool)
	for _, sec := range existing {
		if sec.Kind == kind {
			current[sec.ID] = true
		}
	}
	if len(orderedIDs) != len(current) {
		return fmt.Errorf("%w: expected %d section ids, got %d", ErrInvalidInput, len(current), len(orderedIDs))
	}
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if !current[id] {
			return fmt.Errorf("%w: section %q is not a %s section of this portfolio", ErrInvalidInput, id, kind)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate section id %q", ErrInvalidInput, id)
		}
		seen[id] = true
	}

	return s.store.UpdateSectionOrder(ctx, portfolioID, kind, orderedIDs)
}

// PublicPortfolio assembles the public page for a slug: the portfolio, its
// projects, sections grouped by kind in sort order, and published posts.
func (s *Service) PublicPortfolio(ctx context.Context, slug string) (*PublicView, error) {
	p, err := s.store.GetPortfolioBySlug(ctx, strings.ToLower(slug))
	if err != nil {
		return nil, err
	}

	projects, err := s.store.ListProjects(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	sections, err := s.store.ListSections(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	posts, err := s.store.ListPosts(ctx, p.ID, true)
	if err != nil {
		return nil, err
	}

	grouped := make(map[SectionKind][]Section)
	for _, sec := range sections {
		grouped[sec.Kind] = append(grouped[sec.Kind], *sec)
	}
	for kind := range grouped {
		group := grouped[kind]
		sort.SliceStable(group, func(i, j int) bool { return group[i].SortOrder < group[j].SortOrder })
	}

	view := &PublicView{
		Portfolio: *p,
		Sections:  grouped,
	}
	for _, pr := range projects {
		view.Projects = append(view.Projects, *pr)
	}
	for _, post := range posts {
		view.Posts = append(view.Posts, *post)
	}
	return view, nil
}

func (s *Service) release(ctx context.Context, userID string, resource foliokit.Resource) {
	if err := s.manager.Release(ctx, userID, resource); err != nil {
		s.logger.Error("failed to release slot",
			foliokit.Field{Key: "user_id", Value: userID},
			foliokit.Field{Key: "resource", Value: resource},
			foliokit.Field{Key: "error", Value: err},
		)
	}
}
