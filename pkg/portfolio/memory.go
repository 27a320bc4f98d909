package portfolio

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore implements Store using in-memory maps. Primarily intended for
// testing and development.
type MemoryStore struct {
	mu         sync.Mutex
	portfolios map[string]*Portfolio
	projects   map[string]*Project
	posts      map[string]*Post
	sections   map[string]*Section
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		portfolios: make(map[string]*Portfolio),
		projects:   make(map[string]*Project),
		posts:      make(map[string]*Post),
		sections:   make(map[string]*Section),
	}
}

// CreatePortfolio implements Store
func (m *MemoryStore) CreatePortfolio(ctx context.Context, p *Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, other := range m.portfolios {
		if other.Slug == p.Slug {
			return ErrSlugTaken
		}
	}
	cp := *p
	m.portfolios[p.ID] = &cp
	return nil
}

// GetPortfolio implements Store
func (m *MemoryStore) GetPortfolio(ctx context.Context, id string) (*Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.portfolios[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// GetPortfolioBySlug implements Store
func (m *MemoryStore) GetPortfolioBySlug(ctx context.Context, slug string) (*Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.portfolios {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ListPortfolios implements Store
func (m *MemoryStore) ListPortfolios(ctx context.Context, userID string) ([]*Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Portfolio
	for _, p := range m.portfolios {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdatePortfolio implements Store
func (m *MemoryStore) UpdatePortfolio(ctx context.Context, p *Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.portfolios[p.ID]
	if !ok {
		return ErrNotFound
	}
	for _, other := range m.portfolios {
		if other.ID != p.ID && other.Slug == p.Slug {
			return ErrSlugTaken
		}
	}
	cp := *p
	cp.CreatedAt = current.CreatedAt
	m.portfolios[p.ID] = &cp
	return nil
}

// DeletePortfolio implements Store. Contained projects, posts and sections
// are removed with the portfolio.
func (m *MemoryStore) DeletePortfolio(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.portfolios[id]; !ok {
		return ErrNotFound
	}
	delete(m.portfolios, id)
	for pid, p := range m.projects {
		if p.PortfolioID == id {
			delete(m.projects, pid)
		}
	}
	for pid, p := range m.posts {
		if p.PortfolioID == id {
			delete(m.posts, pid)
		}
	}
	for sid, s := range m.sections {
		if s.PortfolioID == id {
			delete(m.sections, sid)
		}
	}
	return nil
}

// CreateProject implements Store
func (m *MemoryStore) CreateProject(ctx context.Context, p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.portfolios[p.PortfolioID]; !ok {
		return ErrNotFound
	}
	for _, other := range m.projects {
		if other.PortfolioID == p.PortfolioID && other.Slug == p.Slug {
			return ErrSlugTaken
		}
	}
	cp := *p
	cp.Technologies = append([]string(nil), p.Technologies...)
	m.projects[p.ID] = &cp
	return nil
}

// GetProject implements Store
func (m *MemoryStore) GetProject(ctx context.Context, id string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	cp.Technologies = append([]string(nil), p.Technologies...)
	return &cp, nil
}

// ListProjects implements Store
func (m *MemoryStore) ListProjects(ctx context.Context, portfolioID string) ([]*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Project
	for _, p := range m.projects {
		if p.PortfolioID == portfolioID {
			cp := *p
			cp.Technologies = append([]string(nil), p.Technologies...)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateProject implements Store
func (m *MemoryStore) UpdateProject(ctx context.Context, p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.projects[p.ID]
	if !ok {
		return ErrNotFound
	}
	for _, other := range m.projects {
		if other.ID != p.ID && other.PortfolioID == current.PortfolioID && other.Slug == p.Slug {
			return ErrSlugTaken
		}
	}
	cp := *p
	cp.PortfolioID = current.PortfolioID
	cp.UserID = current.UserID
	cp.CreatedAt = current.CreatedAt
	cp.Technologies = append([]string(nil), p.Technologies...)
	m.projects[p.ID] = &cp
	return nil
}

// DeleteProject implements Store
func (m *MemoryStore) DeleteProject(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[id]; !ok {
		return ErrNotFound
	}
	delete(m.projects, id)
	return nil
}

// CreatePost implements Store
func (m *MemoryStore) CreatePost(ctx context.Context, p *Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.portfolios[p.PortfolioID]; !ok {
		return ErrNotFound
	}
	for _, other := range m.posts {
		if other.PortfolioID == p.PortfolioID && other.Slug == p.Slug {
			return ErrSlugTaken
		}
	}
	cp := *p
	m.posts[p.ID] = &cp
	return nil
}

// GetPost implements Store
func (m *MemoryStore) GetPost(ctx context.Context, id string) (*Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// ListPosts implements Store
func (m *MemoryStore) ListPosts(ctx context.Context, portfolioID string, publishedOnly bool) ([]*Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Post
	for _, p := range m.posts {
		if p.PortfolioID != portfolioID {
			continue
		}
		if publishedOnly && !p.Published {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UpdatePost implements Store
func (m *MemoryStore) UpdatePost(ctx context.Context, p *Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.posts[p.ID]
	if !ok {
		return ErrNotFound
	}
	for _, other := range m.posts {
		if other.ID != p.ID && other.PortfolioID == current.PortfolioID && other.Slug == p.Slug {
			return ErrSlugTaken
		}
	}
	cp := *p
	cp.PortfolioID = current.PortfolioID
	cp.UserID = current.UserID
	cp.CreatedAt = current.CreatedAt
	m.posts[p.ID] = &cp
	return nil
}

// DeletePost implements Store
func (m *MemoryStore) DeletePost(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.posts[id]; !ok {
		return ErrNotFound
	}
	delete(m.posts, id)
	return nil
}

// CreateSection implements Store
func (m *MemoryStore) CreateSection(ctx context.Context, s *Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.portfolios[s.PortfolioID]; !ok {
		return ErrNotFound
	}
	cp := *s
	m.sections[s.ID] = &cp
	return nil
}

// GetSection implements Store
func (m *MemoryStore) GetSection(ctx context.Context, id string) (*Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sections[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// ListSections implements Store
func (m *MemoryStore) ListSections(ctx context.Context, portfolioID string) ([]*Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Section
	for _, s := range m.sections {
		if s.PortfolioID == portfolioID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].SortOrder < out[j].SortOrder
	})
	return out, nil
}

// UpdateSection implements Store
func (m *MemoryStore) UpdateSection(ctx context.Context, s *Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.sections[s.ID]
	if !ok {
		return ErrNotFound
	}
	cp := *s
	cp.PortfolioID = current.PortfolioID
	cp.UserID = current.UserID
	cp.CreatedAt = current.CreatedAt
	m.sections[s.ID] = &cp
	return nil
}

// DeleteSection implements Store
func (m *MemoryStore) DeleteSection(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sections[id]; !ok {
		return ErrNotFound
	}
	delete(m.sections, id)
	return nil
}

// UpdateSectionOrder implements Store
func (m *MemoryStore) UpdateSectionOrder(ctx context.Context, portfolioID string, kind SectionKind, orderedIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for pos, id := range orderedIDs {
		s, ok := m.sections[id]
		if !ok || s.PortfolioID != portfolioID || s.Kind != kind {
			return ErrNotFound
		}
		s.SortOrder = pos
	}
	return nil
}
