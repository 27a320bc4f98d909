package foliokit

import (
	"time"
)

// Resource identifies a creatable, limit-gated resource kind.
type Resource string

const (
	// ResourcePortfolios is the portfolio resource kind
	ResourcePortfolios Resource = "portfolios"
	// ResourceProjects is the project resource kind
	ResourceProjects Resource = "projects"
	// ResourceBlogPosts is the blog post resource kind
	ResourceBlogPosts Resource = "blog_posts"
)

// Resources returns all known resource kinds in a stable order.
func Resources() []Resource {
	return []Resource{ResourcePortfolios, ResourceProjects, ResourceBlogPosts}
}

// Valid reports whether r is a known resource kind.
func (r Resource) Valid() bool {
	switch r {
	case ResourcePortfolios, ResourceProjects, ResourceBlogPosts:
		return true
	default:
		return false
	}
}

// ParseResource validates an external resource string.
// Unknown strings return ErrInvalidResource; internal callers should use the
// typed constants and never hit this path.
func ParseResource(s string) (Resource, error) {
	r := Resource(s)
	if !r.Valid() {
		return "", ErrInvalidResource
	}
	return r, nil
}

// CreditGrant is a delta applied to the three per-user limit counters.
// It doubles as the limit triple itself: an Entitlement's Limits field is
// the accumulated sum of the plan baseline and all purchased grants.
type CreditGrant struct {
	Portfolios int
	Projects   int
	BlogPosts  int
}

// Scale multiplies every counter by quantity.
func (g CreditGrant) Scale(quantity int) CreditGrant {
	return CreditGrant{
		Portfolios: g.Portfolios * quantity,
		Projects:   g.Projects * quantity,
		BlogPosts:  g.BlogPosts * quantity,
	}
}

// Add returns the element-wise sum of g and other.
func (g CreditGrant) Add(other CreditGrant) CreditGrant {
	return CreditGrant{
		Portfolios: g.Portfolios + other.Portfolios,
		Projects:   g.Projects + other.Projects,
		BlogPosts:  g.BlogPosts + other.BlogPosts,
	}
}

// ForResource returns the counter for a single resource kind.
func (g CreditGrant) ForResource(r Resource) int {
	switch r {
	case ResourcePortfolios:
		return g.Portfolios
	case ResourceProjects:
		return g.Projects
	case ResourceBlogPosts:
		return g.BlogPosts
	default:
		return 0
	}
}

// Total returns the sum of all three counters.
func (g CreditGrant) Total() int {
	return g.Portfolios + g.Projects + g.BlogPosts
}

// IsZero reports whether the grant carries no credits.
func (g CreditGrant) IsZero() bool {
	return g == CreditGrant{}
}

// Entitlement is a user's persisted limit record.
// It is mutated by exactly two writers: plan changes (Manager.SetPlan) and
// webhook-driven credit grants (Manager.ApplyPurchase).
type Entitlement struct {
	UserID    string
	Plan      string
	Limits    CreditGrant
	UpdatedAt time.Time
}

// Usage is the read-model the gate compares against: how many of a resource
// the user currently holds versus their ceiling.
type Usage struct {
	UserID    string
	Resource  Resource
	Used      int
	Limit     int
	UpdatedAt time.Time
}

// Remaining returns the number of slots still available (never negative).
func (u *Usage) Remaining() int {
	remaining := u.Limit - u.Used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// PurchaseStatusCompleted marks a fully processed payment session.
const PurchaseStatusCompleted = "completed"

// Purchase is an immutable ledger entry, one per processed payment session.
// SessionID is the idempotency key: the storage layer enforces uniqueness, so
// redelivery of the same webhook notification credits at most once.
type Purchase struct {
	SessionID    string
	PaymentID    string
	UserID       string
	SKU          SKU
	Quantity     int
	AmountCents  int64
	CreditsAdded int
	Status       string
	CreatedAt    time.Time
}
