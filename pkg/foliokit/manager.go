package foliokit

import (
	"context"
	"errors"
	"time"
)

const (
	defaultPlanName = "free"
)

// Manager coordinates the usage gate and the purchase ledger on top of a
// pluggable Storage backend.
type Manager struct {
	storage Storage
	catalog *Catalog
	config  Config
}

// Config holds manager configuration
type Config struct {
	// Catalog maps SKUs to credit grants (default: DefaultCatalog)
	Catalog *Catalog

	// DefaultPlan is the plan name for users without an entitlement (default: "free")
	DefaultPlan string

	// DefaultLimits are the free-tier ceilings applied when no entitlement
	// record exists yet (default: 1 portfolio, 3 projects, 0 blog posts)
	DefaultLimits CreditGrant

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Metrics is used for tracking entitlement operations (default: NoopMetrics)
	Metrics Metrics
}

// NewManager creates a new entitlement manager with the given storage and configuration.
func NewManager(storage Storage, config Config) (*Manager, error) {
	if storage == nil {
		return nil, ErrStorageUnavailable
	}

	// Set defaults
	if config.Catalog == nil {
		config.Catalog = DefaultCatalog()
	}
	if config.DefaultPlan == "" {
		config.DefaultPlan = defaultPlanName
	}
	if config.DefaultLimits.IsZero() {
		config.DefaultLimits = CreditGrant{Portfolios: 1, Projects: 3, BlogPosts: 0}
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}

	return &Manager{
		storage: &instrumentedStorage{inner: storage, metrics: config.Metrics},
		catalog: config.Catalog,
		config:  config,
	}, nil
}

// Catalog returns the product catalog the manager validates purchases against.
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// GetEntitlement retrieves a user's entitlement, falling back to the default
// plan when no record exists yet. The fallback is not persisted.
func (m *Manager) GetEntitlement(ctx context.Context, userID string) (*Entitlement, error) {
	ent, err := m.storage.GetEntitlement(ctx, userID)
	if errors.Is(err, ErrEntitlementNotFound) {
		return &Entitlement{
			UserID: userID,
			Plan:   m.config.DefaultPlan,
			Limits: m.config.DefaultLimits,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return ent, nil
}

// SetPlan overwrites a user's plan and limit ceilings. This is the
// plan-change writer; credit grants go through ApplyPurchase instead.
func (m *Manager) SetPlan(ctx context.Context, userID, plan string, limits CreditGrant) error {
	return m.storage.SetEntitlement(ctx, &Entitlement{
		UserID:    userID,
		Plan:      plan,
		Limits:    limits,
		UpdatedAt: time.Now().UTC(),
	})
}

// GetUsage returns the current count and limit for a resource.
func (m *Manager) GetUsage(ctx context.Context, userID string, resource Resource) (*Usage, error) {
	if !resource.Valid() {
		return nil, ErrInvalidResource
	}

	ent, err := m.GetEntitlement(ctx, userID)
	if err != nil {
		return nil, err
	}

	usage, err := m.storage.GetUsage(ctx, userID, resource)
	if err != nil {
		return nil, err
	}
	if usage == nil {
		usage = &Usage{UserID: userID, Resource: resource}
	}
	usage.Limit = ent.Limits.ForResource(resource)
	return usage, nil
}

// CanCreate is the read-only usage gate: it reports whether one more
// resource of the given kind fits under the user's limit. The returned
// Usage carries the numbers for user-facing messages.
//
// The check here is advisory; Consume performs the same comparison
// atomically and is what actually reserves the slot.
func (m *Manager) CanCreate(ctx context.Context, userID string, resource Resource) (bool, *Usage, error) {
	startTime := time.Now()

	usage, err := m.GetUsage(ctx, userID, resource)
	if err != nil {
		return false, nil, err
	}

	m.config.Metrics.RecordGateCheck(resource, time.Since(startTime))
	return usage.Used < usage.Limit, usage, nil
}

// Consume atomically reserves one slot of a resource. When the user is at
// their ceiling it returns a *LimitError wrapping ErrLimitReached.
func (m *Manager) Consume(ctx context.Context, userID string, resource Resource) error {
	if !resource.Valid() {
		return ErrInvalidResource
	}

	ent, err := m.GetEntitlement(ctx, userID)
	if err != nil {
		return err
	}
	limit := ent.Limits.ForResource(resource)

	used, err := m.storage.ConsumeSlot(ctx, &SlotRequest{
		UserID:   userID,
		Resource: resource,
		Limit:    limit,
	})
	if errors.Is(err, ErrLimitReached) {
		m.config.Metrics.RecordSlotConsumption(resource, false)
		return &LimitError{Resource: resource, Used: used, Limit: limit}
	}
	if err != nil {
		return err
	}

	m.config.Metrics.RecordSlotConsumption(resource, true)
	m.config.Logger.Debug("slot consumed",
		Field{Key: "user_id", Value: userID},
		Field{Key: "resource", Value: resource},
		Field{Key: "used", Value: used},
		Field{Key: "limit", Value: limit},
	)
	return nil
}

// Release frees one previously consumed slot. Used when a resource is
// deleted or when a creation failed after its slot was reserved.
func (m *Manager) Release(ctx context.Context, userID string, resource Resource) error {
	if !resource.Valid() {
		return ErrInvalidResource
	}
	if err := m.storage.ReleaseSlot(ctx, userID, resource); err != nil {
		return err
	}
	m.config.Metrics.RecordSlotRelease(resource)
	return nil
}

// ApplyPurchase credits a completed payment session exactly once.
//
// The SKU is re-validated against the catalog (session metadata is untrusted
// input), the grant is scaled by quantity, and the storage layer applies the
// purchase record and the limit increments as one unit of work keyed by
// SessionID. Redelivery of an already-credited session returns
// applied=false with a nil error: AlreadyApplied is a success path.
func (m *Manager) ApplyPurchase(ctx context.Context, purchase *Purchase) (bool, error) {
	if purchase == nil || purchase.SessionID == "" || purchase.UserID == "" {
		return false, errors.New("purchase requires session id and user id")
	}
	if purchase.Quantity < 1 {
		return false, ErrInvalidQuantity
	}

	product, err := m.catalog.Lookup(string(purchase.SKU))
	if err != nil {
		return false, err
	}
	grant := product.Grant.Scale(purchase.Quantity)

	purchase.CreditsAdded = grant.Total()
	if purchase.Status == "" {
		purchase.Status = PurchaseStatusCompleted
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}

	// Make sure the entitlement row exists before the delta increment.
	// Two concurrent first-time grants both upserting the same defaults is
	// harmless; the purchase insert below stays the idempotency gate.
	_, err = m.storage.GetEntitlement(ctx, purchase.UserID)
	if errors.Is(err, ErrEntitlementNotFound) {
		err = m.storage.SetEntitlement(ctx, &Entitlement{
			UserID:    purchase.UserID,
			Plan:      m.config.DefaultPlan,
			Limits:    m.config.DefaultLimits,
			UpdatedAt: time.Now().UTC(),
		})
	}
	if err != nil {
		return false, err
	}

	err = m.storage.ApplyPurchase(ctx, purchase, grant)
	if errors.Is(err, ErrPurchaseExists) {
		m.config.Metrics.RecordCreditApplication(purchase.SKU, grant.Total(), false)
		m.config.Logger.Info("purchase already applied",
			Field{Key: "session_id", Value: purchase.SessionID},
			Field{Key: "user_id", Value: purchase.UserID},
		)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	m.config.Metrics.RecordCreditApplication(purchase.SKU, grant.Total(), true)
	m.config.Logger.Info("purchase applied",
		Field{Key: "session_id", Value: purchase.SessionID},
		Field{Key: "user_id", Value: purchase.UserID},
		Field{Key: "sku", Value: purchase.SKU},
		Field{Key: "quantity", Value: purchase.Quantity},
		Field{Key: "credits", Value: grant.Total()},
	)
	return true, nil
}

// Purchases returns a user's purchase history, newest first.
func (m *Manager) Purchases(ctx context.Context, userID string) ([]Purchase, error) {
	return m.storage.ListPurchases(ctx, userID)
}
