package foliokit

import (
	"context"
)

// SlotRequest asks storage to reserve one slot of a resource for a user.
// Limit is resolved by the Manager from the user's entitlement before the
// call; limits only ever grow through credit grants, so a concurrently
// stale limit is conservative, never permissive.
type SlotRequest struct {
	UserID   string
	Resource Resource
	Limit    int
}

// Storage defines the interface for entitlement and purchase-ledger persistence.
// All methods use concrete types from this package to avoid import cycles.
type Storage interface {
	// GetEntitlement retrieves a user's entitlement.
	// Returns ErrEntitlementNotFound when no record exists.
	GetEntitlement(ctx context.Context, userID string) (*Entitlement, error)

	// SetEntitlement stores a user's entitlement (upsert).
	SetEntitlement(ctx context.Context, ent *Entitlement) error

	// GetUsage retrieves the current slot count for a resource.
	// Returns nil, nil when the user has never consumed a slot.
	// Implementations track Used only; the Manager fills in Limit.
	GetUsage(ctx context.Context, userID string, resource Resource) (*Usage, error)

	// ConsumeSlot atomically increments the used count iff used < req.Limit.
	// Returns the new used count, or the current count with ErrLimitReached.
	// The check and increment are a single atomic step: this is what closes
	// the race where two concurrent creations both see one free slot.
	ConsumeSlot(ctx context.Context, req *SlotRequest) (int, error)

	// ReleaseSlot atomically decrements the used count, floored at zero.
	// Called when a resource is deleted, or when a row insert fails after
	// its slot was reserved.
	ReleaseSlot(ctx context.Context, userID string, resource Resource) error

	// ApplyPurchase records the purchase and increments the user's limits by
	// grant as a single unit of work. The purchase insert is keyed uniquely
	// by SessionID and gates the credit application: a duplicate session
	// returns ErrPurchaseExists and mutates nothing.
	ApplyPurchase(ctx context.Context, purchase *Purchase, grant CreditGrant) error

	// GetPurchase retrieves the ledger entry for a payment session.
	// Returns ErrPurchaseNotFound when the session was never credited.
	GetPurchase(ctx context.Context, sessionID string) (*Purchase, error)

	// ListPurchases returns a user's purchase history, newest first.
	ListPurchases(ctx context.Context, userID string) ([]Purchase, error)
}
