package foliokit

import (
	"errors"
	"fmt"
)

var (
	// ErrLimitReached is returned when a resource creation would exceed the user's limit
	ErrLimitReached = errors.New("limit reached")

	// ErrUnknownProduct is returned for a SKU not present in the catalog
	ErrUnknownProduct = errors.New("unknown product")

	// ErrInvalidQuantity is returned for a non-positive purchase quantity
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidResource is returned for an unknown resource kind
	ErrInvalidResource = errors.New("invalid resource")

	// ErrEntitlementNotFound is returned when a user has no persisted entitlement
	ErrEntitlementNotFound = errors.New("entitlement not found")

	// ErrPurchaseExists is returned when a payment session has already been credited
	ErrPurchaseExists = errors.New("purchase already recorded")

	// ErrPurchaseNotFound is returned when no purchase exists for a session
	ErrPurchaseNotFound = errors.New("purchase not found")

	// ErrStorageUnavailable is returned when storage is unavailable
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// LimitError carries the concrete numbers behind an ErrLimitReached rejection
// so callers can tell the user which ceiling they hit.
type LimitError struct {
	Resource Resource
	Used     int
	Limit    int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("limit reached: %d/%d %s used", e.Used, e.Limit, e.Resource)
}

// Unwrap makes errors.Is(err, ErrLimitReached) match.
func (e *LimitError) Unwrap() error {
	return ErrLimitReached
}
