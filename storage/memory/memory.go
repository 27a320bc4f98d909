// Package memory provides an in-memory implementation of the foliokit.Storage
// interface. This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/foliokit/foliokit/pkg/foliokit"
)

// Storage implements foliokit.Storage using in-memory maps
type Storage struct {
	mu           sync.Mutex
	entitlements map[string]*foliokit.Entitlement
	usage        map[string]*foliokit.Usage
	purchases    map[string]*foliokit.Purchase
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		entitlements: make(map[string]*foliokit.Entitlement),
		usage:        make(map[string]*foliokit.Usage),
		purchases:    make(map[string]*foliokit.Purchase),
	}
}

// GetEntitlement implements foliokit.Storage
func (s *Storage) GetEntitlement(ctx context.Context, userID string) (*foliokit.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entitlements[userID]
	if !ok {
		return nil, foliokit.ErrEntitlementNotFound
	}

	// Return a copy to prevent external mutations
	entCopy := *ent
	return &entCopy, nil
}

// SetEntitlement implements foliokit.Storage
func (s *Storage) SetEntitlement(ctx context.Context, ent *foliokit.Entitlement) error {
	if ent == nil || ent.UserID == "" {
		return fmt.Errorf("invalid entitlement")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entCopy := *ent
	s.entitlements[ent.UserID] = &entCopy
	return nil
}

// GetUsage implements foliokit.Storage
func (s *Storage) GetUsage(ctx context.Context, userID string, resource foliokit.Resource) (*foliokit.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	usage, ok := s.usage[usageKey(userID, resource)]
	if !ok {
		return nil, nil // No usage yet is not an error
	}

	usageCopy := *usage
	return &usageCopy, nil
}

// ConsumeSlot implements foliokit.Storage. The mutex makes the compare and
// increment a single atomic step.
func (s *Storage) ConsumeSlot(ctx context.Context, req *foliokit.SlotRequest) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey(req.UserID, req.Resource)
	usage, ok := s.usage[key]

	currentUsed := 0
	if ok {
		currentUsed = usage.Used
	}

	if currentUsed >= req.Limit {
		return currentUsed, foliokit.ErrLimitReached
	}

	s.usage[key] = &foliokit.Usage{
		UserID:    req.UserID,
		Resource:  req.Resource,
		Used:      currentUsed + 1,
		UpdatedAt: time.Now().UTC(),
	}
	return currentUsed + 1, nil
}

// ReleaseSlot implements foliokit.Storage
func (s *Storage) ReleaseSlot(ctx context.Context, userID string, resource foliokit.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	usage, ok := s.usage[usageKey(userID, resource)]
	if !ok || usage.Used == 0 {
		return nil // Nothing to release
	}

	usage.Used--
	usage.UpdatedAt = time.Now().UTC()
	return nil
}

// ApplyPurchase implements foliokit.Storage. The purchase insert keyed by
// session ID gates the limit increment: duplicates mutate nothing.
func (s *Storage) ApplyPurchase(ctx context.Context, purchase *foliokit.Purchase, grant foliokit.CreditGrant) error {
	if purchase == nil || purchase.SessionID == "" {
		return fmt.Errorf("invalid purchase")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.purchases[purchase.SessionID]; exists {
		return foliokit.ErrPurchaseExists
	}

	ent, ok := s.entitlements[purchase.UserID]
	if !ok {
		return fmt.Errorf("no entitlement for user %q", purchase.UserID)
	}

	ent.Limits = ent.Limits.Add(grant)
	ent.UpdatedAt = time.Now().UTC()

	purchaseCopy := *purchase
	s.purchases[purchase.SessionID] = &purchaseCopy
	return nil
}

// GetPurchase implements foliokit.Storage
func (s *Storage) GetPurchase(ctx context.Context, sessionID string) (*foliokit.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purchases[sessionID]
	if !ok {
		return nil, foliokit.ErrPurchaseNotFound
	}

	pCopy := *p
	return &pCopy, nil
}

// ListPurchases implements foliokit.Storage
func (s *Storage) ListPurchases(ctx context.Context, userID string) ([]foliokit.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []foliokit.Purchase
	for _, p := range s.purchases {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// usageKey generates a unique key for usage tracking
func usageKey(userID string, resource foliokit.Resource) string {
	return fmt.Sprintf("%s:%s", userID, resource)
}

// Clear removes all data (useful for testing)
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entitlements = make(map[string]*foliokit.Entitlement)
	s.usage = make(map[string]*foliokit.Usage)
	s.purchases = make(map[string]*foliokit.Purchase)
}
