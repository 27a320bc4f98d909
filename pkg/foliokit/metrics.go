package foliokit

import (
	"context"
	"time"
)

// Metrics defines the interface for tracking entitlement operations.
type Metrics interface {
	// RecordSlotConsumption records a slot reservation attempt.
	RecordSlotConsumption(resource Resource, success bool)

	// RecordSlotRelease records a slot release.
	RecordSlotRelease(resource Resource)

	// RecordGateCheck records the duration of a usage-gate read.
	RecordGateCheck(resource Resource, duration time.Duration)

	// RecordCreditApplication records a purchase crediting attempt.
	// applied is false for duplicate deliveries (AlreadyApplied).
	RecordCreditApplication(sku SKU, credits int, applied bool)

	// RecordStorageOperation records the duration and status of a storage operation.
	RecordStorageOperation(operation string, duration time.Duration, err error)
}

// instrumentedStorage decorates a Storage so every backend call reports its
// duration and outcome through RecordStorageOperation. NewManager installs it
// around the configured storage.
type instrumentedStorage struct {
	inner   Storage
	metrics Metrics
}

func (s *instrumentedStorage) GetEntitlement(ctx context.Context, userID string) (*Entitlement, error) {
	start := time.Now()
	ent, err := s.inner.GetEntitlement(ctx, userID)
	s.metrics.RecordStorageOperation("get_entitlement", time.Since(start), err)
	return ent, err
}

func (s *instrumentedStorage) SetEntitlement(ctx context.Context, ent *Entitlement) error {
	start := time.Now()
	err := s.inner.SetEntitlement(ctx, ent)
	s.metrics.RecordStorageOperation("set_entitlement", time.Since(start), err)
	return err
}

func (s *instrumentedStorage) GetUsage(ctx context.Context, userID string, resource Resource) (*Usage, error) {
	start := time.Now()
	usage, err := s.inner.GetUsage(ctx, userID, resource)
	s.metrics.RecordStorageOperation("get_usage", time.Since(start), err)
	return usage, err
}

func (s *instrumentedStorage) ConsumeSlot(ctx context.Context, req *SlotRequest) (int, error) {
	start := time.Now()
	used, err := s.inner.ConsumeSlot(ctx, req)
	s.metrics.RecordStorageOperation("consume_slot", time.Since(start), err)
	return used, err
}

func (s *instrumentedStorage) ReleaseSlot(ctx context.Context, userID string, resource Resource) error {
	start := time.Now()
	err := s.inner.ReleaseSlot(ctx, userID, resource)
	s.metrics.RecordStorageOperation("release_slot", time.Since(start), err)
	return err
}

func (s *instrumentedStorage) ApplyPurchase(ctx context.Context, purchase *Purchase, grant CreditGrant) error {
	start := time.Now()
	err := s.inner.ApplyPurchase(ctx, purchase, grant)
	s.metrics.RecordStorageOperation("apply_purchase", time.Since(start), err)
	return err
}

func (s *instrumentedStorage) GetPurchase(ctx context.Context, sessionID string) (*Purchase, error) {
	start := time.Now()
	purchase, err := s.inner.GetPurchase(ctx, sessionID)
	s.metrics.RecordStorageOperation("get_purchase", time.Since(start), err)
	return purchase, err
}

func (s *instrumentedStorage) ListPurchases(ctx context.Context, userID string) ([]Purchase, error) {
	start := time.Now()
	purchases, err := s.inner.ListPurchases(ctx, userID)
	s.metrics.RecordStorageOperation("list_purchases", time.Since(start), err)
	return purchases, err
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordSlotConsumption(resource Resource, success bool)               {}
func (n *NoopMetrics) RecordSlotRelease(resource Resource)                                 {}
func (n *NoopMetrics) RecordGateCheck(resource Resource, duration time.Duration)           {}
func (n *NoopMetrics) RecordCreditApplication(sku SKU, credits int, applied bool)          {}
func (n *NoopMetrics) RecordStorageOperation(operation string, d time.Duration, err error) {}
