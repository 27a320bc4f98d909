package foliokit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitBreakerState represents the current state of the circuit breaker.
type CircuitBreakerState string

const (
	StateClosed   CircuitBreakerState = "closed"
	StateOpen     CircuitBreakerState = "open"
	StateHalfOpen CircuitBreakerState = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker defines the interface for a circuit breaker.
type CircuitBreaker interface {
	// Execute executes the given function within the circuit breaker.
	Execute(ctx context.Context, fn func() error) error
	// State returns the current state of the circuit breaker.
	State() CircuitBreakerState
}

// DefaultCircuitBreaker is a simple consecutive-failure circuit breaker.
type DefaultCircuitBreaker struct {
	mu sync.RWMutex

	state               CircuitBreakerState
	failureThreshold    int
	resetTimeout        time.Duration
	consecutiveFailures int
	lastFailureTime     time.Time

	onStateChange func(state CircuitBreakerState)
}

// NewDefaultCircuitBreaker creates a new default circuit breaker.
func NewDefaultCircuitBreaker(failureThreshold int, resetTimeout time.Duration,
	onStateChange func(state CircuitBreakerState)) *DefaultCircuitBreaker {
	return &DefaultCircuitBreaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		onStateChange:    onStateChange,
	}
}

func (cb *DefaultCircuitBreaker) State() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.currentState()
}

func (cb *DefaultCircuitBreaker) currentState() CircuitBreakerState {
	if cb.state == StateOpen && time.Since(cb.lastFailureTime) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

func (cb *DefaultCircuitBreaker) Execute(_ context.Context, fn func() error) error {
	if cb.State() == StateOpen {
		return ErrCircuitOpen
	}

	err := fn()
	if err != nil {
		cb.failure()
		return err
	}

	cb.success()
	return nil
}

func (cb *DefaultCircuitBreaker) success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen || cb.state == StateOpen {
		cb.changeState(StateClosed)
	}
	cb.consecutiveFailures = 0
}

func (cb *DefaultCircuitBreaker) failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	cb.lastFailureTime = time.Now()

	if cb.state == StateClosed && cb.consecutiveFailures >= cb.failureThreshold {
		cb.changeState(StateOpen)
	} else if cb.currentState() == StateHalfOpen {
		cb.changeState(StateOpen)
	}
}

func (cb *DefaultCircuitBreaker) changeState(newState CircuitBreakerState) {
	if cb.state != newState {
		cb.state = newState
		if cb.onStateChange != nil {
			cb.onStateChange(newState)
		}
	}
}

// CircuitBreakerStorage wraps a Storage implementation with circuit breaker
// protection so a struggling backend fails fast instead of stalling every
// request. Domain rejections (ErrLimitReached, ErrPurchaseExists, not-found
// sentinels) do not count as backend failures.
type CircuitBreakerStorage struct {
	storage Storage
	cb      CircuitBreaker
}

// NewCircuitBreakerStorage creates a new storage wrapper with circuit breaker.
func NewCircuitBreakerStorage(storage Storage, cb CircuitBreaker) *CircuitBreakerStorage {
	return &CircuitBreakerStorage{
		storage: storage,
		cb:      cb,
	}
}

// isDomainError filters expected business outcomes out of the failure count
func isDomainError(err error) bool {
	return errors.Is(err, ErrLimitReached) ||
		errors.Is(err, ErrPurchaseExists) ||
		errors.Is(err, ErrEntitlementNotFound) ||
		errors.Is(err, ErrPurchaseNotFound)
}

func (s *CircuitBreakerStorage) execute(ctx context.Context, fn func() error) error {
	return s.cb.Execute(ctx, func() error {
		if err := fn(); err != nil && !isDomainError(err) {
			return err
		}
		return nil
	})
}

func (s *CircuitBreakerStorage) GetEntitlement(ctx context.Context, userID string) (*Entitlement, error) {
	var ent *Entitlement
	var innerErr error
	err := s.execute(ctx, func() error {
		ent, innerErr = s.storage.GetEntitlement(ctx, userID)
		return innerErr
	})
	if innerErr != nil {
		return nil, innerErr
	}
	return ent, err
}

func (s *CircuitBreakerStorage) SetEntitlement(ctx context.Context, ent *Entitlement) error {
	var innerErr error
	err := s.execute(ctx, func() error {
		innerErr = s.storage.SetEntitlement(ctx, ent)
		return innerErr
	})
	if innerErr != nil {
		return innerErr
	}
	return err
}

func (s *CircuitBreakerStorage) GetUsage(ctx context.Context, userID string, resource Resource) (*Usage, error) {
	var usage *Usage
	var innerErr error
	err := s.execute(ctx, func() error {
		usage, innerErr = s.storage.GetUsage(ctx, userID, resource)
		return innerErr
	})
	if innerErr != nil {
		return nil, innerErr
	}
	return usage, err
}

func (s *CircuitBreakerStorage) ConsumeSlot(ctx context.Context, req *SlotRequest) (int, error) {
	var used int
	var innerErr error
	err := s.execute(ctx, func() error {
		used, innerErr = s.storage.ConsumeSlot(ctx, req)
		return innerErr
	})
	if innerErr != nil {
		return used, innerErr
	}
	return used, err
}

func (s *CircuitBreakerStorage) ReleaseSlot(ctx context.Context, userID string, resource Resource) error {
	var innerErr error
	err := s.execute(ctx, func() error {
		innerErr = s.storage.ReleaseSlot(ctx, userID, resource)
		return innerErr
	})
	if innerErr != nil {
		return innerErr
	}
	return err
}

func (s *CircuitBreakerStorage) ApplyPurchase(ctx context.Context, purchase *Purchase, grant CreditGrant) error {
	var innerErr error
	err := s.execute(ctx, func() error {
		innerErr = s.storage.ApplyPurchase(ctx, purchase, grant)
		return innerErr
	})
	if innerErr != nil {
		return innerErr
	}
	return err
}

func (s *CircuitBreakerStorage) GetPurchase(ctx context.Context, sessionID string) (*Purchase, error) {
	var purchase *Purchase
	var innerErr error
	err := s.execute(ctx, func() error {
		purchase, innerErr = s.storage.GetPurchase(ctx, sessionID)
		return innerErr
	})
	if innerErr != nil {
		return nil, innerErr
	}
	return purchase, err
}

func (s *CircuitBreakerStorage) ListPurchases(ctx context.Context, userID string) ([]Purchase, error) {
	var purchases []Purchase
	var innerErr error
	err := s.execute(ctx, func() error {
		purchases, innerErr = s.storage.ListPurchases(ctx, userID)
		return innerErr
	})
	if innerErr != nil {
		return nil, innerErr
	}
	return purchases, err
}
