package storage

import (
	"context"
	"sync"

	"github.com/payflow-engine/payflow/internal/types"
)

// MemoryStore is an in-process Store and Durable used by tests and as the
// drainer fold target in single-node setups.
type MemoryStore struct {
	mu        sync.RWMutex
	intents   map[string]*types.PaymentIntent
	attempts  map[string]*types.PaymentAttempt
	refunds   map[string]*types.Refund
	customers map[string]*types.Customer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		intents:   make(map[string]*types.PaymentIntent),
		attempts:  make(map[string]*types.PaymentAttempt),
		refunds:   make(map[string]*types.Refund),
		customers: make(map[string]*types.Customer),
	}
}

func intentKey(merchantID, paymentID string) string { return merchantID + ":" + paymentID }

func attemptKey(merchantID, paymentID, attemptID string) string {
	return merchantID + ":" + paymentID + ":" + attemptID
}

func (m *MemoryStore) InsertIntent(_ context.Context, intent *types.PaymentIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := intentKey(intent.MerchantID, intent.PaymentID)
	if _, exists := m.intents[key]; exists {
		return ErrDuplicateValue
	}
	clone := *intent
	m.intents[key] = &clone
	return nil
}

func (m *MemoryStore) UpdateIntent(_ context.Context, merchantID, paymentID string, patch IntentPatch) (*types.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[intentKey(merchantID, paymentID)]
	if !ok {
		return nil, ErrNotFound
	}
	if err := applyIntentPatch(intent, patch); err != nil {
		return nil, err
	}
	clone := *intent
	return &clone, nil
}

func (m *MemoryStore) FindIntent(_ context.Context, merchantID, paymentID string) (*types.PaymentIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	intent, ok := m.intents[intentKey(merchantID, paymentID)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *intent
	return &clone, nil
}

func (m *MemoryStore) InsertAttempt(_ context.Context, attempt *types.PaymentAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := attemptKey(attempt.MerchantID, attempt.PaymentID, attempt.AttemptID)
	if _, exists := m.attempts[key]; exists {
		return ErrDuplicateValue
	}
	clone := *attempt
	m.attempts[key] = &clone
	return nil
}

func (m *MemoryStore) UpdateAttempt(_ context.Context, merchantID, paymentID, attemptID string, patch AttemptPatch) (*types.PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt, ok := m.attempts[attemptKey(merchantID, paymentID, attemptID)]
	if !ok {
		return nil, ErrNotFound
	}
	applyAttemptPatch(attempt, patch)
	clone := *attempt
	return &clone, nil
}

func (m *MemoryStore) FindAttempt(_ context.Context, merchantID, paymentID, attemptID string) (*types.PaymentAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	attempt, ok := m.attempts[attemptKey(merchantID, paymentID, attemptID)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *attempt
	return &clone, nil
}

func (m *MemoryStore) InsertRefund(_ context.Context, refund *types.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := intentKey(refund.MerchantID, refund.RefundID)
	if _, exists := m.refunds[key]; exists {
		return ErrDuplicateValue
	}
	clone := *refund
	m.refunds[key] = &clone
	return nil
}

func (m *MemoryStore) UpdateRefund(_ context.Context, merchantID, refundID string, patch RefundPatch) (*types.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	refund, ok := m.refunds[intentKey(merchantID, refundID)]
	if !ok {
		return nil, ErrNotFound
	}
	applyRefundPatch(refund, patch)
	clone := *refund
	return &clone, nil
}

func (m *MemoryStore) FindRefund(_ context.Context, merchantID, refundID string) (*types.Refund, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	refund, ok := m.refunds[intentKey(merchantID, refundID)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *refund
	return &clone, nil
}

func (m *MemoryStore) InsertCustomer(_ context.Context, customer *types.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := intentKey(customer.MerchantID, customer.CustomerID)
	if _, exists := m.customers[key]; exists {
		return ErrDuplicateValue
	}
	clone := *customer
	m.customers[key] = &clone
	return nil
}

func (m *MemoryStore) FindCustomer(_ context.Context, merchantID, customerID string) (*types.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	customer, ok := m.customers[intentKey(merchantID, customerID)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *customer
	return &clone, nil
}

func (m *MemoryStore) UpsertIntent(_ context.Context, intent *types.PaymentIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *intent
	m.intents[intentKey(intent.MerchantID, intent.PaymentID)] = &clone
	return nil
}

func (m *MemoryStore) UpsertAttempt(_ context.Context, attempt *types.PaymentAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *attempt
	m.attempts[attemptKey(attempt.MerchantID, attempt.PaymentID, attempt.AttemptID)] = &clone
	return nil
}

func (m *MemoryStore) UpsertRefund(_ context.Context, refund *types.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *refund
	m.refunds[intentKey(refund.MerchantID, refund.RefundID)] = &clone
	return nil
}

func (m *MemoryStore) UpsertCustomer(_ context.Context, customer *types.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *customer
	m.customers[intentKey(customer.MerchantID, customer.CustomerID)] = &clone
	return nil
}
