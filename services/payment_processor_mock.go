package services

import (
	"context"
	"fmt"
	"sync"
)

// MockPaymentProcessor is an in-memory processor for tests and local runs.
// Payment methods listed in Decline are refused.
type MockPaymentProcessor struct {
	mu      sync.Mutex
	Decline map[string]string
	Err     error
	charges map[string]ChargeRequest
	refunds map[string]RefundRequest
}

func NewMockPaymentProcessor() *MockPaymentProcessor {
	return &MockPaymentProcessor{
		Decline: make(map[string]string),
		charges: make(map[string]ChargeRequest),
		refunds: make(map[string]RefundRequest),
	}
}

func (m *MockPaymentProcessor) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	if reason, ok := m.Decline[req.PaymentMethodID]; ok {
		return "", &DeclinedError{Reason: reason}
	}
	ref := "pi_mock_" + req.IdempotencyKey
	m.charges[ref] = req
	return ref, nil
}

func (m *MockPaymentProcessor) Refund(ctx context.Context, req RefundRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	if _, ok := m.charges[req.ChargeReference]; !ok {
		return "", fmt.Errorf("no charge %s", req.ChargeReference)
	}
	ref := "re_mock_" + req.IdempotencyKey
	m.refunds[ref] = req
	return ref, nil
}

// Charges returns the successful charges keyed by reference
func (m *MockPaymentProcessor) Charges() map[string]ChargeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]ChargeRequest, len(m.charges))
	for k, v := range m.charges {
		out[k] = v
	}
	return out
}

func (m *MockPaymentProcessor) Refunds() map[string]RefundRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]RefundRequest, len(m.refunds))
	for k, v := range m.refunds {
		out[k] = v
	}
	return out
}
