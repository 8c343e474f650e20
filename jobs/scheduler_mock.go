package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ScheduledCall is one registration captured by MockScheduler
type ScheduledCall struct {
	Key    string
	RunAt  time.Time
	Action Action
}

// MockScheduler records scheduled actions in memory for tests
type MockScheduler struct {
	mu    sync.Mutex
	calls map[string]ScheduledCall
	order []string
	Err   error
}

func NewMockScheduler() *MockScheduler {
	return &MockScheduler{calls: make(map[string]ScheduledCall)}
}

func (m *MockScheduler) Schedule(ctx context.Context, key string, runAt time.Time, action Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if key == "" {
		return ErrEmptyKey
	}
	if _, exists := m.calls[key]; exists {
		return nil
	}
	m.calls[key] = ScheduledCall{Key: key, RunAt: runAt, Action: action}
	m.order = append(m.order, key)
	return nil
}

// Get returns the registration for key
func (m *MockScheduler) Get(key string) (ScheduledCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[key]
	return c, ok
}

// Calls returns registrations in the order they were first made
func (m *MockScheduler) Calls() []ScheduledCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ScheduledCall, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.calls[k])
	}
	return out
}

// Due returns registrations whose run time is at or before now, earliest first
func (m *MockScheduler) Due(now time.Time) []ScheduledCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ScheduledCall
	for _, k := range m.order {
		if c := m.calls[k]; !c.RunAt.After(now) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RunAt.Before(out[j].RunAt) })
	return out
}

func (m *MockScheduler) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *MockScheduler) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]ScheduledCall)
	m.order = nil
}
