package jobs

import (
	"context"
	"errors"
	"time"
)

type QueueName string

const (
	QueueOrders        QueueName = "orders"
	QueueNotifications QueueName = "notifications"
	QueuePayments      QueueName = "payments"
	QueueSubscriptions QueueName = "subscriptions"
)

// QueueSpec is a named queue with its worker concurrency and retry policy
type QueueSpec struct {
	Name        QueueName
	Concurrency int
	Retry       RetryPolicy
}

// DefaultQueueSpecs lists the queues the application runs
func DefaultQueueSpecs() []QueueSpec {
	retry := DefaultRetryPolicy()
	return []QueueSpec{
		{Name: QueueOrders, Concurrency: 5, Retry: retry},
		{Name: QueueNotifications, Concurrency: 3, Retry: retry},
		{Name: QueuePayments, Concurrency: 2, Retry: retry},
		{Name: QueueSubscriptions, Concurrency: 1, Retry: retry},
	}
}

// RetryPolicy bounds how often and how quickly a failed job is retried
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  2 * time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2.0,
	}
}

// Delay returns the wait before the next attempt after `attempt` failures
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.BackoffFactor)
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Scheduler registers an action to run at runAt. Scheduling the same key
// twice keeps the first registration.
type Scheduler interface {
	Schedule(ctx context.Context, key string, runAt time.Time, action Action) error
}

// Job is an action as stored in a queue
type Job struct {
	Key       string
	Queue     QueueName
	Action    Action
	RunAt     time.Time
	Attempts  int
	State     string
	LastError string
}

const (
	StateScheduled = "scheduled"
	StateActive    = "active"
	StateRetrying  = "retrying"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// PermanentError marks a handler failure that must not be retried
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the worker fails the job without retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

var (
	ErrRegistryClosed = errors.New("job registry is closed")
	ErrEmptyKey       = errors.New("job key cannot be empty")
	ErrUnknownQueue   = errors.New("unknown queue")
)
