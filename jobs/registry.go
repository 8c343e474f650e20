package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Registry owns the application's queues. It is created once at startup,
// handed to whatever needs to schedule or run jobs, and closed at shutdown.
type Registry struct {
	specs   []QueueSpec
	queues  map[QueueName]*RedisQueue
	metrics *Metrics
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewRegistry builds one queue per spec on the given Redis client. The
// client is not owned by the registry.
func NewRegistry(client redis.Cmdable, specs []QueueSpec, config *RedisQueueConfig, metrics *Metrics, log *zap.Logger) (*Registry, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("registry needs at least one queue")
	}
	if log == nil {
		log = zap.NewNop()
	}

	r := &Registry{
		specs:   make([]QueueSpec, 0, len(specs)),
		queues:  make(map[QueueName]*RedisQueue, len(specs)),
		metrics: metrics,
		log:     log,
	}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("queue name cannot be empty")
		}
		if _, dup := r.queues[spec.Name]; dup {
			return nil, fmt.Errorf("queue %s registered twice", spec.Name)
		}
		if spec.Concurrency <= 0 {
			spec.Concurrency = 1
		}
		if spec.Retry.MaxAttempts <= 0 {
			spec.Retry = DefaultRetryPolicy()
		}
		r.specs = append(r.specs, spec)
		r.queues[spec.Name] = NewRedisQueue(client, spec.Name, config)
	}
	return r, nil
}

// Specs returns the queue specs in registration order
func (r *Registry) Specs() []QueueSpec {
	out := make([]QueueSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

func (r *Registry) Queue(name QueueName) (*RedisQueue, error) {
	q, ok := r.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, name)
	}
	return q, nil
}

// Schedule routes the action to its queue. Re-scheduling an existing key is
// a no-op.
func (r *Registry) Schedule(ctx context.Context, key string, runAt time.Time, action Action) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRegistryClosed
	}
	if action == nil {
		return fmt.Errorf("action cannot be nil")
	}

	q, err := r.Queue(action.Queue())
	if err != nil {
		return err
	}

	created, err := q.Schedule(ctx, key, runAt, action)
	if err != nil {
		return err
	}
	if created {
		r.metrics.scheduled(q.Name(), action.Kind())
		r.log.Debug("job scheduled",
			zap.String("key", key),
			zap.String("queue", string(q.Name())),
			zap.String("kind", string(action.Kind())),
			zap.Time("run_at", runAt),
		)
	} else {
		r.log.Debug("job already scheduled", zap.String("key", key))
	}
	return nil
}

// Close stops the registry from accepting new jobs
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Registry) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}
