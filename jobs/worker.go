package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Handler runs one action. Returning an error retries the job per the queue's
// policy; wrap it with Permanent to fail the job immediately.
type Handler interface {
	Handle(ctx context.Context, action Action) error
}

type HandlerFunc func(ctx context.Context, action Action) error

func (f HandlerFunc) Handle(ctx context.Context, action Action) error { return f(ctx, action) }

// WorkerConfig configures the worker pool
type WorkerConfig struct {
	// PollInterval is how long an idle worker waits before looking for due jobs
	// Default: 1s
	PollInterval time.Duration

	// JobTimeout bounds a single attempt
	// Default: 2m
	JobTimeout time.Duration

	// ShutdownTimeout is how long Stop waits for in-flight jobs
	// Default: 30s
	ShutdownTimeout time.Duration

	// Now overrides the clock used to decide which jobs are due
	Now func() time.Time
}

func (c *WorkerConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// WorkerPool runs each registry queue with as many goroutines as its spec's
// concurrency.
type WorkerPool struct {
	registry *Registry
	handler  Handler
	config   WorkerConfig
	metrics  *Metrics
	log      *zap.Logger

	mu          sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     atomic.Bool
	activeCount atomic.Int32
}

func NewWorkerPool(registry *Registry, handler Handler, config WorkerConfig, metrics *Metrics, log *zap.Logger) *WorkerPool {
	config.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkerPool{
		registry: registry,
		handler:  handler,
		config:   config,
		metrics:  metrics,
		log:      log,
	}
}

// Start runs the workers and blocks until ctx is cancelled or Stop is called
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.running.Swap(true) {
		return fmt.Errorf("worker pool already running")
	}
	defer p.running.Store(false)

	workerCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	defer cancel()

	for _, spec := range p.registry.Specs() {
		q, err := p.registry.Queue(spec.Name)
		if err != nil {
			return err
		}
		p.log.Info("starting queue workers",
			zap.String("queue", string(spec.Name)),
			zap.Int("concurrency", spec.Concurrency),
		)
		for i := 0; i < spec.Concurrency; i++ {
			workerID := fmt.Sprintf("%s-%d", spec.Name, i+1)
			p.wg.Add(1)
			go p.runWorker(workerCtx, workerID, q, spec.Retry)
		}
		p.wg.Add(1)
		go p.runMaintenance(workerCtx, q, spec.Retry)
	}

	p.wg.Wait()
	p.log.Info("worker pool stopped")
	return nil
}

// Stop cancels the workers and waits for in-flight jobs
func (p *WorkerPool) Stop(ctx context.Context) error {
	if !p.running.Load() {
		return nil
	}
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		return fmt.Errorf("shutdown timeout: %d workers still busy", p.activeCount.Load())
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain processes every job on the queue that is due now and returns how
// many attempts ran. It is used by one-off commands and tests.
func (p *WorkerPool) Drain(ctx context.Context, name QueueName) (int, error) {
	q, err := p.registry.Queue(name)
	if err != nil {
		return 0, err
	}
	policy := DefaultRetryPolicy()
	for _, spec := range p.registry.Specs() {
		if spec.Name == name {
			policy = spec.Retry
		}
	}

	ran := 0
	for {
		claimed, err := q.Claim(ctx, p.config.Now(), 1)
		if err != nil {
			return ran, err
		}
		if len(claimed) == 0 {
			return ran, nil
		}
		p.process(ctx, "drain", q, policy, claimed[0])
		ran++
	}
}

func (p *WorkerPool) runWorker(ctx context.Context, workerID string, q *RedisQueue, policy RetryPolicy) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		claimed, err := q.Claim(ctx, p.config.Now(), 1)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error("claim failed", zap.String("worker_id", workerID), zap.Error(err))
		}

		if len(claimed) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.config.PollInterval):
			}
			continue
		}

		// in-flight jobs finish even when shutdown starts
		p.process(context.WithoutCancel(ctx), workerID, q, policy, claimed[0])
	}
}

func (p *WorkerPool) runMaintenance(ctx context.Context, q *RedisQueue, policy RetryPolicy) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval * 10)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		recovered, exhausted, err := q.RecoverExpired(ctx, p.config.Now(), policy.MaxAttempts)
		if err != nil {
			p.log.Warn("lease recovery failed", zap.String("queue", string(q.Name())), zap.Error(err))
		}
		if recovered > 0 {
			p.log.Warn("recovered jobs with expired leases", zap.String("queue", string(q.Name())), zap.Int("count", recovered))
		}
		if exhausted > 0 {
			p.log.Error("jobs failed after repeated lease expiry", zap.String("queue", string(q.Name())), zap.Int("count", exhausted))
		}

		if depth, err := q.Len(ctx); err == nil {
			p.metrics.depth(q.Name(), depth)
		}
	}
}

func (p *WorkerPool) process(ctx context.Context, workerID string, q *RedisQueue, policy RetryPolicy, job *Job) {
	p.activeCount.Add(1)
	defer p.activeCount.Add(-1)

	start := time.Now()
	log := p.log.With(
		zap.String("worker_id", workerID),
		zap.String("queue", string(q.Name())),
		zap.String("job_key", job.Key),
		zap.Int("attempt", job.Attempts),
	)

	var err error
	kind := Kind("unknown")
	if job.Action == nil {
		err = Permanent(fmt.Errorf("undecodable payload: %s", job.LastError))
	} else {
		kind = job.Action.Kind()
		err = p.run(ctx, job.Action)
	}

	if err == nil {
		if cerr := q.Complete(ctx, job); cerr != nil {
			log.Error("failed to mark job complete", zap.Error(cerr))
		}
		p.metrics.processed(q.Name(), kind, "completed", time.Since(start))
		log.Debug("job completed", zap.String("kind", string(kind)))
		return
	}

	retry, ferr := q.Fail(ctx, job, err, policy, p.config.Now())
	if ferr != nil {
		log.Error("failed to record job failure", zap.Error(ferr))
		return
	}
	if retry {
		p.metrics.processed(q.Name(), kind, "retried", time.Since(start))
		log.Warn("job failed, will retry", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	p.metrics.processed(q.Name(), kind, "failed", time.Since(start))
	log.Error("job failed permanently", zap.String("kind", string(kind)), zap.Error(err))
}

func (p *WorkerPool) run(ctx context.Context, action Action) (err error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("job handler panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return p.handler.Handle(ctx, action)
}
