package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix        = "csa:jobs:"
	defaultRetention = 7 * 24 * time.Hour
	defaultLease     = 5 * time.Minute
)

// scheduleScript registers a job exactly once per key. KEYS: job hash,
// delayed set. ARGV: payload, queue, run_at (unix ms), member.
var scheduleScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], 'payload', ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'queue', ARGV[2], 'run_at', ARGV[3], 'attempts', 0, 'state', 'scheduled')
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[4])
return 1
`)

// claimScript moves one due member from the delayed set to the active set.
// Only the caller whose ZREM succeeds owns the job. KEYS: delayed set, active
// set, job hash. ARGV: member, lease deadline (unix ms).
var claimScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return -1
end
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
redis.call('HSET', KEYS[3], 'state', 'active')
return redis.call('HINCRBY', KEYS[3], 'attempts', 1)
`)

// RedisQueueConfig configures a RedisQueue
type RedisQueueConfig struct {
	// Retention is how long finished job hashes are kept. While a hash exists
	// its key cannot be scheduled again.
	// Default: 7 days
	Retention time.Duration

	// Lease is how long a claimed job may run before it is handed to another
	// worker.
	// Default: 5m
	Lease time.Duration
}

// RedisQueue is a delayed job queue backed by Redis sorted sets. Due jobs are
// scored by run time in the delayed set; claimed jobs sit in the active set
// until completed, failed or their lease expires.
type RedisQueue struct {
	client redis.Cmdable
	name   QueueName
	config RedisQueueConfig
}

func NewRedisQueue(client redis.Cmdable, name QueueName, config *RedisQueueConfig) *RedisQueue {
	cfg := RedisQueueConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.Lease <= 0 {
		cfg.Lease = defaultLease
	}
	return &RedisQueue{client: client, name: name, config: cfg}
}

func (q *RedisQueue) Name() QueueName { return q.name }

func (q *RedisQueue) delayedKey() string { return keyPrefix + string(q.name) + ":delayed" }
func (q *RedisQueue) activeKey() string  { return keyPrefix + string(q.name) + ":active" }
func (q *RedisQueue) failedKey() string  { return keyPrefix + string(q.name) + ":failed" }

func jobKey(key string) string { return keyPrefix + "job:" + key }

// Schedule adds the action under key. It reports whether the job was new;
// a key that is already known is left untouched.
func (q *RedisQueue) Schedule(ctx context.Context, key string, runAt time.Time, action Action) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	payload, err := Encode(action)
	if err != nil {
		return false, err
	}

	created, err := scheduleScript.Run(ctx, q.client,
		[]string{jobKey(key), q.delayedKey()},
		payload, string(q.name), runAt.UnixMilli(), key,
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to schedule job %s: %w", key, err)
	}
	return created == 1, nil
}

// Claim takes up to limit jobs whose run time is at or before now
func (q *RedisQueue) Claim(ctx context.Context, now time.Time, limit int64) ([]*Job, error) {
	members, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read due jobs: %w", err)
	}

	deadline := now.Add(q.config.Lease).UnixMilli()
	var claimed []*Job
	for _, key := range members {
		attempts, err := claimScript.Run(ctx, q.client,
			[]string{q.delayedKey(), q.activeKey(), jobKey(key)},
			key, deadline,
		).Int()
		if err != nil {
			return claimed, fmt.Errorf("failed to claim job %s: %w", key, err)
		}
		if attempts < 0 {
			// another worker won the race
			continue
		}

		job, err := q.Get(ctx, key)
		if err != nil {
			return claimed, err
		}
		job.Attempts = attempts
		claimed = append(claimed, job)
	}
	return claimed, nil
}

// Get loads a job by key. The Action is nil when the payload cannot be decoded.
func (q *RedisQueue) Get(ctx context.Context, key string) (*Job, error) {
	fields, err := q.client.HGetAll(ctx, jobKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, redis.Nil
	}

	job := &Job{
		Key:       key,
		Queue:     QueueName(fields["queue"]),
		State:     fields["state"],
		LastError: fields["last_error"],
	}
	if ms, err := strconv.ParseInt(fields["run_at"], 10, 64); err == nil {
		job.RunAt = time.UnixMilli(ms)
	}
	if n, err := strconv.Atoi(fields["attempts"]); err == nil {
		job.Attempts = n
	}
	if action, err := Decode([]byte(fields["payload"])); err == nil {
		job.Action = action
	} else {
		job.LastError = err.Error()
	}
	return job, nil
}

// Complete marks a claimed job done
func (q *RedisQueue) Complete(ctx context.Context, job *Job) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.activeKey(), job.Key)
		pipe.HSet(ctx, jobKey(job.Key), "state", StateCompleted, "last_error", "")
		pipe.Expire(ctx, jobKey(job.Key), q.config.Retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", job.Key, err)
	}
	job.State = StateCompleted
	return nil
}

// Fail records a failed attempt. The job is delayed again per policy unless
// its attempts are exhausted or the error is permanent, in which case it is
// moved to the failed set. It reports whether the job will be retried.
func (q *RedisQueue) Fail(ctx context.Context, job *Job, cause error, policy RetryPolicy, now time.Time) (bool, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	retry := job.Attempts < policy.MaxAttempts && !IsPermanent(cause)

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.activeKey(), job.Key)
		if retry {
			next := now.Add(policy.Delay(job.Attempts))
			pipe.HSet(ctx, jobKey(job.Key), "state", StateRetrying, "last_error", msg, "run_at", next.UnixMilli())
			pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(next.UnixMilli()), Member: job.Key})
			return nil
		}
		pipe.HSet(ctx, jobKey(job.Key), "state", StateFailed, "last_error", msg)
		pipe.ZAdd(ctx, q.failedKey(), redis.Z{Score: float64(now.UnixMilli()), Member: job.Key})
		pipe.Expire(ctx, jobKey(job.Key), q.config.Retention)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to record failure of job %s: %w", job.Key, err)
	}

	job.LastError = msg
	if retry {
		job.State = StateRetrying
	} else {
		job.State = StateFailed
	}
	return retry, nil
}

// RecoverExpired returns jobs whose lease ran out to the delayed set so they
// run again. Their attempt count is kept, and a job that already used
// maxAttempts is moved to the failed set instead. It reports how many jobs
// were requeued and how many were failed.
func (q *RedisQueue) RecoverExpired(ctx context.Context, now time.Time, maxAttempts int) (recovered, exhausted int, err error) {
	expired, err := q.client.ZRangeByScore(ctx, q.activeKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read expired leases: %w", err)
	}

	for _, key := range expired {
		removed, err := q.client.ZRem(ctx, q.activeKey(), key).Result()
		if err != nil {
			return recovered, exhausted, err
		}
		if removed == 0 {
			continue
		}

		attempts, err := q.client.HGet(ctx, jobKey(key), "attempts").Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return recovered, exhausted, fmt.Errorf("failed to read attempts of job %s: %w", key, err)
		}

		if maxAttempts > 0 && attempts >= maxAttempts {
			_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, jobKey(key), "state", StateFailed, "last_error", fmt.Sprintf("lease expired after %d attempts", attempts))
				pipe.ZAdd(ctx, q.failedKey(), redis.Z{Score: float64(now.UnixMilli()), Member: key})
				pipe.Expire(ctx, jobKey(key), q.config.Retention)
				return nil
			})
			if err != nil {
				return recovered, exhausted, fmt.Errorf("failed to fail job %s: %w", key, err)
			}
			exhausted++
			continue
		}

		if err := q.client.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(now.UnixMilli()), Member: key}).Err(); err != nil {
			return recovered, exhausted, err
		}
		recovered++
	}
	return recovered, exhausted, nil
}

// Len is the number of jobs waiting to run
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.delayedKey()).Result()
}

// FailedLen is the number of jobs that exhausted their attempts
func (q *RedisQueue) FailedLen(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.failedKey()).Result()
}

// IsNotFound reports whether err means a job key does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
