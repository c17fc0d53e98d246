// Package queue carries pipeline operations through Redis lists.
package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"voxmeter/internal/app/pipeline"
)

const (
	// DefaultKey is the Redis list jobs are pushed to.
	DefaultKey = "voxmeter:jobs"
	// DefaultDeadLetterKey receives jobs that ran out of attempts.
	DefaultDeadLetterKey = "voxmeter:dlq"
	// DefaultMaxAttempts bounds how often a job runs before it is dead-lettered.
	DefaultMaxAttempts = 3
	// DefaultRetryBackoff is the pause after a failed job or dequeue.
	DefaultRetryBackoff = 10 * time.Second
	// DefaultPollTimeout bounds one BLPOP so shutdown is noticed.
	DefaultPollTimeout = 5 * time.Second
)

// Client is the part of a Redis client the queue uses. *redis.Client
// satisfies it.
type Client interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Job is the envelope of one queued operation. Request.OperationID is
// fixed at enqueue time, so every attempt bills under the same keys.
type Job struct {
	ID        string             `json:"id"`
	Operation pipeline.Operation `json:"operation"`
	Request   pipeline.Request   `json:"request"`
	Attempt   int                `json:"attempt"`
	LastError string             `json:"lastError,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

// Options tunes a Queue. Zero fields take the defaults.
type Options struct {
	Key           string
	DeadLetterKey string
	MaxAttempts   int
	PollTimeout   time.Duration
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client Client
	opts   Options
	logger *zap.Logger
}

// New creates a Redis-backed job queue.
func New(client Client, opts Options, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.DeadLetterKey == "" {
		opts.DeadLetterKey = DefaultDeadLetterKey
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	return &Queue{client: client, opts: opts, logger: logger.Named("queue")}
}

// Enqueue validates req and pushes it as a new job.
func (q *Queue) Enqueue(ctx context.Context, op pipeline.Operation, req *pipeline.Request) (*Job, error) {
	if err := pipeline.Validate(req); err != nil {
		return nil, err
	}
	job := &Job{
		ID:        uuid.NewString(),
		Operation: op,
		Request:   *req,
		CreatedAt: time.Now().UTC(),
	}
	if job.Request.OperationID == "" {
		job.Request.OperationID = job.ID
	}
	if err := q.push(ctx, q.opts.Key, job); err != nil {
		return nil, err
	}
	q.logger.Debug("enqueued job",
		zap.String("job_id", job.ID),
		zap.String("operation", string(op)),
		zap.String("operation_id", job.Request.OperationID))
	return job, nil
}

// Dequeue waits up to the poll timeout for a job. It returns nil, nil when
// none arrived or the payload was unreadable.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, q.opts.PollTimeout, q.opts.Key).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("blpop: %w", err)
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues job with its attempt incremented, or dead-letters it
// once MaxAttempts is reached. It reports whether the job was dead-lettered.
func (q *Queue) Retry(ctx context.Context, job *Job, cause error) (bool, error) {
	job.Attempt++
	if cause != nil {
		job.LastError = cause.Error()
	}
	if job.Attempt >= q.opts.MaxAttempts {
		return true, q.DeadLetter(ctx, job, nil)
	}
	if err := q.push(ctx, q.opts.Key, job); err != nil {
		return false, err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return false, nil
}

// DeadLetter moves job to the dead-letter list.
func (q *Queue) DeadLetter(ctx context.Context, job *Job, cause error) error {
	if cause != nil {
		job.LastError = cause.Error()
	}
	if err := q.push(ctx, q.opts.DeadLetterKey, job); err != nil {
		q.logger.Error("dlq push failed", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	q.logger.Warn("job moved to DLQ",
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
		zap.String("last_error", job.LastError))
	return nil
}

func (q *Queue) push(ctx context.Context, key string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	return nil
}
