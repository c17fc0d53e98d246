package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"voxmeter/internal/app/api/provider"
	"voxmeter/internal/app/errors"
	"voxmeter/internal/app/metrics"
	"voxmeter/internal/app/pipeline"
)

// Job results reported to metrics.
const (
	ResultSucceeded    = "succeeded"
	ResultRetried      = "retried"
	ResultDeadLettered = "dead_lettered"
)

// Runner executes one pipeline operation. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, op pipeline.Operation, req *pipeline.Request) (*pipeline.Response, error)
}

// Worker drains a Queue into a Runner.
type Worker struct {
	queue   *Queue
	runner  Runner
	metrics *metrics.Metrics
	logger  *zap.Logger
	backoff time.Duration
}

// NewWorker creates a Worker that pauses backoff after a failure.
func NewWorker(q *Queue, runner Runner, m *metrics.Metrics, logger *zap.Logger, backoff time.Duration) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if backoff < 0 {
		backoff = 0
	}
	return &Worker{queue: q, runner: runner, metrics: m, logger: logger.Named("worker"), backoff: backoff}
}

// Retryable reports whether a failed operation may succeed when run again.
// Bad input, missing pricing and undecodable media fail the same way on
// every attempt, and so does routing to a provider that is not registered.
func Retryable(err error) bool {
	if errors.Is(err, errors.ErrProviderNotFound) {
		return false
	}
	switch errors.KindOf(err) {
	case errors.KindInvalidRequest, errors.KindPricingNotFound,
		errors.KindConversionFailure, errors.KindSegmentationFailure:
		return false
	case errors.KindProviderFailure:
		var perr *provider.Error
		if errors.As(err, &perr) {
			return perr.Retryable
		}
		return true
	}
	return true
}

// Process runs one job and routes a failure to retry or the dead-letter
// list. It returns the operation error, if any.
func (w *Worker) Process(ctx context.Context, job *Job) error {
	logger := w.logger.With(
		zap.String("job_id", job.ID),
		zap.String("operation", string(job.Operation)),
		zap.String("operation_id", job.Request.OperationID),
		zap.Int("attempt", job.Attempt))
	logger.Debug("processing job")

	// each attempt bills its own provider calls
	job.Request.Attempt = job.Attempt
	resp, err := w.runner.Run(ctx, job.Operation, &job.Request)
	if err == nil {
		logger.Info("job succeeded", zap.Float64("total_cost", resp.TotalCost), zap.String("currency", resp.Currency))
		w.metrics.ObserveQueueJob(string(job.Operation), ResultSucceeded)
		return nil
	}

	logger.Error("job failed", zap.String("kind", string(errors.KindOf(err))), zap.Error(err))
	// the job must survive a shutdown that interrupted it
	requeueCtx := context.WithoutCancel(ctx)
	if !Retryable(err) {
		if dlqErr := w.queue.DeadLetter(requeueCtx, job, err); dlqErr != nil {
			logger.Error("dead-letter failed", zap.Error(dlqErr))
		}
		w.metrics.ObserveQueueJob(string(job.Operation), ResultDeadLettered)
		return err
	}
	dead, reErr := w.queue.Retry(requeueCtx, job, err)
	if reErr != nil {
		logger.Error("retry enqueue failed", zap.Error(reErr))
	}
	if dead {
		w.metrics.ObserveQueueJob(string(job.Operation), ResultDeadLettered)
	} else {
		w.metrics.ObserveQueueJob(string(job.Operation), ResultRetried)
	}
	return err
}

// Run processes jobs until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Warn("dequeue error", zap.Error(err))
			w.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}
		if err := w.Process(ctx, job); err != nil {
			w.sleep(ctx)
		}
	}
}

func (w *Worker) sleep(ctx context.Context) {
	if w.backoff == 0 {
		return
	}
	t := time.NewTimer(w.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
