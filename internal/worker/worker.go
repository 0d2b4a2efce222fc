package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Aksor9/AI-GameMaster/internal/services/events"
	queuesvc "github.com/Aksor9/AI-GameMaster/internal/services/queue"
	queuePkg "github.com/Aksor9/AI-GameMaster/pkg/queue"
	"github.com/Aksor9/AI-GameMaster/pkg/state"
)

const (
	workerTimeout = 5 * time.Second
	lockTTL       = 30 * time.Second

	// maxTaskAttempts bounds retries of tasks that failed on an external
	// service.
	maxTaskAttempts = 3
)

// Worker consumes the session action queue. One task is processed at a
// time, under a per-session lock, so two workers never mutate the same
// session concurrently.
type Worker struct {
	id          string
	queue       *queuesvc.TaskQueue
	processor   *ActionProcessor
	broadcaster *events.Broadcaster
	redisClient *redis.Client
	log         *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

// New creates a new worker instance
func New(taskQueue *queuesvc.TaskQueue, processor *ActionProcessor, broadcaster *events.Broadcaster, redisClient *redis.Client, log *slog.Logger, workerID string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}

	return &Worker{
		id:          workerID,
		queue:       taskQueue,
		processor:   processor,
		broadcaster: broadcaster,
		redisClient: redisClient,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins processing tasks from the queue
func (w *Worker) Start() error {
	w.log.Info("Worker starting", "worker_id", w.id)

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Worker shutting down", "worker_id", w.id)
			return nil
		default:
			if err := w.processNextTask(); err != nil {
				w.log.Error("Error processing task", "error", err, "worker_id", w.id)
				// Continue processing even on error
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested", "worker_id", w.id)
	w.cancel()
}

// processNextTask pulls the next task from the queue and processes it
func (w *Worker) processNextTask() error {
	// Block waiting for the next task (timeout to check for shutdown)
	ctx, cancel := context.WithTimeout(w.ctx, workerTimeout+time.Second)
	defer cancel()

	task, err := w.queue.BlockingDequeue(ctx, workerTimeout)
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			// Queue is empty or shutdown in progress
			return nil
		}
		return fmt.Errorf("failed to dequeue task: %w", err)
	}
	if task == nil {
		return nil
	}

	w.log.Info("Received task from queue",
		"worker_id", w.id,
		"task_id", task.TaskID,
		"type", task.Type,
		"session_id", task.SessionID.String(),
	)

	// Try to acquire the session lock
	locked, err := w.acquireSessionLock(task.SessionID)
	if err != nil {
		return fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if !locked {
		// Another worker holds this session.
		// Re-queue at the end and try the next task.
		w.log.Info("Session already locked, re-queueing task",
			"worker_id", w.id,
			"task_id", task.TaskID,
			"session_id", task.SessionID.String(),
		)
		if err := w.queue.Enqueue(w.ctx, task); err != nil {
			return fmt.Errorf("failed to re-queue task: %w", err)
		}
		return nil
	}

	defer w.releaseSessionLock(task.SessionID)
	return w.processTask(task)
}

// acquireSessionLock attempts to acquire the lock for a session.
// Returns true if the lock was acquired, false if already locked.
func (w *Worker) acquireSessionLock(sessionID uuid.UUID) (bool, error) {
	lockKey := fmt.Sprintf("game-lock:%s", sessionID.String())

	result, err := w.redisClient.SetNX(w.ctx, lockKey, w.id, lockTTL).Result()
	if err != nil {
		return false, err
	}

	return result, nil
}

// releaseSessionLock releases the lock for a session
func (w *Worker) releaseSessionLock(sessionID uuid.UUID) {
	lockKey := fmt.Sprintf("game-lock:%s", sessionID.String())

	// Only delete if we own the lock
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	if err := script.Run(w.ctx, w.redisClient, []string{lockKey}, w.id).Err(); err != nil {
		w.log.Error("Failed to release session lock", "error", err, "session_id", sessionID.String())
	}
}

// processTask runs one task through the dispatcher and maps its failure
// mode: external-service errors are retried with backoff up to the
// attempt bound, everything else is reported to the client immediately.
func (w *Worker) processTask(task *queuePkg.Task) error {
	start := time.Now()

	err := w.processor.Process(w.ctx, task)
	if err == nil {
		w.log.Info("Task processed",
			"worker_id", w.id,
			"task_id", task.TaskID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}

	var external *state.ExternalServiceError
	if errors.As(err, &external) {
		task.Attempts++
		if task.Attempts < maxTaskAttempts {
			backoff := time.Duration(task.Attempts) * time.Second
			w.log.Warn("External service failure, retrying task",
				"worker_id", w.id,
				"task_id", task.TaskID,
				"attempt", task.Attempts,
				"backoff", backoff,
				"error", err,
			)
			time.Sleep(backoff)
			if qErr := w.queue.Enqueue(w.ctx, task); qErr != nil {
				return fmt.Errorf("failed to re-queue task for retry: %w", qErr)
			}
			return nil
		}
	}

	w.publishFailure(task, err)

	var (
		validation *state.ValidationError
		stale      *state.StaleActionError
		notFound   *state.NotFoundError
	)
	if errors.As(err, &validation) || errors.As(err, &stale) || errors.As(err, &notFound) {
		// The task was faulty, not the worker. Reported and done.
		w.log.Info("Task rejected",
			"worker_id", w.id,
			"task_id", task.TaskID,
			"reason", err.Error(),
		)
		return nil
	}
	return fmt.Errorf("task %s failed: %w", task.TaskID, err)
}

func (w *Worker) publishFailure(task *queuePkg.Task, taskErr error) {
	if err := w.broadcaster.PublishError(w.ctx, task.ClientID, taskErr.Error()); err != nil {
		w.log.Error("Failed to publish error event", "error", err, "task_id", task.TaskID)
	}
}
