package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Aksor9/AI-GameMaster/pkg/queue"
)

// tasksKey is the shared work list consumed by all workers.
const tasksKey = "tasks"

// TaskQueue manages the session action queue. Tasks are delivered
// at-least-once; ordering is FIFO across all sessions.
type TaskQueue struct {
	client *Client
}

func NewTaskQueue(client *Client) *TaskQueue {
	return &TaskQueue{
		client: client,
	}
}

// Enqueue adds a task to the end of the queue.
func (q *TaskQueue) Enqueue(ctx context.Context, task *queue.Task) error {
	data, err := task.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize task: %w", err)
	}

	if err := q.client.rdb.RPush(ctx, tasksKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// Dequeue removes and returns the next task without blocking.
// Returns nil if the queue is empty.
func (q *TaskQueue) Dequeue(ctx context.Context) (*queue.Task, error) {
	result, err := q.client.rdb.LPop(ctx, tasksKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue task: %w", err)
	}

	task, err := queue.TaskFromJSON([]byte(result))
	if err != nil {
		return nil, fmt.Errorf("failed to parse task: %w", err)
	}
	return task, nil
}

// BlockingDequeue blocks until a task is available, then returns it.
// A zero timeout waits forever.
func (q *TaskQueue) BlockingDequeue(ctx context.Context, timeout time.Duration) (*queue.Task, error) {
	result, err := q.client.rdb.BLPop(ctx, timeout, tasksKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue task: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}

	task, err := queue.TaskFromJSON([]byte(result[1]))
	if err != nil {
		return nil, fmt.Errorf("failed to parse task: %w", err)
	}
	return task, nil
}

// Depth returns the number of tasks waiting in the queue.
func (q *TaskQueue) Depth(ctx context.Context) (int, error) {
	count, err := q.client.rdb.LLen(ctx, tasksKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return int(count), nil
}
