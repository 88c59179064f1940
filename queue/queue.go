// Package queue provides the durable task surface the dispatcher
// enqueues to when asynchronous consumption is enabled, plus an
// in-memory implementation for tests and single-process deployments.
package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-ingest/core"
)

// Task is one named unit of queued work.
type Task struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Payload    []byte    `json:"payload"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// InMemoryQueue keeps tasks in arrival order. Dequeue is non-blocking;
// consumers poll or drain.
type InMemoryQueue struct {
	mu    sync.Mutex
	tasks []Task
	Now   core.Clock
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{}
}

func (q *InMemoryQueue) Enqueue(_ context.Context, name string, payload []byte) (string, error) {
	if q == nil {
		return "", fmt.Errorf("queue: queue is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("queue: task name is required")
	}
	task := Task{
		ID:         uuid.NewString(),
		Name:       name,
		Payload:    append([]byte(nil), payload...),
		EnqueuedAt: core.ResolveClock(q.Now)(),
	}
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
	return task.ID, nil
}

// Dequeue pops the oldest task, reporting false when the queue is empty.
func (q *InMemoryQueue) Dequeue(context.Context) (Task, bool) {
	if q == nil {
		return Task{}, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return Task{}, false
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task, true
}

func (q *InMemoryQueue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

var _ core.DurableQueue = (*InMemoryQueue)(nil)
