package queue

import (
	"context"
	"testing"
)

func TestInMemoryQueue_FIFO(t *testing.T) {
	q := NewInMemoryQueue()

	firstID, err := q.Enqueue(context.Background(), "workflow.trigger", []byte("a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	secondID, err := q.Enqueue(context.Background(), "workflow.trigger", []byte("b"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if firstID == secondID {
		t.Fatal("expected distinct task ids")
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 tasks, got %d", q.Len())
	}

	task, ok := q.Dequeue(context.Background())
	if !ok || string(task.Payload) != "a" {
		t.Fatalf("expected first task, got %+v ok=%v", task, ok)
	}
	task, ok = q.Dequeue(context.Background())
	if !ok || string(task.Payload) != "b" {
		t.Fatalf("expected second task, got %+v ok=%v", task, ok)
	}
	if _, ok := q.Dequeue(context.Background()); ok {
		t.Fatal("expected empty queue")
	}
}

func TestInMemoryQueue_RequiresName(t *testing.T) {
	q := NewInMemoryQueue()
	if _, err := q.Enqueue(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected missing-name error")
	}
}

func TestInMemoryQueue_CopiesPayload(t *testing.T) {
	q := NewInMemoryQueue()
	payload := []byte("original")
	if _, err := q.Enqueue(context.Background(), "workflow.trigger", payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload[0] = 'X'

	task, ok := q.Dequeue(context.Background())
	if !ok {
		t.Fatal("expected a task")
	}
	if string(task.Payload) != "original" {
		t.Fatalf("payload aliased caller slice: %s", task.Payload)
	}
}
