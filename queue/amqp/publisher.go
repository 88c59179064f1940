// Package amqp publishes dispatcher tasks to a RabbitMQ exchange with
// persistent delivery, so enqueued work survives broker restarts.
package amqp

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/streadway/amqp"

	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/queue"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Channel is the subset of the AMQP channel the publisher needs.
type Channel interface {
	Publish(exchange string, key string, mandatory bool, immediate bool, msg amqp.Publishing) error
}

// Publisher enqueues named tasks as persistent JSON messages. The task
// name doubles as the routing key.
type Publisher struct {
	Channel  Channel
	Exchange string
	Now      core.Clock
}

func NewPublisher(channel Channel, exchange string) *Publisher {
	return &Publisher{Channel: channel, Exchange: exchange}
}

func (p *Publisher) Enqueue(_ context.Context, name string, payload []byte) (string, error) {
	if p == nil || p.Channel == nil {
		return "", fmt.Errorf("amqp: publisher requires a channel")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("amqp: task name is required")
	}

	task := queue.Task{
		ID:         uuid.NewString(),
		Name:       name,
		Payload:    payload,
		EnqueuedAt: core.ResolveClock(p.Now)(),
	}
	body, err := codec.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("amqp: encode task: %w", err)
	}

	publishing := amqp.Publishing{
		MessageId:    task.ID,
		Type:         name,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    task.EnqueuedAt,
		Body:         body,
	}
	if err := p.Channel.Publish(p.Exchange, name, false, false, publishing); err != nil {
		return "", fmt.Errorf("amqp: publish task %s: %w", name, err)
	}
	return task.ID, nil
}

// DecodeTask reads a queued task back from a delivery body.
func DecodeTask(body []byte) (queue.Task, error) {
	var task queue.Task
	if err := codec.Unmarshal(body, &task); err != nil {
		return queue.Task{}, fmt.Errorf("amqp: decode task: %w", err)
	}
	if strings.TrimSpace(task.Name) == "" {
		return queue.Task{}, fmt.Errorf("amqp: task name is missing")
	}
	return task, nil
}

var _ core.DurableQueue = (*Publisher)(nil)
