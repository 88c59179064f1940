package core

import (
	"fmt"
	"strings"
	"time"
)

type PollerConfig struct {
	Concurrency int           `koanf:"concurrency" mapstructure:"concurrency"`
	CallTimeout time.Duration `koanf:"call_timeout" mapstructure:"call_timeout"`
}

type QueueConfig struct {
	// Enabled is the single process-wide switch selecting the durable
	// queue path; when false the dispatcher executes inline.
	Enabled  bool   `koanf:"enabled" mapstructure:"enabled"`
	TaskName string `koanf:"task_name" mapstructure:"task_name"`
}

type TriggerConfig struct {
	Endpoint     string        `koanf:"endpoint" mapstructure:"endpoint"`
	SharedSecret string        `koanf:"shared_secret" mapstructure:"shared_secret"`
	UserAgent    string        `koanf:"user_agent" mapstructure:"user_agent"`
	Timeout      time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

type IdempotencyConfig struct {
	TTL          time.Duration `koanf:"ttl" mapstructure:"ttl"`
	WaitInterval time.Duration `koanf:"wait_interval" mapstructure:"wait_interval"`
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name"`
	Poller      PollerConfig      `koanf:"poller" mapstructure:"poller"`
	Queue       QueueConfig       `koanf:"queue" mapstructure:"queue"`
	Trigger     TriggerConfig     `koanf:"trigger" mapstructure:"trigger"`
	Idempotency IdempotencyConfig `koanf:"idempotency" mapstructure:"idempotency"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "ingest",
		Poller: PollerConfig{
			Concurrency: 10,
			CallTimeout: 30 * time.Second,
		},
		Queue: QueueConfig{
			Enabled:  false,
			TaskName: "workflow.trigger",
		},
		Trigger: TriggerConfig{
			UserAgent: "go-ingest/1.0",
			Timeout:   30 * time.Second,
		},
		Idempotency: IdempotencyConfig{
			TTL:          24 * time.Hour,
			WaitInterval: 50 * time.Millisecond,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Poller.Concurrency < 1 {
		return fmt.Errorf("core: poller concurrency must be at least 1")
	}
	if c.Queue.Enabled && strings.TrimSpace(c.Queue.TaskName) == "" {
		return fmt.Errorf("core: queue task_name is required when the queue is enabled")
	}
	return nil
}
