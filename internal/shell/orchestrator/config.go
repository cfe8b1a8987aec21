package orchestrator

import "time"

// Config tunes pipeline execution.
type Config struct {
	// PollInterval is the wait between execution status checks.
	PollInterval time.Duration

	// MaxRetries bounds the retries of a remote call failing transiently.
	// A call is attempted at most MaxRetries+1 times.
	MaxRetries int

	// RetryDelay is the fixed wait between those attempts.
	RetryDelay time.Duration

	// Workers is the number of pipelines run concurrently.
	Workers int

	// QueueSize is the number of accepted pipelines waiting for a worker.
	QueueSize int
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval: 10 * time.Second,
		MaxRetries:   5,
		RetryDelay:   10 * time.Second,
		Workers:      4,
		QueueSize:    64,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	return c
}
