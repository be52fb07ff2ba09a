// Package config holds the matching core's configuration surface (spec
// section 6). Values are populated by flags in cmd/anvild, following the
// teacher's cmd/main.go style of wiring dependencies by hand rather than
// reaching for a configuration framework the pack never uses.
package config

import (
	"fmt"
	"time"
)

// Config carries every tunable spec section 6 names.
type Config struct {
	Market string

	IngressAddr       string
	IngressQueueSize  int
	EventBufferSize   int
	EventBatchSize    int
	EventBatchTimeout time.Duration
	DedupWindowSize   int
	SinkEndpoint      string
	SinkDialTimeout   time.Duration
}

// Default returns a Config with the spec's typical values
// (ingress_queue_size ~10^6, event_batch_size ~1000,
// event_batch_timeout_ms ~50ms, dedup_window_size ~1M).
func Default(market string) Config {
	return Config{
		Market:            market,
		IngressAddr:       "0.0.0.0:9001",
		IngressQueueSize:  1_000_000,
		EventBufferSize:   1_000_000,
		EventBatchSize:    1000,
		EventBatchTimeout: 50 * time.Millisecond,
		DedupWindowSize:   1_000_000,
		SinkEndpoint:      "127.0.0.1:9100",
		SinkDialTimeout:   5 * time.Second,
	}
}

// Validate checks the configuration is self-consistent before it is used
// to construct the pipeline.
func (c Config) Validate() error {
	if c.Market == "" {
		return fmt.Errorf("config: market must not be empty")
	}
	if c.IngressQueueSize <= 0 {
		return fmt.Errorf("config: ingress_queue_size must be positive")
	}
	if c.EventBufferSize <= 0 {
		return fmt.Errorf("config: event_buffer_size must be positive")
	}
	if c.EventBatchSize <= 0 {
		return fmt.Errorf("config: event_batch_size must be positive")
	}
	if c.EventBatchTimeout <= 0 {
		return fmt.Errorf("config: event_batch_timeout_ms must be positive")
	}
	if c.DedupWindowSize <= 0 {
		return fmt.Errorf("config: dedup_window_size must be positive")
	}
	if c.SinkEndpoint == "" {
		return fmt.Errorf("config: sink_endpoint must not be empty")
	}
	return nil
}
