package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// StatsdClient is the subset of the DogStatsD client the sink uses.
type StatsdClient interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
	Distribution(name string, value float64, tags []string, rate float64) error
	Flush() error
	Close() error
}

// StatsdConfig configures the DogStatsD sink.
type StatsdConfig struct {
	Addr        string
	Service     string
	Environment string
	Version     string
}

// StatsdSink ships signals to a Datadog agent over DogStatsD.
type StatsdSink struct {
	client StatsdClient
}

// NewStatsdSink dials the agent at cfg.Addr. Unified service tags are
// attached to every metric.
func NewStatsdSink(cfg StatsdConfig) (*StatsdSink, error) {
	var global []string
	if cfg.Service != "" {
		global = append(global, "service:"+cfg.Service)
	}
	if cfg.Environment != "" {
		global = append(global, "env:"+cfg.Environment)
	}
	if cfg.Version != "" {
		global = append(global, "version:"+cfg.Version)
	}

	client, err := statsd.New(cfg.Addr, statsd.WithTags(global))
	if err != nil {
		return nil, fmt.Errorf("create dogstatsd client for %s: %w", cfg.Addr, err)
	}
	return NewStatsdSinkWithClient(client), nil
}

// NewStatsdSinkWithClient wraps an existing client
func NewStatsdSinkWithClient(client StatsdClient) *StatsdSink {
	return &StatsdSink{client: client}
}

// Name implements Sink
func (s *StatsdSink) Name() string {
	return "dogstatsd"
}

// Emit implements Sink
func (s *StatsdSink) Emit(_ context.Context, sig Signals) error {
	tags := statsdTags(sig.Tags())

	var errs []error
	for _, m := range sig.Metrics() {
		var err error
		switch m.Kind {
		case KindGauge:
			err = s.client.Gauge(m.Name, m.Value, tags, 1)
		case KindCount:
			err = s.client.Count(m.Name, int64(m.Value), tags, 1)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Name, err))
		}
	}
	if err := s.client.Distribution(MetricLatencyDistribution, sig.LatencyMs, tags, 1); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", MetricLatencyDistribution, err))
	}

	return errors.Join(errs...)
}

// Close flushes buffered metrics and closes the client
func (s *StatsdSink) Close() error {
	return errors.Join(s.client.Flush(), s.client.Close())
}

func statsdTags(tags map[string]string) []string {
	out := make([]string, 0, len(tags))
	for k, v := range tags {
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}
