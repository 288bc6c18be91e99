// Package metrics collects per-run Prometheus metrics and exports them to a
// node-exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements sources.QueryRecorder and extract.ExtractionRecorder.
type Collector struct {
	registry *prometheus.Registry

	queries     *prometheus.CounterVec
	extractions *prometheus.CounterVec
	renders     *prometheus.CounterVec
	runs        *prometheus.CounterVec
	runDuration prometheus.Gauge
	lastRun     prometheus.Gauge
}

// NewCollector creates a Collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dailybrief_source_queries_total",
			Help: "Source account queries by outcome.",
		}, []string{"account", "outcome"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dailybrief_extractions_total",
			Help: "Extraction attempts by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dailybrief_renders_total",
			Help: "Card renders by outcome.",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dailybrief_runs_total",
			Help: "Pipeline runs by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dailybrief_run_duration_seconds",
			Help: "Duration of the last pipeline run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dailybrief_last_run_timestamp_seconds",
			Help: "Unix time the last pipeline run finished.",
		}),
	}

	c.registry.MustRegister(
		c.queries,
		c.extractions,
		c.renders,
		c.runs,
		c.runDuration,
		c.lastRun,
	)

	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordQuery counts one account query.
func (c *Collector) RecordQuery(account, outcome string) {
	c.queries.WithLabelValues(account, outcome).Inc()
}

// RecordExtraction counts one strategy attempt.
func (c *Collector) RecordExtraction(strategy, outcome string) {
	c.extractions.WithLabelValues(strategy, outcome).Inc()
}

// RecordRender counts one render.
func (c *Collector) RecordRender(outcome string) {
	c.renders.WithLabelValues(outcome).Inc()
}

// RecordRun records the result and duration of a whole run.
func (c *Collector) RecordRun(result string, d time.Duration, finished time.Time) {
	c.runs.WithLabelValues(result).Inc()
	c.runDuration.Set(d.Seconds())
	c.lastRun.Set(float64(finished.Unix()))
}

// WriteTextfile writes every collected metric to path in the text
// exposition format. The parent directory is created if needed.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
