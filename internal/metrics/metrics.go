// Package metrics exposes ledger fill levels, run-queue depth and
// submission counters as Prometheus metrics. They are written to a
// textfile for the node exporter's textfile collector after every
// coordinator operation.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/leapstack-labs/formflow/internal/ledger"
	"github.com/leapstack-labs/formflow/internal/workspace"
)

const namespace = "formflow"

// Metrics holds the collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	channelLevel    *prometheus.GaugeVec
	channelFraction *prometheus.GaugeVec
	needsService    *prometheus.GaugeVec
	stageFiles      *prometheus.GaugeVec
	batches         *prometheus.CounterVec
	samples         *prometheus.CounterVec
	charged         *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	channel := []string{"material", "type", "channel", "id"}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		channelLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "channel_amount",
			Help:      "Amount dispensed from a material channel since its last refill.",
		}, channel),
		channelFraction: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "channel_fill_ratio",
			Help:      "Channel amount divided by its capacity.",
		}, channel),
		needsService: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "channel_needs_service",
			Help:      "1 when the channel is at or past its refill or drain threshold.",
		}, channel),
		stageFiles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_files",
			Help:      "Number of entries in each lifecycle folder.",
		}, []string{"stage"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_submitted_total",
			Help:      "Batches written to the run queue.",
		}, []string{"profile"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_submitted_total",
			Help:      "Sample rows written to the run queue.",
		}, []string{"profile"}),
		charged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "charged_total",
			Help:      "Amount charged to the ledger per material.",
		}, []string{"material", "type"}),
	}
	m.registry.MustRegister(
		m.channelLevel, m.channelFraction, m.needsService,
		m.stageFiles, m.batches, m.samples, m.charged,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveLedger replaces the channel gauges with the ledger's levels.
func (m *Metrics) ObserveLedger(levels []ledger.Level) {
	m.channelLevel.Reset()
	m.channelFraction.Reset()
	m.needsService.Reset()
	for _, lv := range levels {
		labels := prometheus.Labels{
			"material": lv.Material,
			"type":     string(lv.Type),
			"channel":  strconv.Itoa(lv.Channel),
			"id":       lv.ID,
		}
		m.channelLevel.With(labels).Set(lv.Amount)
		m.channelFraction.With(labels).Set(lv.Fraction())
		service := 0.0
		if lv.NeedsService() {
			service = 1
		}
		m.needsService.With(labels).Set(service)
	}
}

// ObserveStage sets the entry count of one lifecycle folder.
func (m *Metrics) ObserveStage(stage workspace.Stage, n int) {
	m.stageFiles.WithLabelValues(string(stage)).Set(float64(n))
}

// BatchSubmitted counts a batch and its samples.
func (m *Metrics) BatchSubmitted(profile string, samples int) {
	m.batches.WithLabelValues(profile).Inc()
	m.samples.WithLabelValues(profile).Add(float64(samples))
}

// ObserveAllocations adds the charges of a batch.
func (m *Metrics) ObserveAllocations(allocs []ledger.Allocation) {
	for _, a := range allocs {
		if a.Charged <= 0 {
			continue
		}
		m.charged.WithLabelValues(a.Material, string(a.Type)).Add(a.Charged)
	}
}

// WriteTextfile atomically writes the registry in the text exposition
// format to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
