package coordinator

import (
	"github.com/leapstack-labs/formflow/internal/ledger"
	"github.com/leapstack-labs/formflow/internal/workspace"
)

func (c *Coordinator) publishStages() {
	if c.cfg.Metrics == nil {
		return
	}
	for _, s := range workspace.Stages {
		n, err := c.layout.Count(s)
		if err != nil {
			continue
		}
		c.cfg.Metrics.ObserveStage(s, n)
	}
}

func (c *Coordinator) publishLevels(l *ledger.Ledger) {
	if c.cfg.Metrics == nil {
		return
	}
	c.cfg.Metrics.ObserveLedger(ledger.Levels(l, c.cfg.Limits))
}

// flushMetrics writes the metrics textfile. Failures are logged only.
func (c *Coordinator) flushMetrics() {
	if c.cfg.Metrics == nil || c.cfg.MetricsPath == "" {
		return
	}
	if err := c.cfg.Metrics.WriteTextfile(c.cfg.MetricsPath); err != nil {
		c.logger.Warn("failed to write metrics", "path", c.cfg.MetricsPath, "error", err)
	}
}
