package coordinator

import (
	"context"
	"strings"

	"github.com/leapstack-labs/formflow/internal/state"
	"github.com/leapstack-labs/formflow/internal/workbook"
	"github.com/leapstack-labs/formflow/internal/workspace"
)

// Processed is a completed workbook read into a frame.
type Processed struct {
	File  string
	Frame *workbook.Frame
}

// InFlight is a queued or running workbook read back into a frame.
type InFlight struct {
	Stage      workspace.Stage
	File       string
	Experiment string
	Frame      *workbook.Frame
}

// ProcessCompletedFolder reads every completed workbook not processed
// before, in name order, and marks it processed. The experiment name is
// recorded with each file. Unreadable workbooks are logged and skipped.
func (c *Coordinator) ProcessCompletedFolder(ctx context.Context, experiment string) ([]Processed, error) {
	files, err := c.layout.List(workspace.StageCompleted)
	if err != nil {
		return nil, err
	}

	maxRows := 0
	if c.cfg.Profile == ProfileCS {
		maxRows = c.cfg.Chemspeed.OutputRows
	}

	var out []Processed
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		done, err := c.store.IsProcessed(f.Name)
		if err != nil {
			return out, err
		}
		if done {
			continue
		}

		frame, err := workbook.ReadOutput(f.Path, maxRows)
		if err != nil {
			// Left unmarked so a rewritten file is picked up on the next pass.
			c.logger.Warn("skipping unreadable completed workbook", "file", f.Name, "error", err)
			continue
		}
		if err := c.store.MarkProcessed(state.ProcessedFile{
			Filename:   f.Name,
			Experiment: experiment,
			Rows:       frame.Len(),
		}); err != nil {
			return out, err
		}
		c.markCompleted(f.Name)

		c.logger.Info("processed completed workbook", "file", f.Name, "rows", frame.Len())
		out = append(out, Processed{File: f.Name, Frame: frame})
	}

	c.publishStages()
	c.flushMetrics()
	return out, nil
}

// markCompleted moves a recorded batch to completed when the workbook
// belongs to one.
func (c *Coordinator) markCompleted(filename string) {
	name := strings.TrimSuffix(filename, workspace.Extension)
	if _, err := c.store.GetBatch(name); err != nil {
		return
	}
	if err := c.store.UpdateBatchStatus(name, state.BatchStatusCompleted); err != nil {
		c.logger.Warn("failed to update batch status", "batch", name, "error", err)
	}
}

// ProcessRunning reads every workbook in running/ then runqueue/. When
// experiment is set, workbooks whose experiment name does not contain it
// are skipped with a warning.
func (c *Coordinator) ProcessRunning(ctx context.Context, experiment string) ([]InFlight, error) {
	nameCell := workbook.FEExperimentNameCell
	if c.cfg.Profile == ProfileCS {
		nameCell = workbook.CSExperimentNameCell
	}

	var out []InFlight
	for _, stage := range []workspace.Stage{workspace.StageRunning, workspace.StageRunqueue} {
		files, err := c.layout.List(stage)
		if err != nil {
			return nil, err
		}

		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return out, err
			}

			name, err := workbook.ReadExperimentName(f.Path, nameCell)
			if err != nil {
				return out, err
			}
			if experiment != "" && !strings.Contains(name, experiment) {
				c.logger.Warn("skipping workbook from a different experiment",
					"file", f.Name, "stage", stage, "experiment", name, "want", experiment)
				continue
			}

			var frame *workbook.Frame
			if c.cfg.Profile == ProfileCS {
				frame, err = workbook.ReadDetails(f.Path)
			} else {
				frame, err = workbook.ReadFormulations(f.Path)
			}
			if err != nil {
				return out, err
			}

			c.logger.Debug("read in-flight workbook", "file", f.Name, "stage", stage, "rows", frame.Len())
			out = append(out, InFlight{Stage: stage, File: f.Name, Experiment: name, Frame: frame})
		}
	}
	return out, nil
}

// CheckRunQueue returns the number of entries in running/.
func (c *Coordinator) CheckRunQueue() (int, error) {
	n, err := c.layout.Count(workspace.StageRunning)
	if err != nil {
		return 0, err
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ObserveStage(workspace.StageRunning, n)
	}
	return n, nil
}

// StageCounts returns the entry count of every stage folder. Missing
// folders are reported as ErrStageMissing.
func (c *Coordinator) StageCounts() (map[workspace.Stage]int, error) {
	counts := make(map[workspace.Stage]int, len(workspace.Stages))
	for _, s := range workspace.Stages {
		n, err := c.layout.Count(s)
		if err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, nil
}
