package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/formflow/internal/cli/output"
	"github.com/leapstack-labs/formflow/internal/coordinator"
	"github.com/leapstack-labs/formflow/internal/workbook"
)

// NewCompletedCommand creates the completed command.
func NewCompletedCommand() *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "completed",
		Short: "Process new workbooks in the completed folder",
		Long: `Read every workbook in completed/ that has not been processed before and
record it in the state database. Processed files are skipped on later runs.`,
		Example: `  # Process new results
  formflow completed

  # Print the result rows as well
  formflow completed --show -o markdown`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCompleted(cmd, show)
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "Print the rows of each processed workbook")

	return cmd
}

func runCompleted(cmd *cobra.Command, show bool) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	experiment := experimentName(cmdCtx.Cfg)
	processed, err := cmdCtx.Coordinator.ProcessCompletedFolder(cmd.Context(), experiment)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]output.FrameOutput, 0, len(processed))
		for _, p := range processed {
			out = append(out, frameOutput(p.File, "completed", experiment, p.Frame))
		}
		return r.JSON(out)
	}

	renderProcessed(r, processed, show)
	return nil
}

func renderProcessed(r *output.Renderer, processed []coordinator.Processed, show bool) {
	if len(processed) == 0 {
		r.Muted("No new completed workbooks")
		return
	}
	for _, p := range processed {
		r.StatusLine(p.File, "success", strconv.Itoa(p.Frame.Len())+" rows")
	}
	if show {
		for _, p := range processed {
			r.Println("")
			renderFrame(r, p.File, p.Frame)
		}
	}
	r.Println("")
	r.Success("Processed " + strconv.Itoa(len(processed)) + " workbook(s)")
}

// NewRunningCommand creates the running command.
func NewRunningCommand() *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "running",
		Short: "Read queued and running workbooks",
		Long: `Read the batch workbooks in runqueue/ and running/. With --experiment,
workbooks whose experiment name does not contain it are skipped.`,
		Example: `  formflow running
  formflow running --experiment H2-screen --show`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRunning(cmd, show)
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "Print the rows of each workbook")

	return cmd
}

func runRunning(cmd *cobra.Command, show bool) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	inFlight, err := cmdCtx.Coordinator.ProcessRunning(cmd.Context(), cmdCtx.Cfg.Experiment)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]output.FrameOutput, 0, len(inFlight))
		for _, f := range inFlight {
			out = append(out, frameOutput(f.File, string(f.Stage), f.Experiment, f.Frame))
		}
		return r.JSON(out)
	}

	if len(inFlight) == 0 {
		r.Muted("No queued or running workbooks")
		return nil
	}
	for _, f := range inFlight {
		r.StatusLine(f.File, "other", output.Title(string(f.Stage))+" · "+f.Experiment)
	}
	if show {
		for _, f := range inFlight {
			r.Println("")
			renderFrame(r, f.File, f.Frame)
		}
	}
	return nil
}

func renderFrame(r *output.Renderer, title string, f *workbook.Frame) {
	r.Header(3, title)
	if f.Len() == 0 {
		r.Muted("empty")
		return
	}
	r.Table(f.Columns, f.Rows)
}

func frameOutput(file, stage, experiment string, f *workbook.Frame) output.FrameOutput {
	rows := f.Rows
	if rows == nil {
		rows = [][]string{}
	}
	return output.FrameOutput{
		File:       file,
		Stage:      stage,
		Experiment: experiment,
		Columns:    f.Columns,
		Rows:       rows,
	}
}
