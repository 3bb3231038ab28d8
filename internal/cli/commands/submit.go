package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/formflow/internal/cli/output"
	"github.com/leapstack-labs/formflow/internal/coordinator"
)

// NewSubmitCommand creates the submit command.
func NewSubmitCommand() *cobra.Command {
	var mini bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "submit <batch> <samples-file>",
		Short: "Write a batch workbook to the run queue",
		Long: `Render every sample through batch.template, assign each dispense to a
material channel and write the batch workbook into runqueue/.

Samples are read from a YAML or JSON file holding a list of
material-to-amount maps, or from stdin when the file is "-".
FE batches are charged to the material ledger unless --mini is set.`,
		Example: `  # Submit a tracked FE batch
  formflow submit H2-0427 samples.yaml

  # Check allocations without writing anything
  formflow submit H2-0427 samples.yaml --dry-run

  # Submit an untracked mini batch from stdin
  cat samples.json | formflow submit H2-mini - --mini`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd, args[0], args[1], !mini, dryRun)
		},
	}

	cmd.Flags().BoolVar(&mini, "mini", false, "Submit an FE mini batch that does not touch the ledger")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Allocate and validate without writing files")

	return cmd
}

func runSubmit(cmd *cobra.Command, batch, samplesPath string, tracked, dryRun bool) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	samples, err := coordinator.LoadSamples(samplesPath)
	if err != nil {
		return err
	}

	res, err := cmdCtx.Coordinator.Submit(cmd.Context(), batch, samples, tracked, coordinator.SubmitOptions{DryRun: dryRun})
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(submitOutput(res))
	default:
		renderSubmit(r, res)
		return nil
	}
}

func submitOutput(res *coordinator.SubmitResult) output.SubmitOutput {
	out := output.SubmitOutput{
		Batch:    res.Batch,
		Profile:  string(res.Profile),
		Path:     res.Path,
		Samples:  res.Samples,
		Tracked:  res.Tracked,
		DryRun:   res.DryRun,
		Levels:   levelInfos(res.Levels),
		Warnings: res.Warnings,
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	for _, a := range res.Allocations {
		out.Allocations = append(out.Allocations, output.AllocationInfo{
			Sample:    a.Sample,
			Index:     a.Index,
			Material:  a.Material,
			Type:      string(a.Type),
			Channel:   a.Channel,
			ChannelID: a.ChannelID,
			Amount:    a.Amount,
			Charged:   a.Charged,
		})
	}
	for _, info := range res.Archived {
		out.Archived = append(out.Archived, info.Key)
	}
	return out
}

func renderSubmit(r *output.Renderer, res *coordinator.SubmitResult) {
	title := "Batch " + res.Batch
	if res.DryRun {
		title += " (dry run)"
	}
	r.Header(2, title)
	r.KeyValue("Profile", string(res.Profile))
	r.KeyValue("Samples", strconv.Itoa(res.Samples))
	r.KeyValue("Ledger", trackedLabel(res.Tracked))
	r.KeyValue("Workbook", res.Path)
	r.Println("")

	if len(res.Allocations) > 0 {
		rows := make([][]string, 0, len(res.Allocations))
		for _, a := range res.Allocations {
			rows = append(rows, []string{
				a.Sample,
				a.Material,
				a.ChannelID,
				fmt.Sprintf("%.4f", a.Amount),
				fmt.Sprintf("%.4f", a.Charged),
			})
		}
		r.Table([]string{"Sample", "Material", "Channel", "Amount", "Charged"}, rows)
		r.Println("")
	}

	if len(res.Levels) > 0 {
		renderLevels(r, res.Levels)
		r.Println("")
	}

	for _, w := range res.Warnings {
		r.Warning(w)
	}
	for _, info := range res.Archived {
		r.StatusLine(info.Key, "success", "archived")
	}

	switch {
	case res.DryRun:
		r.Muted("Dry run: nothing was written")
	default:
		r.Success(fmt.Sprintf("Queued %s with %d samples", res.Batch, res.Samples))
	}
}

func trackedLabel(tracked bool) string {
	if tracked {
		return "tracked"
	}
	return "untracked"
}
