package commands

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/formflow/internal/cli/output"
	"github.com/leapstack-labs/formflow/internal/workspace"
)

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stage folder counts and recent batches",
		Long: `Show how many workbooks sit in each stage folder and the most recently
submitted batches with the folder each one is in now.`,
		Example: `  formflow status
  formflow status --limit 5 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of recent batches to show")

	return cmd
}

func runStatus(cmd *cobra.Command, limit int) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	coord := cmdCtx.Coordinator
	counts, err := coord.StageCounts()
	if err != nil {
		return err
	}
	running, err := coord.CheckRunQueue()
	if err != nil {
		return err
	}

	batches, err := coord.Store().ListBatches(limit)
	if err != nil {
		return err
	}
	infos := make([]output.BatchInfo, 0, len(batches))
	for _, b := range batches {
		info := output.BatchInfo{
			Name:        b.Name,
			Profile:     b.Profile,
			Samples:     b.Samples,
			Tracked:     b.Tracked,
			Status:      string(b.Status),
			SubmittedAt: b.SubmittedAt.Format(time.RFC3339),
		}
		if stage, ok := coord.Stage(b.Name); ok {
			info.Stage = string(stage)
		}
		infos = append(infos, info)
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		stages := make(map[string]int, len(counts))
		for s, n := range counts {
			stages[string(s)] = n
		}
		return r.JSON(output.StatusOutput{
			Root:    cmdCtx.Cfg.ProjectRoot,
			Profile: string(coord.Profile()),
			Stages:  stages,
			Batches: infos,
		})
	}

	r.Header(2, "Project")
	r.KeyValue("Root", cmdCtx.Cfg.ProjectRoot)
	r.KeyValue("Profile", string(coord.Profile()))
	r.Println("")

	r.Header(2, "Stages")
	for _, s := range workspace.Stages {
		r.KeyValue(output.Title(string(s)), strconv.Itoa(counts[s]))
	}
	if running > 0 {
		r.Println("")
		r.Warning("The robot is busy: " + strconv.Itoa(running) + " workbook(s) running")
	}
	r.Println("")

	r.Header(2, "Recent batches")
	if len(infos) == 0 {
		r.Muted("No batches submitted yet")
		return nil
	}
	rows := make([][]string, 0, len(infos))
	for _, b := range infos {
		stage := b.Stage
		if stage == "" {
			stage = "-"
		}
		rows = append(rows, []string{b.Name, b.Profile, strconv.Itoa(b.Samples), trackedLabel(b.Tracked), b.Status, stage, b.SubmittedAt})
	}
	r.Table([]string{"Batch", "Profile", "Samples", "Ledger", "Status", "Folder", "Submitted"}, rows)
	return nil
}
