package commands

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/formflow/internal/cli/output"
	"github.com/leapstack-labs/formflow/internal/cli/tui"
	"github.com/leapstack-labs/formflow/internal/coordinator"
	"github.com/leapstack-labs/formflow/internal/workspace"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	var dashboard bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Process completed workbooks as they arrive",
		Long: `Watch the completed folder and process every new workbook the robot
writes there. Runs until interrupted.

With --tui a live dashboard shows stage folder counts, ledger levels and
the workbooks processed so far.`,
		Example: `  formflow watch
  formflow watch --tui
  formflow watch -o json > results.ndjson`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, dashboard)
		},
	}

	cmd.Flags().BoolVar(&dashboard, "tui", false, "Show a live dashboard")

	return cmd
}

func runWatch(cmd *cobra.Command, dashboard bool) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	experiment := experimentName(cmdCtx.Cfg)
	if dashboard {
		return watchDashboard(ctx, cmd, cmdCtx.Coordinator, experiment)
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() != output.ModeJSON {
		r.Muted("Watching " + cmdCtx.Coordinator.Layout().Dir(workspace.StageCompleted) + " (Ctrl+C to stop)")
	}
	return cmdCtx.Coordinator.Watch(ctx, experiment, func(_ context.Context, processed []coordinator.Processed) error {
		if r.EffectiveMode() == output.ModeJSON {
			for _, p := range processed {
				if err := r.JSON(frameOutput(p.File, "completed", experiment, p.Frame)); err != nil {
					return err
				}
			}
			return nil
		}
		for _, p := range processed {
			r.StatusLine(p.File, "success", strconv.Itoa(p.Frame.Len())+" rows")
		}
		return nil
	})
}

func watchDashboard(ctx context.Context, cmd *cobra.Command, coord *coordinator.Coordinator, experiment string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(
		tui.New(coord, experiment),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		err := coord.Watch(egctx, experiment, func(_ context.Context, processed []coordinator.Processed) error {
			files := make([]string, 0, len(processed))
			for _, pr := range processed {
				files = append(files, pr.File)
			}
			p.Send(tui.ProcessedMsg{Files: files, At: time.Now()})
			return nil
		})
		if err != nil {
			p.Send(tui.ErrMsg{Err: err})
		}
		return err
	})

	_, runErr := p.Run()
	interrupted := ctx.Err() != nil
	cancel()
	watchErr := eg.Wait()

	if runErr != nil && !interrupted {
		return runErr
	}
	return watchErr
}
