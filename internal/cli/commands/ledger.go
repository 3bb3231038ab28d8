package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/formflow/internal/cli/output"
	"github.com/leapstack-labs/formflow/internal/ledger"
)

// NewLedgerCommand creates the ledger command group.
func NewLedgerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and service the material ledger",
		Long: `Show material channel levels, check whether any channel needs servicing,
and record refills and wash drains after the rig has been serviced.`,
	}

	cmd.AddCommand(newLedgerShowCommand())
	cmd.AddCommand(newLedgerCheckCommand())
	cmd.AddCommand(newLedgerHistoryCommand())
	cmd.AddCommand(newLedgerRefillCommand())
	cmd.AddCommand(newLedgerDrainCommand())

	return cmd
}

func newLedgerShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show every material channel level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := runLedgerShow(cmd)
			return err
		},
	}
}

func newLedgerCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Fail if any channel needs servicing",
		Long: `Show the ledger and exit with an error when a liquid channel needs
refilling, the wash bottle needs draining or a subsample channel is spent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			service, err := runLedgerShow(cmd)
			if err != nil {
				return err
			}
			if service > 0 {
				return fmt.Errorf("%d channel(s) need service", service)
			}
			return nil
		},
	}
}

func runLedgerShow(cmd *cobra.Command) (int, error) {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	l, err := cmdCtx.Coordinator.LoadLedger()
	if err != nil {
		return 0, err
	}
	levels := ledger.Levels(l, cmdCtx.Coordinator.Limits())

	service := 0
	for _, lv := range levels {
		if lv.NeedsService() {
			service++
		}
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		inWash := l.InWash()
		if inWash == nil {
			inWash = []string{}
		}
		return service, r.JSON(output.LedgerOutput{
			Levels:  levelInfos(levels),
			InWash:  inWash,
			Service: service,
		})
	}

	r.Header(2, "Material ledger")
	renderLevels(r, levels)
	if inWash := l.InWash(); len(inWash) > 0 {
		r.Println("")
		r.KeyValue("In wash", fmt.Sprint(inWash))
	}
	r.Println("")
	if service > 0 {
		r.Warning(fmt.Sprintf("%d channel(s) need service", service))
	} else {
		r.Success("All channels within limits")
	}
	return service, nil
}

func renderLevels(r *output.Renderer, levels []ledger.Level) {
	rows := make([][]string, 0, len(levels))
	for _, lv := range levels {
		fill := "-"
		if lv.Capacity > 0 {
			fill = fmt.Sprintf("%.0f%%", 100*lv.Fraction())
		}
		status := "ok"
		if lv.NeedsService() {
			status = "service"
		}
		rows = append(rows, []string{
			lv.Material,
			string(lv.Type),
			strconv.Itoa(lv.Channel),
			lv.ID,
			fmt.Sprintf("%.4f", lv.Amount),
			fill,
			status,
		})
	}
	r.Table([]string{"Material", "Type", "Channel", "ID", "Amount", "Fill", "Status"}, rows)
}

func newLedgerHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show material usage across submitted batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			usage, err := cmdCtx.Coordinator.Store().MaterialUsage()
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				out := make([]output.UsageInfo, 0, len(usage))
				for _, u := range usage {
					out = append(out, output.UsageInfo{
						Material: u.Material,
						Type:     u.Type,
						Batches:  u.Batches,
						Charged:  u.Charged,
					})
				}
				return r.JSON(out)
			}

			if len(usage) == 0 {
				r.Muted("No tracked batches recorded")
				return nil
			}
			rows := make([][]string, 0, len(usage))
			for _, u := range usage {
				rows = append(rows, []string{u.Material, u.Type, strconv.Itoa(u.Batches), fmt.Sprintf("%.4f", u.Charged)})
			}
			r.Header(2, "Material usage")
			r.Table([]string{"Material", "Type", "Batches", "Charged"}, rows)
			return nil
		},
	}
}

func newLedgerRefillCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refill <material> [channel]",
		Short: "Record a refilled material channel",
		Long: `Clear the running amount of a material channel after it has been
refilled or restocked. Without a channel every channel of the material
is cleared.`,
		Example: `  formflow ledger refill AscorbicAcid 1
  formflow ledger refill Subsample`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			channel := 0
			if len(args) == 2 {
				n, err := strconv.Atoi(args[1])
				if err != nil || n < 1 {
					return fmt.Errorf("invalid channel %q", args[1])
				}
				channel = n
			}
			return updateLedger(cmd, func(l *ledger.Ledger) (string, error) {
				if err := l.Refill(args[0], channel); err != nil {
					return "", err
				}
				if channel == 0 {
					return fmt.Sprintf("Refilled every channel of %s", args[0]), nil
				}
				return fmt.Sprintf("Refilled %s channel %d", args[0], channel), nil
			})
		},
	}
}

func newLedgerDrainCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Record a drained subsample wash bottle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return updateLedger(cmd, func(l *ledger.Ledger) (string, error) {
				if err := l.DrainWash(); err != nil {
					return "", err
				}
				return "Drained the wash bottle", nil
			})
		},
	}
}

func updateLedger(cmd *cobra.Command, apply func(*ledger.Ledger) (string, error)) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	l, err := cmdCtx.Coordinator.LoadLedger()
	if err != nil {
		return err
	}
	msg, err := apply(l)
	if err != nil {
		return err
	}
	if err := cmdCtx.Coordinator.SaveLedger(l); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	cmdCtx.Logger.Info("ledger serviced", "change", msg)

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]string{"result": msg})
	}
	r.Success(msg)
	return nil
}
