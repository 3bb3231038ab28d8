package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/formflow/internal/archive"
	"github.com/leapstack-labs/formflow/internal/cli/config"
	"github.com/leapstack-labs/formflow/internal/cli/output"
	"github.com/leapstack-labs/formflow/internal/coordinator"
	"github.com/leapstack-labs/formflow/internal/ledger"
	"github.com/leapstack-labs/formflow/internal/metrics"
	"github.com/leapstack-labs/formflow/internal/workspace"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg         *config.Config
	Logger      *slog.Logger
	Coordinator *coordinator.Coordinator
	Renderer    *output.Renderer
}

// NewCommandContext creates a CommandContext with a coordinator and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	if err := cfg.ValidateProject(); err != nil {
		return nil, nil, err
	}

	coord, err := createCoordinator(cmd, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))

	cleanup := func() {
		_ = coord.Close()
	}

	return &CommandContext{
		Cfg:         cfg,
		Logger:      logger,
		Coordinator: coord,
		Renderer:    r,
	}, cleanup, nil
}

// NewCommandContextWithoutCoordinator creates a CommandContext without a
// coordinator. Useful for commands that run before a project exists.
func NewCommandContextWithoutCoordinator(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration, loading it from the
// working directory when no root command has run.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	cfg, err := config.LoadConfig("", nil)
	if err != nil {
		wd, _ := os.Getwd()
		return &config.Config{
			ProjectRoot:  wd,
			Profile:      config.DefaultProfile,
			OutputFormat: config.DefaultOutput,
		}
	}
	return cfg
}

func createCoordinator(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) (*coordinator.Coordinator, error) {
	// Ensure state directory exists
	if cfg.StatePath != ":memory:" {
		stateDir := filepath.Dir(cfg.StatePath)
		if stateDir != "." && stateDir != "" {
			if err := os.MkdirAll(stateDir, 0750); err != nil {
				return nil, err
			}
		}
	}

	var archiver *archive.Archiver
	if cfg.Archive.Enabled {
		store, err := archive.Open(cmd.Context(), cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		archiver = archive.NewArchiver(store, logger)
	}

	profile, err := coordinator.ParseProfile(cfg.Profile)
	if err != nil {
		return nil, err
	}

	return coordinator.New(coordinator.Config{
		Root:    cfg.ProjectRoot,
		Profile: profile,
		StageDirs: map[workspace.Stage]string{
			workspace.StageRunqueue:  cfg.Stages.Runqueue,
			workspace.StageRunning:   cfg.Stages.Running,
			workspace.StageCompleted: cfg.Stages.Completed,
		},
		TemplatePath:    cfg.TemplatePath,
		FETemplate:      cfg.Workbooks.FE,
		CSTemplate:      cfg.Workbooks.CS,
		LedgerDir:       cfg.LedgerDir,
		StatePath:       cfg.StatePath,
		Limits:          cfg.Ledger,
		RemoveZeros:     cfg.Workbooks.RemoveZeros,
		TotalVolume:     cfg.Composition.TotalVolume,
		CatalystLimit:   cfg.Composition.CatalystLimit,
		SubsampleBudget: cfg.Composition.SubsampleBudget,
		Liquids:         cfg.Composition.Liquids,
		Catalysts:       cfg.Composition.Catalysts,
		Scavengers:      cfg.Composition.Scavengers,
		Replica: coordinator.Replica{
			Enabled: cfg.Replica.Enabled,
			Source:  cfg.Replica.Source,
			Targets: cfg.Replica.Targets,
		},
		Chemspeed: coordinator.Chemspeed{
			Operator:     cfg.Chemspeed.Operator,
			LightSource:  cfg.Chemspeed.LightSource,
			Illumination: cfg.Chemspeed.Illumination,
			OutputRows:   cfg.Chemspeed.OutputRows,
		},
		Archive:     archiver,
		Metrics:     metrics.New(),
		MetricsPath: cfg.Metrics.Textfile,
		Debounce:    cfg.Watch.Debounce,
		Logger:      logger,
	})
}

// experimentName returns the --experiment value or the project folder name.
func experimentName(cfg *config.Config) string {
	if cfg.Experiment != "" {
		return cfg.Experiment
	}
	return filepath.Base(cfg.ProjectRoot)
}

// levelInfos converts ledger levels for JSON output.
func levelInfos(levels []ledger.Level) []output.LevelInfo {
	out := make([]output.LevelInfo, 0, len(levels))
	for _, lv := range levels {
		out = append(out, output.LevelInfo{
			Material:     lv.Material,
			Type:         string(lv.Type),
			Channel:      lv.Channel,
			ID:           lv.ID,
			Amount:       lv.Amount,
			Capacity:     lv.Capacity,
			Threshold:    lv.Threshold,
			Fraction:     lv.Fraction(),
			NeedsService: lv.NeedsService(),
		})
	}
	return out
}
