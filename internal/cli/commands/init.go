package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/formflow/internal/cli/config"
	"github.com/leapstack-labs/formflow/internal/cli/output"
	"github.com/leapstack-labs/formflow/internal/coordinator"
	"github.com/leapstack-labs/formflow/internal/template"
	"github.com/leapstack-labs/formflow/internal/workbook"
	"github.com/leapstack-labs/formflow/internal/workspace"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var profile string

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new formflow project",
		Long: `Initialize a new formflow project with the default folder layout.

This creates:
  - formflow.yaml configuration file
  - batch.template describing the robot's batch header and sample line
  - Material tracking/ with the material ledger
  - runqueue/, running/ and completed/ stage folders
  - fe_batch.xlsx and cs_batch.xlsx workbook templates`,
		Example: `  # Initialize in current directory
  formflow init

  # Initialize a Chemspeed project in a new directory
  formflow init h2-screen --profile cs

  # Overwrite existing files
  formflow init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			cfg := getConfig()
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))

			return runInit(r, dir, profile, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	cmd.Flags().StringVar(&profile, "profile", config.DefaultProfile, "Robot profile of the new project (fe or cs)")

	return cmd
}

func runInit(r *output.Renderer, dir, profile string, force bool) error {
	if _, err := coordinator.ParseProfile(profile); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, config.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", config.ConfigFileName)
	}

	files, err := copyTemplate("project", dir, force)
	if err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	if profile != config.DefaultProfile {
		if err := setProfile(configPath, profile); err != nil {
			return err
		}
	}

	layout := workspace.New(dir)
	if err := layout.Ensure(); err != nil {
		return fmt.Errorf("failed to create stage folders: %w", err)
	}
	for _, s := range workspace.Stages {
		files = append(files, string(s)+"/")
	}

	tmpl, err := template.LoadBatch(filepath.Join(dir, template.FileName))
	if err != nil {
		return err
	}

	fePath := filepath.Join(dir, workbook.FETemplateFile)
	if force || !exists(fePath) {
		if err := workbook.WriteFETemplate(fePath, len(tmpl.Materials())); err != nil {
			return fmt.Errorf("failed to write FE template: %w", err)
		}
		files = append(files, workbook.FETemplateFile)
	}
	csPath := filepath.Join(dir, workbook.CSTemplateFile)
	if force || !exists(csPath) {
		if err := workbook.WriteCSTemplate(csPath); err != nil {
			return fmt.Errorf("failed to write CS template: %w", err)
		}
		files = append(files, workbook.CSTemplateFile)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]any{"directory": dir, "profile": profile, "files": files})
	}

	for _, f := range files {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Success("formflow project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. List your materials and channels in Material tracking/material_list.csv")
	r.Println("  2. Edit batch.template to match the robot's batch header")
	r.Println("  3. Run 'formflow submit <batch> samples.yaml' to queue a batch")
	r.Println("  4. Run 'formflow watch' to process completed workbooks")

	return nil
}

func setProfile(configPath, profile string) error {
	data, err := os.ReadFile(configPath) //nolint:gosec // path is inside the new project
	if err != nil {
		return err
	}
	data = bytes.Replace(data, []byte("profile: "+config.DefaultProfile), []byte("profile: "+profile), 1)
	return os.WriteFile(configPath, data, 0600)
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
