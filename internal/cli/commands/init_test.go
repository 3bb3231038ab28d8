package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/formflow/internal/cli/config"
	"github.com/leapstack-labs/formflow/internal/ledger"
	"github.com/leapstack-labs/formflow/internal/template"
	"github.com/leapstack-labs/formflow/internal/workbook"
)

func TestNewInitCommand(t *testing.T) {
	tests := []struct {
		name      string
		setupDir  func(t *testing.T, dir string)
		args      []string
		wantErr   string
		wantFiles []string
	}{
		{
			name: "init empty directory",
			args: []string{},
			wantFiles: []string{
				"formflow.yaml",
				"batch.template",
				".gitignore",
				"Material tracking/material_list.csv",
				"Material tracking/waste.txt",
				"runqueue",
				"running",
				"completed",
				"fe_batch.xlsx",
				"cs_batch.xlsx",
			},
		},
		{
			name: "init existing config without force",
			setupDir: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "formflow.yaml"), []byte("existing"), 0600))
			},
			args:    []string{},
			wantErr: "already exists",
		},
		{
			name: "init existing config with force",
			setupDir: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "formflow.yaml"), []byte("existing"), 0600))
			},
			args:      []string{"--force"},
			wantFiles: []string{"formflow.yaml", "batch.template"},
		},
		{
			name:    "unknown profile",
			args:    []string{"--profile", "robot"},
			wantErr: "unknown profile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config.ResetConfig()
			tmpDir := t.TempDir()
			t.Chdir(tmpDir)

			if tt.setupDir != nil {
				tt.setupDir(t, tmpDir)
			}

			cmd := NewInitCommand()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			for _, f := range tt.wantFiles {
				assert.FileExists(t, filepath.Join(tmpDir, filepath.FromSlash(f)), "expected %s", f)
			}
			assert.Contains(t, buf.String(), "formflow project initialized")
		})
	}
}

func TestInit_DirectoryArgument(t *testing.T) {
	config.ResetConfig()
	t.Chdir(t.TempDir())

	cmd := NewInitCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"h2-screen", "--profile", "cs"})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(filepath.Join("h2-screen", "formflow.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "profile: cs")
}

func TestInit_ProjectIsUsable(t *testing.T) {
	config.ResetConfig()
	dir := t.TempDir()

	cmd := NewInitCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{dir})
	require.NoError(t, cmd.Execute())

	tmpl, err := template.LoadBatch(filepath.Join(dir, template.FileName))
	require.NoError(t, err)
	assert.Equal(t, []string{"P10-HS", "AscorbicAcid", "water"}, tmpl.Materials())

	l, err := ledger.Load(filepath.Join(dir, ledger.DefaultDir))
	require.NoError(t, err)
	for _, name := range tmpl.Materials() {
		_, ok := l.Get(name)
		assert.True(t, ok, "ledger tracks %s", name)
	}

	wb, err := workbook.OpenFE(filepath.Join(dir, workbook.FETemplateFile), false)
	require.NoError(t, err)
	assert.NoError(t, wb.Close())

	cfg, err := config.LoadConfig(filepath.Join(dir, config.ConfigFileName), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"AscorbicAcid"}, cfg.Composition.Liquids)
	assert.False(t, cfg.Replica.Enabled)
}

func TestRenameSpecialFiles(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "gitignore", want: ".gitignore"},
		{in: "ledger", want: "Material tracking"},
		{in: "ledger/material_list.csv", want: "Material tracking/material_list.csv"},
		{in: "batch.template", want: "batch.template"},
		{in: "ledgers.txt", want: "ledgers.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, renameSpecialFiles(tt.in))
		})
	}
}
