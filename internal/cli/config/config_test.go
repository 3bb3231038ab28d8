package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/formflow/internal/ledger"
)

func writeConfig(t *testing.T, content string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return dir, path
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("project-dir", "", "")
	require.NoError(t, flags.Set("project-dir", dir))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ProjectRoot)
	assert.Equal(t, "fe", cfg.Profile)
	assert.Equal(t, filepath.Join(dir, "batch.template"), cfg.TemplatePath)
	assert.Equal(t, filepath.Join(dir, ledger.DefaultDir), cfg.LedgerDir)
	assert.Equal(t, filepath.Join(dir, DefaultStateFile), cfg.StatePath)
	assert.Equal(t, filepath.Join(dir, "fe_batch.xlsx"), cfg.Workbooks.FE)
	assert.Equal(t, ledger.DefaultLimits(), cfg.Ledger)
	assert.InDelta(t, 5, cfg.Composition.TotalVolume, 1e-9)
	assert.Equal(t, "Sol. Sim.", cfg.Chemspeed.LightSource)
	assert.Equal(t, 48, cfg.Chemspeed.OutputRows)
	assert.Equal(t, DefaultDebounce, cfg.Watch.Debounce)
	assert.False(t, cfg.Archive.Enabled)
	assert.Empty(t, GetConfigFileUsed())
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestLoadConfig_File(t *testing.T) {
	ResetConfig()
	dir, path := writeConfig(t, `profile: cs
experiment: H2-screen
state_path: state/audit.db
composition:
  total_volume: 4.5
  liquids: [AscorbicAcid0-1M, NaCl-1-0M]
  catalysts: [P10-HS]
replica:
  enabled: true
  source: 28
  targets: [13, 14]
ledger:
  liquid_limit: 800
  subsample_switch_through: true
chemspeed:
  operator: AC
watch:
  debounce: 250ms
archive:
  enabled: true
  driver: fs
  root: archive
`)

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ProjectRoot)
	assert.Equal(t, path, GetConfigFileUsed())
	assert.Equal(t, "cs", cfg.Profile)
	assert.Equal(t, "H2-screen", cfg.Experiment)
	assert.Equal(t, filepath.Join(dir, "state", "audit.db"), cfg.StatePath)
	assert.InDelta(t, 4.5, cfg.Composition.TotalVolume, 1e-9)
	assert.Equal(t, []string{"AscorbicAcid0-1M", "NaCl-1-0M"}, cfg.Composition.Liquids)
	assert.Equal(t, ReplicaConfig{Enabled: true, Source: 28, Targets: []int{13, 14}}, cfg.Replica)
	assert.InDelta(t, 800, cfg.Ledger.LiquidLimit, 1e-9)
	assert.InDelta(t, 35000, cfg.Ledger.WashLimit, 1e-9, "unset keys keep defaults")
	assert.True(t, cfg.Ledger.SwitchThrough)
	assert.Equal(t, "AC", cfg.Chemspeed.Operator)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, filepath.Join(dir, "archive"), cfg.Archive.Root)
}

func TestLoadConfig_UpwardSearch(t *testing.T) {
	ResetConfig()
	dir, _ := writeConfig(t, "experiment: upward\n")
	sub := filepath.Join(dir, "runqueue")
	require.NoError(t, os.Mkdir(sub, 0750))
	t.Chdir(sub)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(cfg.ProjectRoot)
	require.NoError(t, err)
	assert.Equal(t, resolved, got)
	assert.Equal(t, "upward", cfg.Experiment)
}

func TestLoadConfig_EnvPrecedenceOverFile(t *testing.T) {
	ResetConfig()
	_, path := writeConfig(t, "experiment: from_file\nledger:\n  liquid_limit: 800\n")

	t.Setenv("FORMFLOW_EXPERIMENT", "from_env")
	t.Setenv("FORMFLOW_LEDGER__LIQUID_LIMIT", "900")
	t.Setenv("FORMFLOW_COMPOSITION__LIQUIDS", "a,b")
	t.Setenv("FORMFLOW_WATCH__DEBOUNCE", "1s")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "from_env", cfg.Experiment)
	assert.InDelta(t, 900, cfg.Ledger.LiquidLimit, 1e-9)
	assert.Equal(t, []string{"a", "b"}, cfg.Composition.Liquids)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
}

func TestLoadConfig_FlagPrecedence(t *testing.T) {
	ResetConfig()
	_, path := writeConfig(t, "experiment: from_file\n")
	t.Setenv("FORMFLOW_EXPERIMENT", "from_env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("experiment", "", "")
	flags.String("state", "", "")
	flags.Bool("verbose", false, "")
	require.NoError(t, flags.Set("experiment", "from_flag"))
	require.NoError(t, flags.Set("state", ":memory:"))

	cfg, err := LoadConfig(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "from_flag", cfg.Experiment, "flag value should override config file and env var")
	assert.Equal(t, ":memory:", cfg.StatePath)
	assert.False(t, cfg.Verbose, "unset flags do not override")
}

func TestLoadConfig_FlagPathsRelativeToWorkingDir(t *testing.T) {
	ResetConfig()
	dir, path := writeConfig(t, "")
	cwd := t.TempDir()
	t.Chdir(cwd)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("template", "", "")
	require.NoError(t, flags.Set("template", "alt.template"))

	cfg, err := LoadConfig(path, flags)
	require.NoError(t, err)

	abs, err := filepath.Abs("alt.template")
	require.NoError(t, err)
	assert.Equal(t, abs, cfg.TemplatePath)
	assert.Equal(t, filepath.Join(dir, ledger.DefaultDir), cfg.LedgerDir)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	ResetConfig()
	_, path := writeConfig(t, "profile: [unclosed\n")

	_, err := LoadConfig(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Profile:      "fe",
			OutputFormat: "auto",
			Ledger:       ledger.DefaultLimits(),
			Composition:  CompositionConfig{TotalVolume: 5},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown profile", mutate: func(c *Config) { c.Profile = "robot" }, wantErr: "unknown profile"},
		{name: "bad output", mutate: func(c *Config) { c.OutputFormat = "yaml" }, wantErr: "invalid output format"},
		{name: "zero liquid limit", mutate: func(c *Config) { c.Ledger.LiquidLimit = 0 }, wantErr: "must be positive"},
		{name: "deadspace", mutate: func(c *Config) { c.Ledger.WashDeadspace = 1 }, wantErr: "deadspace"},
		{name: "volume", mutate: func(c *Config) { c.Composition.TotalVolume = 0 }, wantErr: "total_volume"},
		{
			name:    "replica without targets",
			mutate:  func(c *Config) { c.Replica = ReplicaConfig{Enabled: true, Source: 3} },
			wantErr: "replica.targets is required",
		},
		{
			name:    "replica targets source",
			mutate:  func(c *Config) { c.Replica = ReplicaConfig{Enabled: true, Source: 3, Targets: []int{3}} },
			wantErr: "must not contain the source",
		},
		{
			name: "s3 without bucket",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.Driver = "s3"
			},
			wantErr: "archive.s3.bucket",
		},
		{
			name: "unknown driver",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.Driver = "ftp"
			},
			wantErr: "unknown archive driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateProject(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{TemplatePath: filepath.Join(dir, "batch.template")}

	err := cfg.ValidateProject()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "formflow init")

	require.NoError(t, os.WriteFile(cfg.TemplatePath, []byte("x"), 0600))
	assert.NoError(t, cfg.ValidateProject())
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR_ONE", "value_one")
	t.Setenv("TEST_VAR_TWO", "value_two")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "single variable", input: "${TEST_VAR_ONE}", expected: "value_one"},
		{name: "multiple variables", input: "${TEST_VAR_ONE}/${TEST_VAR_TWO}", expected: "value_one/value_two"},
		{name: "unset variable stays as-is", input: "${UNSET_VARIABLE}", expected: "${UNSET_VARIABLE}"},
		{name: "no variables", input: "plain string", expected: "plain string"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandEnvVars(tt.input))
		})
	}
}

func TestLoadConfig_ExpandsArchiveCredentials(t *testing.T) {
	ResetConfig()
	_, path := writeConfig(t, `archive:
  enabled: true
  driver: s3
  s3:
    bucket: batches
    access_key_id: ${TEST_ARCHIVE_KEY}
`)
	t.Setenv("TEST_ARCHIVE_KEY", "AKIDEXAMPLE")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "AKIDEXAMPLE", cfg.Archive.S3.AccessKeyID)
}

func TestGetLogger_Fallback(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))
}
