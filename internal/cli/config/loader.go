package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/formflow/internal/archive"
	"github.com/leapstack-labs/formflow/internal/ledger"
	"github.com/leapstack-labs/formflow/internal/template"
	"github.com/leapstack-labs/formflow/internal/workbook"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// EnvPrefix prefixes environment overrides. A double underscore separates
// nested keys: FORMFLOW_LEDGER__LIQUID_LIMIT sets ledger.liquid_limit.
const EnvPrefix = "FORMFLOW_"

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// flagKeys maps flags whose name differs from their config key.
var flagKeys = map[string]string{
	"state":            "state_path",
	"archive":          "archive.enabled",
	"metrics-textfile": "metrics.textfile",
}

// pathFlags are resolved against the working directory, not the project root.
var pathFlags = []string{"state", "template", "ledger-dir", "metrics-textfile"}

func defaults() map[string]any {
	limits := ledger.DefaultLimits()
	return map[string]any{
		"profile":                      DefaultProfile,
		"template":                     template.FileName,
		"ledger_dir":                   ledger.DefaultDir,
		"state_path":                   DefaultStateFile,
		"verbose":                      false,
		"output":                       DefaultOutput,
		"stages.runqueue":              "runqueue",
		"stages.running":               "running",
		"stages.completed":             "completed",
		"workbooks.fe":                 workbook.FETemplateFile,
		"workbooks.cs":                 workbook.CSTemplateFile,
		"workbooks.remove_zeros":       false,
		"ledger.liquid_limit":          limits.LiquidLimit,
		"ledger.liquid_deadspace":      limits.LiquidDeadspace,
		"ledger.wash_limit":            limits.WashLimit,
		"ledger.wash_deadspace":        limits.WashDeadspace,
		"ledger.subsample_capacity":    limits.SubsampleCapacity,
		"ledger.subsample_channels":    limits.SubsampleChannels,
		"ledger.wash_amount":           limits.WashAmount,
		"composition.total_volume":     5.0,
		"composition.catalyst_limit":   5.0,
		"composition.subsample_budget": 5.0,
		"chemspeed.light_source":       "Sol. Sim.",
		"chemspeed.illumination":       "4 hours",
		"chemspeed.output_rows":        DefaultOutputRows,
		"archive.enabled":              false,
		"archive.driver":               string(archive.DriverFilesystem),
		"archive.root":                 archive.DefaultRoot,
		"watch.debounce":               DefaultDebounce.String(),
	}
}

// configExistsIn checks if a formflow config file exists in the directory.
func configExistsIn(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// findProjectRootUpward searches upward from startDir for a formflow config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findProjectRootUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configExistsIn(dir) {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// inferProjectRoot determines the project root.
// Priority:
//  1. Explicit --project-dir flag
//  2. Directory of an explicit config file
//  3. Search upward from CWD for formflow.yaml
//  4. Current working directory
func inferProjectRoot(cfgFile string, flags *pflag.FlagSet) string {
	if flags != nil {
		if projectDir, _ := flags.GetString("project-dir"); projectDir != "" && flags.Changed("project-dir") {
			if abs, err := filepath.Abs(projectDir); err == nil {
				return abs
			}
			return filepath.Clean(projectDir)
		}
	}

	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			return filepath.Dir(abs)
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		if root := findProjectRootUpward(cwd); root != "" {
			return root
		}
	}

	cwd, _ := os.Getwd()
	if cwd == "" {
		cwd = "."
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) || path == ":memory:" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from defaults, the config file,
// environment variables and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")
	configFileUsed = ""

	projectRoot := inferProjectRoot(cfgFile, flags)

	// Paths given as flags are relative to the working directory.
	flagPaths := make(map[string]string)
	if flags != nil {
		for _, name := range pathFlags {
			if f := flags.Lookup(name); f != nil && f.Changed && f.Value.String() != "" {
				v := f.Value.String()
				if v != ":memory:" {
					v, _ = filepath.Abs(v)
				}
				flagPaths[name] = v
			}
		}
	}

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	if cfgFile == "" {
		candidate := filepath.Join(projectRoot, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			cfgFile = candidate
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
		configFileUsed = cfgFile
	}

	// 3. Load environment variables (FORMFLOW_ prefix)
	// Transform: FORMFLOW_ARCHIVE__DRIVER -> archive.driver
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed || f.Name == "project-dir" || f.Name == "config" {
				return "", nil
			}
			if key, ok := flagKeys[f.Name]; ok {
				return key, posflag.FlagVal(flags, f)
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			WeaklyTypedInput: true,
			Result:           &cfg,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Resolve paths against the project root
	cfg.ProjectRoot = projectRoot
	cfg.TemplatePath = pick(flagPaths["template"], cfg.TemplatePath, projectRoot)
	cfg.LedgerDir = pick(flagPaths["ledger-dir"], cfg.LedgerDir, projectRoot)
	cfg.StatePath = pick(flagPaths["state"], cfg.StatePath, projectRoot)
	cfg.Metrics.Textfile = pick(flagPaths["metrics-textfile"], cfg.Metrics.Textfile, projectRoot)
	cfg.Workbooks.FE = resolvePathRelativeTo(cfg.Workbooks.FE, projectRoot)
	cfg.Workbooks.CS = resolvePathRelativeTo(cfg.Workbooks.CS, projectRoot)
	cfg.Archive.Root = resolvePathRelativeTo(cfg.Archive.Root, projectRoot)

	expandArchiveEnvVars(&cfg.Archive)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func pick(flagValue, value, root string) string {
	if flagValue != "" {
		return flagValue
	}
	return resolvePathRelativeTo(value, root)
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// expandArchiveEnvVars expands environment variables in credential fields.
func expandArchiveEnvVars(a *archive.Config) {
	a.S3.Bucket = expandEnvVars(a.S3.Bucket)
	a.S3.Endpoint = expandEnvVars(a.S3.Endpoint)
	a.S3.AccessKeyID = expandEnvVars(a.S3.AccessKeyID)
	a.S3.SecretAccessKey = expandEnvVars(a.S3.SecretAccessKey)
	a.S3.SessionToken = expandEnvVars(a.S3.SessionToken)
}
