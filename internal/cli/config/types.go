// Package config loads formflow CLI configuration.
//
// Values come from built-in defaults, a formflow.yaml file found in the
// project root, FORMFLOW_ environment variables and explicitly set flags,
// in increasing order of precedence.
package config

import (
	"time"

	"github.com/leapstack-labs/formflow/internal/archive"
	"github.com/leapstack-labs/formflow/internal/ledger"
)

// Config holds all CLI configuration options.
type Config struct {
	// ProjectRoot is inferred, never read from configuration.
	ProjectRoot string `koanf:"-"`

	Profile      string `koanf:"profile"`
	Experiment   string `koanf:"experiment"`
	TemplatePath string `koanf:"template"`
	LedgerDir    string `koanf:"ledger_dir"`
	StatePath    string `koanf:"state_path"`
	Verbose      bool   `koanf:"verbose"`
	OutputFormat string `koanf:"output"`

	Stages      StagesConfig      `koanf:"stages"`
	Workbooks   WorkbooksConfig   `koanf:"workbooks"`
	Ledger      ledger.Limits     `koanf:"ledger"`
	Composition CompositionConfig `koanf:"composition"`
	Replica     ReplicaConfig     `koanf:"replica"`
	Chemspeed   ChemspeedConfig   `koanf:"chemspeed"`
	Archive     archive.Config    `koanf:"archive"`
	Metrics     MetricsConfig     `koanf:"metrics"`
	Watch       WatchConfig       `koanf:"watch"`
}

// StagesConfig names the lifecycle folders.
type StagesConfig struct {
	Runqueue  string `koanf:"runqueue"`
	Running   string `koanf:"running"`
	Completed string `koanf:"completed"`
}

// WorkbooksConfig locates the workbook templates.
type WorkbooksConfig struct {
	FE string `koanf:"fe"`
	CS string `koanf:"cs"`
	// RemoveZeros skips zero-amount material blocks in FE rows.
	RemoveZeros bool `koanf:"remove_zeros"`
}

// CompositionConfig classifies sample materials.
type CompositionConfig struct {
	TotalVolume     float64  `koanf:"total_volume"`
	CatalystLimit   float64  `koanf:"catalyst_limit"`
	SubsampleBudget float64  `koanf:"subsample_budget"`
	Liquids         []string `koanf:"liquids"`
	Catalysts       []string `koanf:"catalysts"`
	Scavengers      []string `koanf:"scavengers"`
}

// ReplicaConfig copies one sample's dispenses onto other rows.
type ReplicaConfig struct {
	Enabled bool  `koanf:"enabled"`
	Source  int   `koanf:"source"`
	Targets []int `koanf:"targets"`
}

// ChemspeedConfig holds Chemspeed header values.
type ChemspeedConfig struct {
	Operator     string `koanf:"operator"`
	LightSource  string `koanf:"light_source"`
	Illumination string `koanf:"illumination"`
	OutputRows   int    `koanf:"output_rows"`
}

// MetricsConfig controls the Prometheus textfile.
type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

// WatchConfig controls the completed folder watcher.
type WatchConfig struct {
	Debounce time.Duration `koanf:"debounce"`
}

// Default configuration values.
const (
	ConfigFileName    = "formflow.yaml"
	DefaultProfile    = "fe"
	DefaultStateFile  = ".formflow/state.db"
	DefaultOutput     = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultOutputRows = 48
	DefaultDebounce   = 100 * time.Millisecond
)
