// Package coordinator drives a project's batch lifecycle: it reads
// completed and in-flight workbooks, and writes new submissions to the run
// queue while charging the material ledger.
package coordinator

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/leapstack-labs/formflow/internal/archive"
	"github.com/leapstack-labs/formflow/internal/ledger"
	"github.com/leapstack-labs/formflow/internal/metrics"
	"github.com/leapstack-labs/formflow/internal/state"
	"github.com/leapstack-labs/formflow/internal/template"
	"github.com/leapstack-labs/formflow/internal/workbook"
	"github.com/leapstack-labs/formflow/internal/workspace"
)

// Profile selects the robot a project submits to.
type Profile string

const (
	// ProfileFE is the ledger-tracked Formulation Engine layout.
	ProfileFE Profile = "fe"
	// ProfileCS is the Chemspeed layout.
	ProfileCS Profile = "cs"
)

// ParseProfile validates a profile name.
func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case ProfileFE, ProfileCS:
		return Profile(s), nil
	}
	return "", fmt.Errorf("unknown profile %q (want fe or cs)", s)
}

// ErrBatchExists is returned when a batch name is already in a stage
// folder.
var ErrBatchExists = errors.New("batch already exists")

// ErrMiniUnsupported is returned for a mini batch under the cs profile.
var ErrMiniUnsupported = errors.New("mini batches are only supported by the fe profile")

// Replica copies one sample's dispenses onto other sample rows. The source
// is charged to the ledger once per copy and the targets are not charged.
type Replica struct {
	Enabled bool
	Source  int
	Targets []int
}

// Multiplier returns the ledger charge factor of the source sample.
func (r Replica) Multiplier() float64 {
	return float64(1 + len(r.Targets))
}

// activeFor reports whether a batch of n samples includes the source.
func (r Replica) activeFor(n int) bool {
	return r.Enabled && r.Source >= 0 && r.Source < n
}

func (r Replica) isTarget(i int) bool {
	for _, t := range r.Targets {
		if t == i {
			return true
		}
	}
	return false
}

// Chemspeed holds the values written to a Chemspeed header row.
type Chemspeed struct {
	Operator     string
	LightSource  string
	Illumination string
	// OutputRows limits rows read from completed workbooks.
	OutputRows int
}

// Config holds coordinator configuration.
type Config struct {
	// Root is the project directory.
	Root string
	// Profile selects the FE or Chemspeed layout.
	Profile Profile
	// StageDirs overrides the runqueue, running and completed folder names.
	StageDirs map[workspace.Stage]string
	// TemplatePath is the batch.template file.
	TemplatePath string
	// FETemplate and CSTemplate are the workbook templates.
	FETemplate string
	CSTemplate string
	// LedgerDir holds material_list.csv and waste.txt.
	LedgerDir string
	// StatePath is the SQLite state database; ":memory:" keeps it in memory.
	StatePath string

	Limits      ledger.Limits
	RemoveZeros bool

	// TotalVolume is the vial volume that water tops samples up to.
	TotalVolume float64
	// CatalystLimit is the catalyst mass above which a sample is flagged.
	CatalystLimit float64
	// SubsampleBudget is the subsample volume a sample may draw.
	SubsampleBudget float64

	Liquids    []string
	Catalysts  []string
	Scavengers []string

	Replica   Replica
	Chemspeed Chemspeed

	// Archive receives copies of submitted workbooks and ledger snapshots.
	Archive *archive.Archiver
	// Metrics are refreshed after every operation and, when MetricsPath
	// is set, written there.
	Metrics     *metrics.Metrics
	MetricsPath string

	// Debounce delays processing after a completed folder change.
	Debounce time.Duration

	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Coordinator ties a project's template, ledger, folders and state store
// together.
type Coordinator struct {
	cfg      Config
	logger   *slog.Logger
	layout   *workspace.Layout
	template *template.Batch
	store    state.Store
	now      func() time.Time
}

// New loads the project template and opens the state store.
func New(cfg Config) (*Coordinator, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if cfg.Profile == "" {
		cfg.Profile = ProfileFE
	}
	if cfg.TemplatePath == "" {
		cfg.TemplatePath = filepath.Join(cfg.Root, template.FileName)
	}
	if cfg.FETemplate == "" {
		cfg.FETemplate = filepath.Join(cfg.Root, workbook.FETemplateFile)
	}
	if cfg.CSTemplate == "" {
		cfg.CSTemplate = filepath.Join(cfg.Root, workbook.CSTemplateFile)
	}
	if cfg.LedgerDir == "" {
		cfg.LedgerDir = filepath.Join(cfg.Root, ledger.DefaultDir)
	}
	if cfg.Limits == (ledger.Limits{}) {
		cfg.Limits = ledger.DefaultLimits()
	}
	if cfg.TotalVolume == 0 {
		cfg.TotalVolume = 5
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = 100 * time.Millisecond
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger.Debug("initializing coordinator",
		"root", cfg.Root,
		"profile", cfg.Profile,
		"template", cfg.TemplatePath)

	tmpl, err := template.LoadBatch(cfg.TemplatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch template: %w", err)
	}

	statePath := cfg.StatePath
	if statePath == "" {
		statePath = ":memory:"
	}
	store := state.NewSQLiteStore(logger)
	if err := store.Open(statePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}

	layout := workspace.New(cfg.Root)
	layout.Dirs = cfg.StageDirs

	return &Coordinator{
		cfg:      cfg,
		logger:   logger,
		layout:   layout,
		template: tmpl,
		store:    store,
		now:      now,
	}, nil
}

// Close releases the state store.
func (c *Coordinator) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// Profile returns the configured profile.
func (c *Coordinator) Profile() Profile { return c.cfg.Profile }

// Layout returns the stage folder layout.
func (c *Coordinator) Layout() *workspace.Layout { return c.layout }

// Template returns the parsed batch template.
func (c *Coordinator) Template() *template.Batch { return c.template }

// Store returns the state store.
func (c *Coordinator) Store() state.Store { return c.store }

// Limits returns the ledger limits in force.
func (c *Coordinator) Limits() ledger.Limits { return c.cfg.Limits }

// Archive returns the archiver, or nil when archiving is off.
func (c *Coordinator) Archive() *archive.Archiver { return c.cfg.Archive }

// LoadLedger reads the project ledger.
func (c *Coordinator) LoadLedger() (*ledger.Ledger, error) {
	return ledger.Load(c.cfg.LedgerDir)
}

// SaveLedger writes l back to the project ledger and refreshes metrics.
func (c *Coordinator) SaveLedger(l *ledger.Ledger) error {
	if err := l.Save(c.cfg.LedgerDir); err != nil {
		return err
	}
	c.publishLevels(l)
	c.flushMetrics()
	return nil
}
