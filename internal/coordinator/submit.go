package coordinator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/leapstack-labs/formflow/internal/archive"
	"github.com/leapstack-labs/formflow/internal/ledger"
	"github.com/leapstack-labs/formflow/internal/state"
	"github.com/leapstack-labs/formflow/internal/template"
	"github.com/leapstack-labs/formflow/internal/workbook"
	"github.com/leapstack-labs/formflow/internal/workspace"
)

// Template header parameters read during submission.
const (
	ParamObjective      = "objective"
	ParamO2Level        = "o2_level"
	ParamCapVials       = "cap_vials"
	ParamLiquidDisp     = "liquid_dispenser"
	ParamSolidDisp      = "solid_dispenser"
	ParamSubsampleDisp  = "subsampling_dispenser"
	ParamOrbitalSpeed   = "orbital_speed_rpm"
	ParamOrbitalID      = "orbital_id"
	ParamIllumination   = "illumination_time_secs"
	ParamMeasurement    = "measurement_method"
	paramHazardTemplate = "hazard_%d"
)

// SubmitOptions control a submission.
type SubmitOptions struct {
	// DryRun allocates and validates without writing anything.
	DryRun bool
}

// SampleAllocation is a ledger charge made for one sample.
type SampleAllocation struct {
	Index  int
	Sample string
	ledger.Allocation
}

// SubmitResult describes a submitted batch.
type SubmitResult struct {
	Batch       string
	Profile     Profile
	Path        string
	Samples     int
	Tracked     bool
	DryRun      bool
	Allocations []SampleAllocation
	// Levels are the ledger levels after the batch, tracked batches only.
	Levels   []ledger.Level
	Warnings []string
	Archived []archive.Info
}

func (r *SubmitResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// SubmitBatch writes a ledger-tracked FE batch to the run queue. Every
// dispense is charged to the ledger; an allocation failure aborts the
// batch with nothing written.
func (c *Coordinator) SubmitBatch(ctx context.Context, name string, samples []template.Sample, opts SubmitOptions) (*SubmitResult, error) {
	return c.submitFE(ctx, name, samples, true, opts)
}

// SubmitMiniBatch writes an FE batch that does not touch the ledger. Each
// material block names the material instead of its channel.
func (c *Coordinator) SubmitMiniBatch(ctx context.Context, name string, samples []template.Sample, opts SubmitOptions) (*SubmitResult, error) {
	return c.submitFE(ctx, name, samples, false, opts)
}

// Submit dispatches to the submission of the configured profile.
func (c *Coordinator) Submit(ctx context.Context, name string, samples []template.Sample, tracked bool, opts SubmitOptions) (*SubmitResult, error) {
	if c.cfg.Profile == ProfileCS {
		if !tracked {
			return nil, ErrMiniUnsupported
		}
		return c.SubmitCSBatch(ctx, name, samples, opts)
	}
	return c.submitFE(ctx, name, samples, tracked, opts)
}

func (c *Coordinator) submitFE(ctx context.Context, name string, samples []template.Sample, tracked bool, opts SubmitOptions) (*SubmitResult, error) {
	path, err := c.prepare(name, samples)
	if err != nil {
		return nil, err
	}
	params := c.template.Params
	if err := requireParams(params, ParamObjective, ParamO2Level, ParamCapVials,
		"hazard_1", "hazard_2", "hazard_3", ParamLiquidDisp, ParamSolidDisp,
		ParamOrbitalSpeed, ParamOrbitalID, ParamIllumination); err != nil {
		return nil, err
	}

	res := &SubmitResult{
		Batch:   name,
		Profile: ProfileFE,
		Path:    path,
		Samples: len(samples),
		Tracked: tracked,
		DryRun:  opts.DryRun,
	}

	c.logger.Info("submitting batch", "batch", name, "samples", len(samples), "tracked", tracked, "dry_run", opts.DryRun)

	var alloc *ledger.Allocator
	if tracked {
		l, err := c.LoadLedger()
		if err != nil {
			return nil, err
		}
		alloc = ledger.NewAllocator(l, c.cfg.Limits)
	}

	wb, err := workbook.OpenFE(c.cfg.FETemplate, c.cfg.RemoveZeros)
	if err != nil {
		return nil, err
	}
	defer func() { _ = wb.Close() }()

	if err := wb.SetDetails(workbook.Details{
		BatchName: name,
		Objective: params.Value(ParamObjective),
		O2Level:   params.Value(ParamO2Level),
		CapVials:  params.Value(ParamCapVials),
	}); err != nil {
		return nil, err
	}

	var hazards [3]string
	for h := range hazards {
		hazards[h] = params.Value(fmt.Sprintf(paramHazardTemplate, h+1))
	}
	trailer := []string{
		params.Value(ParamOrbitalSpeed),
		params.Value(ParamOrbitalID),
		params.Value(ParamIllumination),
		params.Value(ParamOrbitalID),
	}
	if v, ok := params.Get(ParamMeasurement); ok {
		trailer = append(trailer, v)
	}

	prefix := name
	if tracked {
		prefix = name + "-"
	}
	replica := c.cfg.Replica
	replicaActive := tracked && replica.activeFor(len(samples))
	replicaEnd := 0

	for i, sample := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		water := c.balance(res, i, sample)
		line, err := c.template.Render(sample, template.Vars{Index: i, BatchName: prefix, Water: water})
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}

		charge := tracked && !(replicaActive && replica.isTarget(i))
		multiplier := 1.0
		if replicaActive && i == replica.Source {
			multiplier = replica.Multiplier()
		}

		row := workbook.FERow{Name: line.Name, Hazards: hazards, Trailer: trailer}
		for n, entry := range line.Entries {
			var t workbook.Triplet
			switch {
			case charge:
				a, err := alloc.Allocate(entry.Material, entry.Amount, multiplier)
				if err != nil {
					return nil, fmt.Errorf("sample %d: %w", i, err)
				}
				t = workbook.Triplet{ID: a.ChannelID, Amount: a.Amount, Dispenser: dispenserFor(params, a.Type)}
				res.Allocations = append(res.Allocations, SampleAllocation{Index: i, Sample: line.Name, Allocation: a})
			case tracked:
				a, err := alloc.Assign(entry.Material, entry.Amount)
				if err != nil {
					return nil, fmt.Errorf("sample %d: %w", i, err)
				}
				t = workbook.Triplet{Amount: a.Amount, Dispenser: dispenserFor(params, a.Type)}
			default:
				// Water is always the last entry and goes through the
				// liquid dispenser.
				disp := params.Value(ParamSolidDisp)
				if c.isLiquid(entry.Material) || n == len(line.Entries)-1 {
					disp = params.Value(ParamLiquidDisp)
				}
				t = workbook.Triplet{ID: entry.Material, Amount: entry.Amount, Dispenser: disp}
			}
			row.Triplets = append(row.Triplets, t)
		}

		if charge {
			if err := alloc.FinishLine(); err != nil {
				return nil, fmt.Errorf("sample %d: %w", i, err)
			}
		}

		end, err := wb.WriteRow(i, row)
		if err != nil {
			return nil, err
		}
		if replicaActive && i == replica.Source {
			replicaEnd = end
		}
	}

	if replicaActive {
		for _, t := range replica.Targets {
			if t < 0 || t >= len(samples) || t == replica.Source {
				continue
			}
			if err := wb.CopyTriplets(replica.Source, t, replicaEnd); err != nil {
				return nil, err
			}
		}
		c.logger.Debug("copied replica rows", "source", replica.Source, "targets", replica.Targets)
	}

	if tracked {
		res.Levels = ledger.Levels(alloc.Ledger(), c.cfg.Limits)
		c.warnLevels(res)
	}

	if opts.DryRun {
		return res, nil
	}

	if err := wb.SaveAs(path); err != nil {
		return nil, err
	}
	if tracked {
		if err := alloc.Ledger().Save(c.cfg.LedgerDir); err != nil {
			return nil, fmt.Errorf("batch %s written but ledger not saved: %w", name, err)
		}
	}

	c.finish(ctx, res, alloc)
	return res, nil
}

// SubmitCSBatch writes a Chemspeed batch to the run queue.
func (c *Coordinator) SubmitCSBatch(ctx context.Context, name string, samples []template.Sample, opts SubmitOptions) (*SubmitResult, error) {
	path, err := c.prepare(name, samples)
	if err != nil {
		return nil, err
	}

	res := &SubmitResult{
		Batch:   name,
		Profile: ProfileCS,
		Path:    path,
		Samples: len(samples),
		DryRun:  opts.DryRun,
	}

	c.logger.Info("submitting chemspeed batch", "batch", name, "samples", len(samples), "dry_run", opts.DryRun)

	wb, err := workbook.OpenCS(c.cfg.CSTemplate)
	if err != nil {
		return nil, err
	}
	defer func() { _ = wb.Close() }()

	cs := c.cfg.Chemspeed
	if err := wb.SetHeader(workbook.CSHeader{
		Operator:     cs.Operator,
		BatchName:    name,
		Date:         c.now(),
		LightSource:  cs.LightSource,
		Illumination: cs.Illumination,
	}); err != nil {
		return nil, err
	}

	for i, sample := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		water := c.balance(res, i, sample)
		line, err := c.template.Render(sample, template.Vars{Index: i, BatchName: name, Water: water})
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}

		row := workbook.CSRow{Name: line.Name}
		if last, ok := line.Last(); ok {
			row.Water = last.Amount
			for _, e := range line.Entries[:len(line.Entries)-1] {
				row.Materials = append(row.Materials, workbook.Amount{Material: e.Material, Value: e.Amount})
			}
		}
		if err := wb.WriteRow(i, row); err != nil {
			return nil, err
		}
	}

	if opts.DryRun {
		return res, nil
	}
	if err := wb.SaveAs(path); err != nil {
		return nil, err
	}

	c.finish(ctx, res, nil)
	return res, nil
}

// prepare validates a submission and returns its workbook path.
func (c *Coordinator) prepare(name string, samples []template.Sample) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid batch name %q", name)
	}
	if len(samples) == 0 {
		return "", fmt.Errorf("batch %s has no samples", name)
	}
	if f, ok := c.layout.Locate(name); ok {
		return "", fmt.Errorf("%w: %s is in %s", ErrBatchExists, name, f.Stage)
	}
	// Workbooks leave the stage folders once the robot is done with them.
	switch _, err := c.store.GetBatch(name); {
	case err == nil:
		return "", fmt.Errorf("%w: %s is in the audit store", ErrBatchExists, name)
	case !errors.Is(err, state.ErrBatchNotFound):
		return "", err
	}

	known := make(map[string]bool)
	for _, p := range c.template.Placeholders() {
		known[p] = true
	}
	for _, v := range []string{template.VarIndex, template.VarSampleNumber, template.VarBatchName, template.VarWater} {
		delete(known, v)
	}
	for i, s := range samples {
		for mat := range s {
			if !known[mat] {
				return "", fmt.Errorf("sample %d: material %q is not in %s", i, mat, c.template.File)
			}
		}
	}

	return c.layout.SubmissionPath(name), nil
}

// balance returns the water that tops a sample up to the total volume and
// records catalyst and subsample budget warnings.
func (c *Coordinator) balance(res *SubmitResult, i int, s template.Sample) float64 {
	water := c.cfg.TotalVolume
	catalyst := 0.0
	subsample := c.cfg.SubsampleBudget

	for _, mat := range slices.Sorted(maps.Keys(s)) {
		amount := s[mat]
		if slices.Contains(c.cfg.Liquids, mat) {
			water -= amount
		}
		if slices.Contains(c.cfg.Catalysts, mat) {
			catalyst += amount
		}
		if slices.Contains(c.cfg.Scavengers, mat) {
			subsample -= amount
		}
	}

	if water < 0 {
		res.warn("sample %d: liquids exceed the total volume of %.4f by %.4f, water set to 0", i, c.cfg.TotalVolume, -water)
		c.logger.Warn("liquids exceed total volume", "sample", i, "excess", -water)
		water = 0
	}
	if c.cfg.CatalystLimit > 0 && catalyst > c.cfg.CatalystLimit {
		res.warn("sample %d: %.4f catalyst is over the %.4f limit", i, catalyst, c.cfg.CatalystLimit)
		c.logger.Warn("catalyst over limit", "sample", i, "catalyst", catalyst)
	}
	if len(c.cfg.Scavengers) > 0 && subsample < 0 {
		res.warn("sample %d: subsamples exceed the %.4f budget by %.4f", i, c.cfg.SubsampleBudget, -subsample)
		c.logger.Warn("subsample budget exceeded", "sample", i, "excess", -subsample)
	}
	return water
}

func (c *Coordinator) warnLevels(res *SubmitResult) {
	for _, lv := range res.Levels {
		if lv.Capacity > 0 && lv.Threshold > 0 && lv.Amount >= 0.9*lv.Threshold && !lv.NeedsService() {
			res.warn("%s channel %d (%s) is at %.0f%% of capacity", lv.Material, lv.Channel, lv.ID, 100*lv.Fraction())
		}
	}
}

func (c *Coordinator) isLiquid(material string) bool {
	return slices.Contains(c.cfg.Liquids, material)
}

// finish records a written batch, archives it and refreshes metrics.
// Failures past this point are warnings: the workbook is already queued.
func (c *Coordinator) finish(ctx context.Context, res *SubmitResult, alloc *ledger.Allocator) {
	b := &state.Batch{
		Name:        res.Batch,
		Profile:     string(res.Profile),
		Experiment:  res.Batch,
		Samples:     res.Samples,
		Tracked:     res.Tracked,
		Status:      state.BatchStatusQueued,
		Workbook:    res.Path,
		SubmittedAt: c.now(),
	}
	if err := c.store.RecordBatch(b); err != nil {
		res.warn("batch not recorded: %v", err)
		c.logger.Warn("failed to record batch", "batch", res.Batch, "error", err)
	} else if len(res.Allocations) > 0 {
		rows := make([]state.Allocation, 0, len(res.Allocations))
		for _, a := range res.Allocations {
			rows = append(rows, state.Allocation{
				SampleIndex: a.Index,
				Sample:      a.Sample,
				Material:    a.Material,
				Type:        string(a.Type),
				Channel:     a.Channel,
				ChannelID:   a.ChannelID,
				Amount:      a.Amount,
				Charged:     a.Charged,
			})
		}
		if err := c.store.RecordAllocations(b.ID, rows); err != nil {
			res.warn("allocations not recorded: %v", err)
			c.logger.Warn("failed to record allocations", "batch", res.Batch, "error", err)
		}
	}

	if c.cfg.Archive != nil {
		md := map[string]string{"profile": string(res.Profile), "samples": fmt.Sprint(res.Samples)}
		info, err := c.cfg.Archive.ArchiveFile(ctx, archive.KindBatch, res.Path, md)
		if err != nil {
			res.warn("workbook not archived: %v", err)
			c.logger.Warn("failed to archive workbook", "batch", res.Batch, "error", err)
		} else {
			res.Archived = append(res.Archived, info)
		}
		if alloc != nil {
			infos, err := c.cfg.Archive.SnapshotDir(ctx, archive.KindLedger, c.cfg.LedgerDir, ledger.ListFile, ledger.WasteFile)
			if err != nil {
				res.warn("ledger not archived: %v", err)
				c.logger.Warn("failed to archive ledger", "error", err)
			}
			res.Archived = append(res.Archived, infos...)
		}
	}

	if m := c.cfg.Metrics; m != nil {
		m.BatchSubmitted(string(res.Profile), res.Samples)
		allocs := make([]ledger.Allocation, 0, len(res.Allocations))
		for _, a := range res.Allocations {
			allocs = append(allocs, a.Allocation)
		}
		m.ObserveAllocations(allocs)
		if alloc != nil {
			c.publishLevels(alloc.Ledger())
		}
		c.publishStages()
		c.flushMetrics()
	}

	c.logger.Info("batch submitted", "batch", res.Batch, "path", res.Path, "warnings", len(res.Warnings))
}

func requireParams(p template.Params, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if _, ok := p.Get(k); !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("batch template is missing parameters: %s", strings.Join(missing, ", "))
	}
	return nil
}

func dispenserFor(p template.Params, t ledger.MaterialType) string {
	switch t {
	case ledger.TypeLiquid:
		return p.Value(ParamLiquidDisp)
	case ledger.TypeSolid:
		return p.Value(ParamSolidDisp)
	case ledger.TypeSubsampling:
		return p.Value(ParamSubsampleDisp)
	}
	return ""
}

// Stage returns the folder a batch workbook is in.
func (c *Coordinator) Stage(batch string) (workspace.Stage, bool) {
	f, ok := c.layout.Locate(batch)
	return f.Stage, ok
}
