package state

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(nil)
	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := store.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store := NewSQLiteStore(nil)

	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)

	if err := store.InitSchema(); err == nil {
		t.Error("expected error from InitSchema before Open")
	}
	if err := store.RecordBatch(&Batch{Name: "x"}); err == nil {
		t.Error("expected error from RecordBatch before Open")
	}
	if _, err := store.IsProcessed("x.xlsx"); err == nil {
		t.Error("expected error from IsProcessed before Open")
	}
}

func TestSQLiteStore_InitSchema(t *testing.T) {
	store := setupTestStore(t)

	for _, table := range []string{"batches", "allocations", "processed_files"} {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		if err != nil {
			t.Errorf("table %s does not exist: %v", table, err)
			continue
		}
		_ = rows.Close()
	}

	version, err := store.GetMigrationVersion()
	if err != nil {
		t.Fatalf("GetMigrationVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("expected migration version 1, got %d", version)
	}

	// Migrating twice is a no-op.
	if err := store.InitSchema(); err != nil {
		t.Fatalf("second InitSchema failed: %v", err)
	}
}

func TestSQLiteStore_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	store := NewSQLiteStore(nil)
	if err := store.Open(path); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := store.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	if err := store.MarkProcessed(ProcessedFile{Filename: "a.xlsx", Rows: 3}); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := NewSQLiteStore(nil)
	if err := reopened.Open(path); err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	ok, err := reopened.IsProcessed("a.xlsx")
	if err != nil {
		t.Fatalf("IsProcessed failed: %v", err)
	}
	if !ok {
		t.Error("expected a.xlsx to survive reopening")
	}
}

// --- Batch lifecycle tests ---

func TestSQLiteStore_BatchLifecycle(t *testing.T) {
	tests := []struct {
		name       string
		status     BatchStatus
		wantStatus BatchStatus
	}{
		{name: "stays queued", wantStatus: BatchStatusQueued},
		{name: "moves to running", status: BatchStatusRunning, wantStatus: BatchStatusRunning},
		{name: "moves to completed", status: BatchStatusCompleted, wantStatus: BatchStatusCompleted},
		{name: "fails", status: BatchStatusFailed, wantStatus: BatchStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestStore(t)

			b := &Batch{
				Name:       "exp-7-1",
				Profile:    "fe",
				Experiment: "exp-7",
				Samples:    12,
				Tracked:    true,
				Workbook:   "runqueue/exp-7-1.xlsx",
			}
			if err := store.RecordBatch(b); err != nil {
				t.Fatalf("RecordBatch failed: %v", err)
			}
			if b.ID == "" {
				t.Fatal("expected RecordBatch to assign an ID")
			}

			if tt.status != "" {
				if err := store.UpdateBatchStatus(b.Name, tt.status); err != nil {
					t.Fatalf("UpdateBatchStatus failed: %v", err)
				}
			}

			got, err := store.GetBatch(b.Name)
			if err != nil {
				t.Fatalf("GetBatch failed: %v", err)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", got.Status, tt.wantStatus)
			}
			if got.ID != b.ID || got.Samples != 12 || !got.Tracked || got.Profile != "fe" {
				t.Errorf("unexpected batch: %+v", got)
			}
			if got.UpdatedAt.Before(got.SubmittedAt) {
				t.Errorf("updated_at %v before submitted_at %v", got.UpdatedAt, got.SubmittedAt)
			}
		})
	}
}

func TestSQLiteStore_DuplicateBatchName(t *testing.T) {
	store := setupTestStore(t)

	if err := store.RecordBatch(&Batch{Name: "dup", Profile: "cs", Samples: 1, Workbook: "a"}); err != nil {
		t.Fatalf("first RecordBatch failed: %v", err)
	}
	if err := store.RecordBatch(&Batch{Name: "dup", Profile: "cs", Samples: 1, Workbook: "b"}); err == nil {
		t.Error("expected error recording a duplicate batch name")
	}
}

func TestSQLiteStore_BatchNotFound(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.GetBatch("missing"); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("GetBatch error = %v, want ErrBatchNotFound", err)
	}
	if err := store.UpdateBatchStatus("missing", BatchStatusRunning); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("UpdateBatchStatus error = %v, want ErrBatchNotFound", err)
	}
}

func TestSQLiteStore_ListBatches(t *testing.T) {
	store := setupTestStore(t)

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, name := range []string{"a", "b", "c"} {
		b := &Batch{Name: name, Profile: "fe", Samples: 1, Workbook: name, SubmittedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := store.RecordBatch(b); err != nil {
			t.Fatalf("RecordBatch %s failed: %v", name, err)
		}
	}

	all, err := store.ListBatches(0)
	if err != nil {
		t.Fatalf("ListBatches failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(all))
	}
	if all[0].Name != "c" || all[2].Name != "a" {
		t.Errorf("expected newest first, got %s..%s", all[0].Name, all[2].Name)
	}
	if !all[0].SubmittedAt.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("submitted_at round trip = %v", all[0].SubmittedAt)
	}

	limited, err := store.ListBatches(2)
	if err != nil {
		t.Fatalf("ListBatches(2) failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 batches, got %d", len(limited))
	}
}

// --- Allocation tests ---

func TestSQLiteStore_Allocations(t *testing.T) {
	store := setupTestStore(t)

	b1 := &Batch{Name: "b1", Profile: "fe", Samples: 2, Tracked: true, Workbook: "b1"}
	b2 := &Batch{Name: "b2", Profile: "fe", Samples: 1, Tracked: true, Workbook: "b2"}
	for _, b := range []*Batch{b1, b2} {
		if err := store.RecordBatch(b); err != nil {
			t.Fatalf("RecordBatch failed: %v", err)
		}
	}

	err := store.RecordAllocations(b1.ID, []Allocation{
		{SampleIndex: 0, Sample: "b1-0", Material: "TEOA", Type: "Subsampling", Channel: 1, ChannelID: "SS1", Amount: 2, Charged: 2},
		{SampleIndex: 0, Sample: "b1-0", Material: "Water", Type: "Liquid", Channel: 1, ChannelID: "L1", Amount: 3, Charged: 3},
		{SampleIndex: 1, Sample: "b1-1", Material: "TEOA", Type: "Subsampling", Channel: 1, ChannelID: "SS1", Amount: 1.5, Charged: 1.5},
	})
	if err != nil {
		t.Fatalf("RecordAllocations failed: %v", err)
	}
	if err := store.RecordAllocations(b2.ID, []Allocation{
		{SampleIndex: 0, Sample: "b2-0", Material: "TEOA", Type: "Subsampling", Channel: 2, ChannelID: "SS2", Amount: 1, Charged: 3},
	}); err != nil {
		t.Fatalf("RecordAllocations failed: %v", err)
	}

	allocs, err := store.AllocationsForBatch(b1.ID)
	if err != nil {
		t.Fatalf("AllocationsForBatch failed: %v", err)
	}
	if len(allocs) != 3 {
		t.Fatalf("expected 3 allocations, got %d", len(allocs))
	}
	if allocs[0].Material != "TEOA" || allocs[2].SampleIndex != 1 {
		t.Errorf("unexpected allocation order: %+v", allocs)
	}

	usage, err := store.MaterialUsage()
	if err != nil {
		t.Fatalf("MaterialUsage failed: %v", err)
	}
	if len(usage) != 2 {
		t.Fatalf("expected 2 usage rows, got %d", len(usage))
	}
	teoa := usage[0]
	if teoa.Material != "TEOA" || teoa.Batches != 2 || teoa.Charged != 6.5 {
		t.Errorf("unexpected TEOA usage: %+v", teoa)
	}
}

func TestSQLiteStore_AllocationsRollback(t *testing.T) {
	store := setupTestStore(t)

	b := &Batch{Name: "b", Profile: "fe", Samples: 1, Workbook: "b"}
	if err := store.RecordBatch(b); err != nil {
		t.Fatalf("RecordBatch failed: %v", err)
	}

	// The second row repeats the primary key and aborts the transaction.
	err := store.RecordAllocations(b.ID, []Allocation{
		{SampleIndex: 0, Sample: "s", Material: "TEOA", Type: "Liquid", Amount: 1, Charged: 1},
		{SampleIndex: 0, Sample: "s", Material: "TEOA", Type: "Liquid", Amount: 1, Charged: 1},
	})
	if err == nil {
		t.Fatal("expected duplicate allocation to fail")
	}

	allocs, err := store.AllocationsForBatch(b.ID)
	if err != nil {
		t.Fatalf("AllocationsForBatch failed: %v", err)
	}
	if len(allocs) != 0 {
		t.Errorf("expected rollback to leave no allocations, got %d", len(allocs))
	}
}

func TestSQLiteStore_AllocationsRequireBatch(t *testing.T) {
	store := setupTestStore(t)

	err := store.RecordAllocations("no-such-batch", []Allocation{
		{SampleIndex: 0, Sample: "s", Material: "TEOA", Type: "Liquid", Amount: 1, Charged: 1},
	})
	if err == nil {
		t.Error("expected foreign key violation")
	}
}

// --- Processed file tests ---

func TestSQLiteStore_ProcessedFiles(t *testing.T) {
	store := setupTestStore(t)

	ok, err := store.IsProcessed("run1.xlsx")
	if err != nil {
		t.Fatalf("IsProcessed failed: %v", err)
	}
	if ok {
		t.Fatal("expected run1.xlsx to be unprocessed")
	}

	if err := store.MarkProcessed(ProcessedFile{Filename: "run1.xlsx", Experiment: "exp", Rows: 10}); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if err := store.MarkProcessed(ProcessedFile{Filename: "run1.xlsx", Experiment: "exp", Rows: 12}); err != nil {
		t.Fatalf("second MarkProcessed failed: %v", err)
	}
	if err := store.MarkProcessed(ProcessedFile{Filename: "run0.xlsx", Rows: 4}); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	ok, err = store.IsProcessed("run1.xlsx")
	if err != nil {
		t.Fatalf("IsProcessed failed: %v", err)
	}
	if !ok {
		t.Error("expected run1.xlsx to be processed")
	}

	files, err := store.ListProcessed()
	if err != nil {
		t.Fatalf("ListProcessed failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Filename != "run0.xlsx" || files[1].Rows != 12 {
		t.Errorf("unexpected processed files: %+v", files)
	}
	if files[1].ProcessedAt.IsZero() {
		t.Error("expected processed_at to be set")
	}
}
