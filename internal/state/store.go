// Package state records submitted batches, their ledger charges and the
// completed workbooks already processed, in a SQLite database.
package state

import "time"

// BatchStatus is the lifecycle state of a submitted batch.
type BatchStatus string

// Batch statuses follow the runqueue, running and completed folders.
const (
	BatchStatusQueued    BatchStatus = "queued"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
)

// Batch is a submitted batch workbook.
type Batch struct {
	ID          string
	Name        string
	Profile     string
	Experiment  string
	Samples     int
	Tracked     bool
	Status      BatchStatus
	Workbook    string
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// Allocation is one ledger charge made while submitting a batch.
type Allocation struct {
	BatchID     string
	SampleIndex int
	Sample      string
	Material    string
	Type        string
	Channel     int
	ChannelID   string
	Amount      float64
	Charged     float64
}

// MaterialUsage is the total charged per material across batches.
type MaterialUsage struct {
	Material string
	Type     string
	Batches  int
	Charged  float64
}

// ProcessedFile is a completed workbook that has been read.
type ProcessedFile struct {
	Filename    string
	Experiment  string
	Rows        int
	ProcessedAt time.Time
}

// Store is the persistence interface used by the coordinator.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	RecordBatch(b *Batch) error
	GetBatch(name string) (*Batch, error)
	ListBatches(limit int) ([]*Batch, error)
	UpdateBatchStatus(name string, status BatchStatus) error

	RecordAllocations(batchID string, allocs []Allocation) error
	AllocationsForBatch(batchID string) ([]Allocation, error)
	MaterialUsage() ([]MaterialUsage, error)

	MarkProcessed(f ProcessedFile) error
	IsProcessed(filename string) (bool, error)
	ListProcessed() ([]ProcessedFile, error)
}
