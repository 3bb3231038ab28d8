package output

// SubmitOutput is the JSON form of a submitted batch.
type SubmitOutput struct {
	Batch       string           `json:"batch"`
	Profile     string           `json:"profile"`
	Path        string           `json:"path"`
	Samples     int              `json:"samples"`
	Tracked     bool             `json:"tracked"`
	DryRun      bool             `json:"dry_run"`
	Allocations []AllocationInfo `json:"allocations,omitempty"`
	Levels      []LevelInfo      `json:"levels,omitempty"`
	Warnings    []string         `json:"warnings"`
	Archived    []string         `json:"archived,omitempty"`
}

// AllocationInfo is one ledger charge.
type AllocationInfo struct {
	Sample    string  `json:"sample"`
	Index     int     `json:"index"`
	Material  string  `json:"material"`
	Type      string  `json:"type"`
	Channel   int     `json:"channel"`
	ChannelID string  `json:"channel_id"`
	Amount    float64 `json:"amount"`
	Charged   float64 `json:"charged"`
}

// LevelInfo is the fill state of one ledger channel.
type LevelInfo struct {
	Material     string  `json:"material"`
	Type         string  `json:"type"`
	Channel      int     `json:"channel"`
	ID           string  `json:"id"`
	Amount       float64 `json:"amount"`
	Capacity     float64 `json:"capacity,omitempty"`
	Threshold    float64 `json:"threshold,omitempty"`
	Fraction     float64 `json:"fraction,omitempty"`
	NeedsService bool    `json:"needs_service"`
}

// LedgerOutput is the JSON form of the ledger.
type LedgerOutput struct {
	Levels  []LevelInfo `json:"levels"`
	InWash  []string    `json:"in_wash"`
	Service int         `json:"needs_service"`
}

// UsageInfo is the total charged for a material across batches.
type UsageInfo struct {
	Material string  `json:"material"`
	Type     string  `json:"type"`
	Batches  int     `json:"batches"`
	Charged  float64 `json:"charged"`
}

// StatusOutput is the JSON form of project status.
type StatusOutput struct {
	Root    string         `json:"root"`
	Profile string         `json:"profile"`
	Stages  map[string]int `json:"stages"`
	Batches []BatchInfo    `json:"batches"`
}

// BatchInfo is a recorded batch.
type BatchInfo struct {
	Name        string `json:"name"`
	Profile     string `json:"profile"`
	Samples     int    `json:"samples"`
	Tracked     bool   `json:"tracked"`
	Status      string `json:"status"`
	Stage       string `json:"stage,omitempty"`
	SubmittedAt string `json:"submitted_at"`
}

// FrameOutput is a workbook read into columns and rows.
type FrameOutput struct {
	File       string     `json:"file"`
	Stage      string     `json:"stage,omitempty"`
	Experiment string     `json:"experiment,omitempty"`
	Columns    []string   `json:"columns"`
	Rows       [][]string `json:"rows"`
}

// ArchiveObject is an archived artifact.
type ArchiveObject struct {
	Key         string            `json:"key"`
	Size        int64             `json:"size"`
	ContentType string            `json:"content_type,omitempty"`
	ETag        string            `json:"etag,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	UpdatedAt   string            `json:"updated_at,omitempty"`
	URL         string            `json:"url,omitempty"`
}
