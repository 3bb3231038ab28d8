package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Kind is the top-level key prefix for a class of archived files.
type Kind string

const (
	KindBatch  Kind = "batches"
	KindLedger Kind = "ledger"
)

var contentTypes = map[string]string{
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".csv":  "text/csv",
	".txt":  "text/plain",
}

// Archiver copies local files into a Store under dated keys.
type Archiver struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewArchiver wraps store.
func NewArchiver(store Store, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Archiver{store: store, logger: logger, now: time.Now}
}

// Store returns the underlying blob store.
func (a *Archiver) Store() Store { return a.store }

// ArchiveFile uploads the file at p as kind/YYYY/MM/DD/<name>. When that
// key is taken the time of day is appended to the name.
func (a *Archiver) ArchiveFile(ctx context.Context, kind Kind, p string, metadata map[string]string) (Info, error) {
	now := a.now().UTC()
	name := filepath.Base(p)
	key := path.Join(string(kind), now.Format("2006/01/02"), name)

	info, err := a.put(ctx, key, p, metadata)
	if errors.Is(err, ErrExists) {
		ext := filepath.Ext(name)
		key = path.Join(string(kind), now.Format("2006/01/02"),
			strings.TrimSuffix(name, ext)+"-"+now.Format("150405.000")+ext)
		info, err = a.put(ctx, key, p, metadata)
	}
	if err != nil {
		return Info{}, err
	}

	a.logger.Debug("archived file",
		slog.String("key", info.Key),
		slog.String("driver", string(a.store.Driver())),
		slog.Int64("size", info.Size))
	return info, nil
}

// SnapshotDir uploads the named files from dir under a single
// kind/<timestamp>/ prefix. Missing files are skipped.
func (a *Archiver) SnapshotDir(ctx context.Context, kind Kind, dir string, names ...string) ([]Info, error) {
	stamp := a.now().UTC().Format("20060102T150405.000Z")
	var infos []Info
	for _, name := range names {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		info, err := a.put(ctx, path.Join(string(kind), stamp, name), p, nil)
		if err != nil {
			return infos, err
		}
		infos = append(infos, info)
	}
	a.logger.Debug("archived snapshot", slog.String("kind", string(kind)), slog.Int("files", len(infos)))
	return infos, nil
}

func (a *Archiver) put(ctx context.Context, key, p string, metadata map[string]string) (Info, error) {
	f, err := os.Open(p)
	if err != nil {
		return Info{}, fmt.Errorf("failed to open %s for archiving: %w", p, err)
	}
	defer func() { _ = f.Close() }()

	info, err := a.store.Put(ctx, key, f, PutOptions{
		ContentType: contentTypes[strings.ToLower(filepath.Ext(p))],
		Metadata:    metadata,
	})
	if err != nil {
		return Info{}, fmt.Errorf("failed to archive %s: %w", p, err)
	}
	return info, nil
}
