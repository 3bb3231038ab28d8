// Package workspace maps a batch's lifecycle onto the runqueue, running
// and completed folders of a project root.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Stage is a lifecycle folder.
type Stage string

// Lifecycle stages in order.
const (
	StageRunqueue  Stage = "runqueue"
	StageRunning   Stage = "running"
	StageCompleted Stage = "completed"
)

// Stages lists every stage in lifecycle order.
var Stages = []Stage{StageRunqueue, StageRunning, StageCompleted}

// Extension of robot workbooks.
const Extension = ".xlsx"

// ErrStageMissing is returned when a stage folder does not exist.
var ErrStageMissing = errors.New("stage folder missing")

// Layout resolves stage folders under a project root.
type Layout struct {
	Root string
	// Dirs overrides the folder name of a stage.
	Dirs map[Stage]string
}

// New returns a layout with the default folder names.
func New(root string) *Layout {
	return &Layout{Root: root}
}

// Dir returns the absolute folder of a stage.
func (l *Layout) Dir(s Stage) string {
	name := string(s)
	if d, ok := l.Dirs[s]; ok && d != "" {
		name = d
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(l.Root, name)
}

// Ensure creates every stage folder.
func (l *Layout) Ensure() error {
	for _, s := range Stages {
		if err := os.MkdirAll(l.Dir(s), 0o750); err != nil {
			return fmt.Errorf("failed to create %s folder: %w", s, err)
		}
	}
	return nil
}

// File is a workbook found in a stage folder.
type File struct {
	Stage Stage
	Name  string
	Path  string
}

// List returns the regular .xlsx files of a stage sorted by name.
// Lock files left by spreadsheet editors (~$name.xlsx) are skipped.
func (l *Layout) List(s Stage) ([]File, error) {
	dir := l.Dir(s)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrStageMissing, dir)
		}
		return nil, fmt.Errorf("failed to read %s folder: %w", s, err)
	}

	var files []File
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.EqualFold(filepath.Ext(entry.Name()), Extension) {
			continue
		}
		if strings.HasPrefix(entry.Name(), "~$") {
			continue
		}
		files = append(files, File{Stage: s, Name: entry.Name(), Path: filepath.Join(dir, entry.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Count returns the number of entries in a stage folder, whatever their
// type. The robot may hold running batches as folders.
func (l *Layout) Count(s Stage) (int, error) {
	entries, err := os.ReadDir(l.Dir(s))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrStageMissing, l.Dir(s))
		}
		return 0, fmt.Errorf("failed to read %s folder: %w", s, err)
	}
	return len(entries), nil
}

// SubmissionPath returns where a new batch workbook is written.
func (l *Layout) SubmissionPath(batch string) string {
	return filepath.Join(l.Dir(StageRunqueue), batch+Extension)
}

// Locate returns the stage currently holding a batch workbook.
func (l *Layout) Locate(batch string) (File, bool) {
	name := batch + Extension
	for i := len(Stages) - 1; i >= 0; i-- {
		path := filepath.Join(l.Dir(Stages[i]), name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return File{Stage: Stages[i], Name: name, Path: path}, true
		}
	}
	return File{}, false
}

// ParseStage converts a folder name into a Stage.
func ParseStage(s string) (Stage, error) {
	for _, st := range Stages {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q (want runqueue, running or completed)", s)
}
