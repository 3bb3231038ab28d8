package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
}

func TestLayout_EnsureAndList(t *testing.T) {
	root := t.TempDir()
	l := New(root)
	require.NoError(t, l.Ensure())

	for _, s := range Stages {
		info, err := os.Stat(l.Dir(s))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	completed := l.Dir(StageCompleted)
	touch(t, filepath.Join(completed, "b2.xlsx"))
	touch(t, filepath.Join(completed, "b1.XLSX"))
	touch(t, filepath.Join(completed, "~$b1.xlsx"))
	touch(t, filepath.Join(completed, "notes.txt"))
	require.NoError(t, os.Mkdir(filepath.Join(completed, "dir.xlsx"), 0o750))

	files, err := l.List(StageCompleted)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "b1.XLSX", files[0].Name)
	assert.Equal(t, "b2.xlsx", files[1].Name)
	assert.Equal(t, StageCompleted, files[1].Stage)
	assert.Equal(t, filepath.Join(completed, "b2.xlsx"), files[1].Path)

	n, err := l.Count(StageCompleted)
	require.NoError(t, err)
	assert.Equal(t, 5, n, "count includes every entry")
}

func TestLayout_MissingStage(t *testing.T) {
	l := New(t.TempDir())

	_, err := l.List(StageRunning)
	assert.ErrorIs(t, err, ErrStageMissing)

	_, err = l.Count(StageRunning)
	assert.ErrorIs(t, err, ErrStageMissing)
}

func TestLayout_DirOverrides(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(t.TempDir(), "robot-done")
	l := &Layout{Root: root, Dirs: map[Stage]string{StageRunqueue: "queue", StageCompleted: abs}}

	assert.Equal(t, filepath.Join(root, "queue"), l.Dir(StageRunqueue))
	assert.Equal(t, filepath.Join(root, "running"), l.Dir(StageRunning))
	assert.Equal(t, abs, l.Dir(StageCompleted))
	assert.Equal(t, filepath.Join(root, "queue", "b7.xlsx"), l.SubmissionPath("b7"))
}

func TestLayout_Locate(t *testing.T) {
	l := New(t.TempDir())
	require.NoError(t, l.Ensure())

	_, ok := l.Locate("b7")
	assert.False(t, ok)

	touch(t, l.SubmissionPath("b7"))
	f, ok := l.Locate("b7")
	require.True(t, ok)
	assert.Equal(t, StageRunqueue, f.Stage)

	touch(t, filepath.Join(l.Dir(StageCompleted), "b7.xlsx"))
	f, ok = l.Locate("b7")
	require.True(t, ok)
	assert.Equal(t, StageCompleted, f.Stage, "later stages win")
}

func TestParseStage(t *testing.T) {
	s, err := ParseStage("Running")
	require.NoError(t, err)
	assert.Equal(t, StageRunning, s)

	_, err = ParseStage("archive")
	assert.Error(t, err)
}
