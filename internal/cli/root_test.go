package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/formflow/internal/cli/config"
	"github.com/leapstack-labs/formflow/internal/cli/output"
	"github.com/leapstack-labs/formflow/internal/ledger"
)

const samplesYAML = `samples:
  - {P10-HS: 5, AscorbicAcid: 1}
  - {P10-HS: 5, AscorbicAcid: 1}
`

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	config.ResetConfig()

	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	_, err := execute(t, "init", dir)
	require.NoError(t, err)
	return dir
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	want := []string{"version", "init", "submit", "completed", "running", "status", "ledger", "archive", "watch", "completion"}
	for _, name := range want {
		found, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, found.Name())
	}

	for _, flag := range []string{"config", "project-dir", "profile", "experiment", "template", "ledger-dir", "state", "archive", "metrics-textfile", "verbose", "output"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestRoot_InvalidOutput(t *testing.T) {
	dir := newProject(t)
	_, err := execute(t, "status", "--project-dir", dir, "-o", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}

func TestRoot_MissingProject(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	_, err := execute(t, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "formflow init")
}

func TestRoot_SubmitStatusLedgerFlow(t *testing.T) {
	dir := newProject(t)
	samples := filepath.Join(dir, "samples.yaml")
	require.NoError(t, os.WriteFile(samples, []byte(samplesYAML), 0600))

	out, err := execute(t, "submit", "B1", samples, "--project-dir", dir, "--archive", "-o", "json")
	require.NoError(t, err)

	var submitted output.SubmitOutput
	require.NoError(t, json.Unmarshal([]byte(out), &submitted))
	assert.Equal(t, "B1", submitted.Batch)
	assert.Equal(t, "fe", submitted.Profile)
	assert.True(t, submitted.Tracked)
	assert.Len(t, submitted.Allocations, 6)
	assert.Len(t, submitted.Archived, 3)
	assert.FileExists(t, filepath.Join(dir, "runqueue", "B1.xlsx"))

	_, err = execute(t, "submit", "B1", samples, "--project-dir", dir)
	require.Error(t, err, "batch names are unique")

	out, err = execute(t, "status", "--project-dir", dir, "-o", "json")
	require.NoError(t, err)
	var status output.StatusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, 1, status.Stages["runqueue"])
	require.Len(t, status.Batches, 1)
	assert.Equal(t, "runqueue", status.Batches[0].Stage)

	out, err = execute(t, "ledger", "show", "--project-dir", dir, "-o", "json")
	require.NoError(t, err)
	var shown output.LedgerOutput
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	amounts := map[string]float64{}
	for _, lv := range shown.Levels {
		amounts[lv.Material] = lv.Amount
	}
	assert.InDelta(t, 2, amounts["AscorbicAcid"], 1e-9)
	assert.InDelta(t, 8, amounts["water"], 1e-9)
	assert.Zero(t, shown.Service)

	out, err = execute(t, "ledger", "history", "--project-dir", dir, "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"material": "AscorbicAcid"`)

	_, err = execute(t, "ledger", "refill", "AscorbicAcid", "1", "--project-dir", dir)
	require.NoError(t, err)
	l, err := ledger.Load(filepath.Join(dir, ledger.DefaultDir))
	require.NoError(t, err)
	m, ok := l.Get("AscorbicAcid")
	require.True(t, ok)
	_, set := m.Amount(1)
	assert.False(t, set)

	out, err = execute(t, "archive", "ls", "batches/", "--project-dir", dir, "--archive", "-o", "json")
	require.NoError(t, err)
	var objects []output.ArchiveObject
	require.NoError(t, json.Unmarshal([]byte(out), &objects))
	require.Len(t, objects, 1)
	assert.Contains(t, objects[0].Key, "B1.xlsx")

	_, err = execute(t, "archive", "ls", "--project-dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive is disabled")
}

func TestRoot_DryRunWritesNothing(t *testing.T) {
	dir := newProject(t)
	samples := filepath.Join(dir, "samples.yaml")
	require.NoError(t, os.WriteFile(samples, []byte(samplesYAML), 0600))

	out, err := execute(t, "submit", "B2", samples, "--dry-run", "--project-dir", dir, "-o", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "## Batch B2 (dry run)")
	assert.Contains(t, out, "_Dry run: nothing was written_")
	assert.NoFileExists(t, filepath.Join(dir, "runqueue", "B2.xlsx"))
}

func TestRoot_LedgerCheckFailsWhenServiceNeeded(t *testing.T) {
	dir := newProject(t)
	list := "Material,type,id1,amount1\nAscorbicAcid,liquid,L1,990\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ledger.DefaultDir, ledger.ListFile), []byte(list), 0600))

	out, err := execute(t, "ledger", "check", "--project-dir", dir, "-o", "markdown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 channel(s) need service")
	assert.Contains(t, out, "service")
}

func TestRoot_CompletedNothingNew(t *testing.T) {
	dir := newProject(t)
	out, err := execute(t, "completed", "--project-dir", dir, "-o", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "No new completed workbooks")
}

func TestCompletionCommand(t *testing.T) {
	out, err := execute(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "formflow")
}
