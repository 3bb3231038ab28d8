// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/formflow/internal/cli/output"
	"github.com/leapstack-labs/formflow/internal/ledger"
	"github.com/leapstack-labs/formflow/internal/template"
	"github.com/leapstack-labs/formflow/internal/workbook"
	"github.com/leapstack-labs/formflow/internal/workspace"
)

// BatchTemplate is a minimal FE batch template over P10-HS, AscorbicAcid
// and water.
const BatchTemplate = `objective,maximise hydrogen evolution
o2_level,0.1
cap_vials,TRUE
hazard_1,Flammable
hazard_2,Corrosive
hazard_3,None
liquid_dispenser,Liquid Dispense
solid_dispenser,Solid Dispense
subsampling_dispenser,Subsample
orbital_speed_rpm,500
orbital_id,Shaker1
illumination_time_secs,14400
SampleIndex,SampleNumber,Name,P10-HS,AscorbicAcid,water
${idx},${sample_number},${batch_name}${sample_number},${P10-HS},${AscorbicAcid},${water}
`

// MaterialList is an empty ledger for BatchTemplate's materials.
const MaterialList = `Material,type,id1,amount1
P10-HS,solid,S1,
AscorbicAcid,liquid,L1,
water,liquid,L2,
`

// ProjectConfig is a formflow.yaml classifying BatchTemplate's materials.
const ProjectConfig = `profile: fe
composition:
  liquids: [AscorbicAcid]
  catalysts: [P10-HS]
`

// Samples is a two-sample samples file for BatchTemplate.
const Samples = `- {P10-HS: 5, AscorbicAcid: 1}
- {P10-HS: 5, AscorbicAcid: 1}
`

// SetupTestProject creates a temporary project with a template, ledger,
// workbook templates and stage folders.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	files := map[string]string{
		"formflow.yaml":     ProjectConfig,
		template.FileName:   BatchTemplate,
		"samples.yaml":      Samples,
		filepath.Join(ledger.DefaultDir, ledger.ListFile): MaterialList,
	}
	for name, content := range files {
		path := filepath.Join(tmpDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			t.Fatalf("failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}

	if err := workbook.WriteFETemplate(filepath.Join(tmpDir, workbook.FETemplateFile), 3); err != nil {
		t.Fatalf("failed to create FE template: %v", err)
	}
	if err := workbook.WriteCSTemplate(filepath.Join(tmpDir, workbook.CSTemplateFile)); err != nil {
		t.Fatalf("failed to create CS template: %v", err)
	}
	if err := workspace.New(tmpDir).Ensure(); err != nil {
		t.Fatalf("failed to create stage folders: %v", err)
	}

	return tmpDir
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a new test renderer in text mode (simulated TTY).
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, true)
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the combined stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// Reset clears both output buffers.
func (tr *TestRenderer) Reset() {
	tr.Out.Reset()
	tr.ErrOut.Reset()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
