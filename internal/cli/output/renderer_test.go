package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(mode Mode, tty bool) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return NewRendererWithTTY(&out, &errOut, tty, mode), &out, &errOut
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeAuto},
		{in: "auto", want: ModeAuto},
		{in: "text", want: ModeText},
		{in: "markdown", want: ModeMarkdown},
		{in: "json", want: ModeJSON},
		{in: "yaml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid output format")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderer_EffectiveMode(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		tty  bool
		want Mode
	}{
		{name: "auto on terminal", mode: ModeAuto, tty: true, want: ModeText},
		{name: "auto piped", mode: ModeAuto, tty: false, want: ModeMarkdown},
		{name: "empty is auto", mode: "", tty: false, want: ModeMarkdown},
		{name: "explicit json", mode: ModeJSON, tty: true, want: ModeJSON},
		{name: "explicit text piped", mode: ModeText, tty: false, want: ModeText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newTestRenderer(tt.mode, tt.tty)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestNewRenderer_BufferIsNotTTY(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, &buf, ModeAuto)
	assert.False(t, r.IsTTY())
	assert.Same(t, &buf, r.Writer())
}

func TestRenderer_Markdown(t *testing.T) {
	r, out, _ := newTestRenderer(ModeMarkdown, false)

	r.Header(2, "Batch B1")
	r.KeyValue("Samples", "2")
	r.Success("Submitted")
	r.Warning("sample 1 water below zero")
	r.Muted("dry run")

	want := "## Batch B1\n\n" +
		"- **Samples**: 2\n" +
		"**Submitted**\n" +
		"> **Warning:** sample 1 water below zero\n" +
		"_dry run_\n"
	assert.Equal(t, want, out.String())
}

func TestRenderer_TextWithoutTTYHasNoEscapes(t *testing.T) {
	r, out, errOut := newTestRenderer(ModeText, false)

	r.Header(1, "Ledger")
	r.Success("saved")
	r.Warning("refill soon")
	r.Error("failed")

	assert.NotContains(t, out.String(), "\x1b[")
	assert.Contains(t, out.String(), "Ledger")
	assert.Contains(t, out.String(), "✓ saved")
	assert.Contains(t, out.String(), "! refill soon")
	assert.Equal(t, "✗ failed\n", errOut.String())
}

func TestRenderer_StatusLine(t *testing.T) {
	tests := []struct {
		name   string
		mode   Mode
		status string
		detail string
		want   string
	}{
		{name: "markdown success", mode: ModeMarkdown, status: "success", detail: "2 rows", want: "- ✓ B1.xlsx (2 rows)\n"},
		{name: "markdown failed", mode: ModeMarkdown, status: "failed", want: "- ✗ B1.xlsx\n"},
		{name: "markdown other", mode: ModeMarkdown, status: "skipped", want: "- - B1.xlsx\n"},
		{name: "text warning", mode: ModeText, status: "warning", detail: "mismatch", want: "! B1.xlsx mismatch\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, out, _ := newTestRenderer(tt.mode, false)
			r.StatusLine("B1.xlsx", tt.status, tt.detail)
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestRenderer_Table(t *testing.T) {
	t.Run("markdown", func(t *testing.T) {
		r, out, _ := newTestRenderer(ModeMarkdown, false)
		r.Table([]string{"Material", "Amount"}, [][]string{{"water", "8"}})

		got := strings.ToLower(out.String())
		assert.Contains(t, got, "| material | amount |")
		assert.Contains(t, got, "| water | 8 |")
	})

	t.Run("text", func(t *testing.T) {
		r, out, _ := newTestRenderer(ModeText, false)
		r.Table([]string{"Material", "Amount"}, [][]string{{"water", "8"}})

		assert.Contains(t, out.String(), "┌")
		assert.Contains(t, out.String(), "water")
	})
}

func TestRenderer_JSON(t *testing.T) {
	r, out, _ := newTestRenderer(ModeJSON, false)
	require.NoError(t, r.JSON(SubmitOutput{Batch: "B1", Samples: 2, Warnings: []string{}}))

	var got SubmitOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "B1", got.Batch)
	assert.Equal(t, 2, got.Samples)
	assert.Contains(t, out.String(), "\n  \"batch\"")
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "# Title", FormatHeader(0, "Title"))
	assert.Equal(t, "### Title", FormatHeader(3, "Title"))
	assert.Equal(t, "- **a**: b", FormatKeyValue("a", "b"))
	assert.Equal(t, "```csv\na,b\n```", FormatCodeBlock("csv", "a,b\n"))
	assert.Equal(t, "Runqueue", Title("runqueue"))
}
