package template

import (
	"fmt"
	"strconv"
	"strings"
)

// Reserved placeholder names.
const (
	VarIndex        = "idx"
	VarSampleNumber = "sample_number"
	VarBatchName    = "batch_name"
	VarWater        = "water"
)

const nameColumn = "Name"

// FloatFormat is the format used for every substituted amount.
const FloatFormat = "%.4f"

// Sample maps material name to amount for one vial.
type Sample map[string]float64

// Vars are the per-line values substituted alongside material amounts.
type Vars struct {
	Index     int
	BatchName string
	Water     float64
}

// Entry is one material column of a rendered line.
type Entry struct {
	Material string
	Amount   float64
}

// Line is a rendered submission line with the index and number columns
// removed.
type Line struct {
	Name    string
	Entries []Entry
	// Raw is the substituted line before splitting.
	Raw string
}

// Last returns the final entry of the line, which by convention is water.
func (l *Line) Last() (Entry, bool) {
	if len(l.Entries) == 0 {
		return Entry{}, false
	}
	return l.Entries[len(l.Entries)-1], true
}

// Render substitutes the sample into the submission line.
// A placeholder with no value is a RenderError.
func (b *Batch) Render(sample Sample, vars Vars) (*Line, error) {
	var sb strings.Builder
	for _, tok := range b.tokens {
		switch tok.Type {
		case TokenText:
			sb.WriteString(tok.Value)
		case TokenPlaceholder:
			v, err := b.resolve(tok, sample, vars)
			if err != nil {
				return nil, err
			}
			sb.WriteString(v)
		}
	}
	raw := sb.String()

	cols := splitColumns(raw)
	headers := b.Compounds
	pos := Position{File: b.File, Line: 1, Column: 1}
	if len(b.tokens) > 0 {
		pos = b.tokens[0].Pos
	}
	if len(cols) != len(headers) {
		return nil, NewRenderErrorf(pos, "rendered line has %d columns, compounds header has %d", len(cols), len(headers))
	}

	// Index and sample number columns are not part of the submission.
	cols, headers = cols[2:], headers[2:]

	line := &Line{Name: cols[0], Raw: raw}
	for n := range cols {
		if headers[n] == nameColumn {
			continue
		}
		if n == 0 {
			// The first remaining column is always the sample name.
			continue
		}
		amount, err := strconv.ParseFloat(cols[n], 64)
		if err != nil {
			return nil, WrapRenderError(pos, fmt.Sprintf("column %q is not a number", headers[n]), err)
		}
		line.Entries = append(line.Entries, Entry{Material: headers[n], Amount: amount})
	}

	return line, nil
}

func (b *Batch) resolve(tok Token, sample Sample, vars Vars) (string, error) {
	switch tok.Value {
	case VarIndex:
		return strconv.Itoa(vars.Index), nil
	case VarSampleNumber:
		return strconv.Itoa(vars.Index + 1), nil
	case VarBatchName:
		return vars.BatchName, nil
	case VarWater:
		return fmt.Sprintf(FloatFormat, vars.Water), nil
	}
	amount, ok := sample[tok.Value]
	if !ok {
		return "", NewRenderErrorf(tok.Pos, "no amount for placeholder %q", tok.Value)
	}
	return fmt.Sprintf(FloatFormat, amount), nil
}
