package template

import (
	"fmt"
	"os"
	"strings"
)

// FileName is the conventional name of the template in a project root.
const FileName = "batch.template"

// compoundsPrefix marks the header line naming the submission columns.
const compoundsPrefix = "SampleIndex,"

// Params holds the key,value header lines of a batch.template.
type Params map[string]string

// Get returns the value for key and whether it was present.
func (p Params) Get(key string) (string, bool) {
	v, ok := p[key]
	return v, ok
}

// Value returns the value for key or an empty string.
func (p Params) Value(key string) string {
	return p[key]
}

// Batch is a parsed batch.template.
type Batch struct {
	File string
	// Header is the raw header text, trailing whitespace trimmed.
	Header string
	Params Params
	// Keys preserves header key order.
	Keys []string
	// Compounds is the full column list including SampleIndex.
	Compounds []string
	// Line is the raw submission line.
	Line string

	tokens []Token
}

// LoadBatch reads and parses a batch.template from disk.
func LoadBatch(path string) (*Batch, error) {
	content, err := os.ReadFile(path) //nolint:gosec // path comes from project config
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", path, err)
	}
	return ParseBatch(string(content), path)
}

// ParseBatch parses batch.template content.
//
// A line starting with '$' is the submission line (the last one wins), a
// line starting with "SampleIndex," names the columns, and every other
// non-blank line is a key,value header parameter.
func ParseBatch(content, file string) (*Batch, error) {
	b := &Batch{File: file, Params: Params{}}

	var header []string
	lineNo := 0
	submissionLineNo := 0
	for _, raw := range strings.Split(content, "\n") {
		lineNo++
		line := strings.TrimRight(raw, "\r\n")

		switch {
		case strings.HasPrefix(line, "$"):
			b.Line = line
			submissionLineNo = lineNo
		case strings.HasPrefix(line, compoundsPrefix):
			b.Compounds = splitColumns(line)
		default:
			header = append(header, line)
			if strings.TrimSpace(line) == "" {
				continue
			}
			key, value, ok := strings.Cut(line, ",")
			if !ok {
				return nil, NewParseErrorf(Position{File: file, Line: lineNo, Column: 1},
					"header line %q is not a key,value pair", line)
			}
			// Extra columns after the value are ignored.
			value, _, _ = strings.Cut(value, ",")
			if _, seen := b.Params[key]; !seen {
				b.Keys = append(b.Keys, key)
			}
			b.Params[key] = value
		}
	}
	b.Header = strings.TrimRight(strings.Join(header, "\n"), " \t\r\n")

	eof := Position{File: file, Line: lineNo, Column: 1}
	if b.Line == "" {
		return nil, NewParseError(eof, "missing submission line (a line starting with '$')")
	}
	if len(b.Compounds) == 0 {
		return nil, NewParseError(eof, "missing compounds header (a line starting with 'SampleIndex,')")
	}

	tokens, err := NewLexerAt(b.Line, file, submissionLineNo).Tokenize()
	if err != nil {
		return nil, err
	}
	b.tokens = tokens

	if got, want := len(splitColumns(b.Line)), len(b.Compounds); got != want {
		return nil, NewParseErrorf(Position{File: file, Line: submissionLineNo, Column: 1},
			"submission line has %d columns, compounds header has %d", got, want)
	}
	if len(b.Compounds) < 3 {
		return nil, NewParseError(eof, "compounds header needs SampleIndex, a sample number column and a name column")
	}

	return b, nil
}

// Placeholders returns the distinct placeholder names in the submission
// line, in order of first appearance.
func (b *Batch) Placeholders() []string {
	var names []string
	seen := make(map[string]bool)
	for _, tok := range b.tokens {
		if tok.Type != TokenPlaceholder || seen[tok.Value] {
			continue
		}
		seen[tok.Value] = true
		names = append(names, tok.Value)
	}
	return names
}

// Materials returns the material columns of the template: the compounds
// header without the index, number and Name columns.
func (b *Batch) Materials() []string {
	var out []string
	for _, h := range b.Compounds[2:] {
		if h == nameColumn {
			continue
		}
		out = append(out, h)
	}
	return out
}

func splitColumns(line string) []string {
	cols := strings.Split(line, ",")
	for i, c := range cols {
		cols[i] = strings.TrimSpace(c)
	}
	return cols
}
