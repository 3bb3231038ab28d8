// Package ledger tracks how much of each material has been drawn from the
// robot's dispensing channels.
//
// The ledger lives in "Material tracking/material_list.csv" (one row per
// material with its type, channel ids and running amounts) alongside
// "Material tracking/waste.txt" (materials whose residue is in the
// subsample wash bottle).
package ledger

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Default file locations relative to the project root.
const (
	DefaultDir = "Material tracking"
	ListFile   = "material_list.csv"
	WasteFile  = "waste.txt"
)

// MaterialType is the dispensing class of a material.
type MaterialType string

// Material types as written in the ledger's type column.
const (
	TypeLiquid      MaterialType = "liquid"
	TypeSolid       MaterialType = "solid"
	TypeSubsampling MaterialType = "subsampling"
	TypeWash        MaterialType = "Wash solution"
)

// WashMaterial is the ledger row tracking the subsample wash bottle.
const WashMaterial = "Wash"

const (
	colMaterial = "Material"
	colType     = "type"
)

var channelColumn = regexp.MustCompile(`^(id|amount)(\d+)$`)

// Material is one ledger row.
type Material struct {
	Name string
	Type MaterialType
	// IDs and Amounts are indexed by channel-1. A nil amount is an
	// empty cell.
	IDs     []string
	Amounts []*float64
	// Extra holds columns the ledger does not interpret.
	Extra map[string]string
}

// Channels returns the number of channels the row has columns for.
func (m *Material) Channels() int {
	return max(len(m.IDs), len(m.Amounts))
}

// ID returns the dispenser id of a 1-based channel.
func (m *Material) ID(channel int) string {
	if channel < 1 || channel > len(m.IDs) {
		return ""
	}
	return m.IDs[channel-1]
}

// Amount returns the running amount of a 1-based channel and whether the
// cell is set.
func (m *Material) Amount(channel int) (float64, bool) {
	if channel < 1 || channel > len(m.Amounts) || m.Amounts[channel-1] == nil {
		return 0, false
	}
	return *m.Amounts[channel-1], true
}

// SetAmount sets the amount of a 1-based channel, growing the row if needed.
func (m *Material) SetAmount(channel int, v float64) {
	m.grow(channel)
	m.Amounts[channel-1] = &v
}

// ClearAmount empties the amount cell of a 1-based channel.
func (m *Material) ClearAmount(channel int) {
	if channel >= 1 && channel <= len(m.Amounts) {
		m.Amounts[channel-1] = nil
	}
}

// add accumulates v into a channel, treating an empty cell as zero.
func (m *Material) add(channel int, v float64) float64 {
	cur, _ := m.Amount(channel)
	m.SetAmount(channel, cur+v)
	return cur + v
}

func (m *Material) grow(channel int) {
	for len(m.IDs) < channel {
		m.IDs = append(m.IDs, "")
	}
	for len(m.Amounts) < channel {
		m.Amounts = append(m.Amounts, nil)
	}
}

func (m *Material) clone() *Material {
	c := &Material{
		Name:    m.Name,
		Type:    m.Type,
		IDs:     append([]string(nil), m.IDs...),
		Amounts: make([]*float64, len(m.Amounts)),
	}
	for i, a := range m.Amounts {
		if a != nil {
			v := *a
			c.Amounts[i] = &v
		}
	}
	if m.Extra != nil {
		c.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// Ledger is the in-memory material list plus the in-wash list.
type Ledger struct {
	columns   []string
	materials []*Material
	index     map[string]*Material
	inWash    []string
}

// New creates an empty ledger with id/amount columns for the given
// number of channels.
func New(channels int) *Ledger {
	cols := []string{colMaterial, colType}
	for i := 1; i <= channels; i++ {
		cols = append(cols, fmt.Sprintf("id%d", i))
	}
	for i := 1; i <= channels; i++ {
		cols = append(cols, fmt.Sprintf("amount%d", i))
	}
	return &Ledger{columns: cols, index: make(map[string]*Material)}
}

// Add appends a material row. An existing row of the same name is replaced.
func (l *Ledger) Add(m *Material) {
	if existing, ok := l.index[m.Name]; ok {
		*existing = *m
		return
	}
	l.materials = append(l.materials, m)
	l.index[m.Name] = m
}

// Get returns a material by name.
func (l *Ledger) Get(name string) (*Material, bool) {
	m, ok := l.index[name]
	return m, ok
}

// Materials returns the rows in file order.
func (l *Ledger) Materials() []*Material {
	return l.materials
}

// InWash returns the materials whose residue is in the wash bottle.
func (l *Ledger) InWash() []string {
	return l.inWash
}

// MarkInWash records a material in the wash list once.
func (l *Ledger) MarkInWash(name string) {
	for _, n := range l.inWash {
		if n == name {
			return
		}
	}
	l.inWash = append(l.inWash, name)
}

// Refill clears the running amount of a material channel. Channel 0
// clears every channel.
func (l *Ledger) Refill(name string, channel int) error {
	m, ok := l.index[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMaterial, name)
	}
	if channel == 0 {
		for i := range m.Amounts {
			m.Amounts[i] = nil
		}
		return nil
	}
	if channel < 0 || channel > m.Channels() {
		return fmt.Errorf("material %s has no channel %d", name, channel)
	}
	m.ClearAmount(channel)
	return nil
}

// DrainWash empties the wash bottle and the in-wash list.
func (l *Ledger) DrainWash() error {
	m, ok := l.index[WashMaterial]
	if !ok || m.Type != TypeWash {
		return fmt.Errorf("%w: no %q row of type %q", ErrUnknownMaterial, WashMaterial, TypeWash)
	}
	m.SetAmount(1, 0)
	l.inWash = nil
	return nil
}

// Clone returns a deep copy, used for dry runs.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		columns: append([]string(nil), l.columns...),
		index:   make(map[string]*Material, len(l.materials)),
		inWash:  append([]string(nil), l.inWash...),
	}
	for _, m := range l.materials {
		mc := m.clone()
		c.materials = append(c.materials, mc)
		c.index[mc.Name] = mc
	}
	return c
}

// Load reads material_list.csv and waste.txt from dir.
// A missing waste.txt is treated as an empty list.
func Load(dir string) (*Ledger, error) {
	l, err := loadList(filepath.Join(dir, ListFile))
	if err != nil {
		return nil, err
	}

	wash, err := loadWaste(filepath.Join(dir, WasteFile))
	if err != nil {
		return nil, err
	}
	l.inWash = wash

	return l, nil
}

func loadList(path string) (*Ledger, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from project config
	if err != nil {
		return nil, fmt.Errorf("failed to open material list: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read material list %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("material list %s is empty", path)
	}

	header := records[0]
	if len(header) < 2 || strings.TrimPrefix(header[0], "\ufeff") != colMaterial {
		return nil, fmt.Errorf("material list %s: first column must be %q", path, colMaterial)
	}
	header[0] = colMaterial

	l := &Ledger{columns: header, index: make(map[string]*Material)}
	for rowNum, rec := range records[1:] {
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		m := &Material{Name: strings.TrimSpace(rec[0])}
		for i, col := range header[1:] {
			idx := i + 1
			cell := ""
			if idx < len(rec) {
				cell = strings.TrimSpace(rec[idx])
			}
			if err := m.setColumn(col, cell); err != nil {
				return nil, fmt.Errorf("material list %s row %d: %w", path, rowNum+2, err)
			}
		}
		l.Add(m)
	}

	return l, nil
}

func (m *Material) setColumn(col, cell string) error {
	if col == colType {
		m.Type = MaterialType(cell)
		return nil
	}
	match := channelColumn.FindStringSubmatch(col)
	if match == nil {
		if m.Extra == nil {
			m.Extra = make(map[string]string)
		}
		m.Extra[col] = cell
		return nil
	}
	channel, _ := strconv.Atoi(match[2])
	if channel < 1 {
		return fmt.Errorf("invalid channel column %q", col)
	}
	m.grow(channel)
	switch match[1] {
	case "id":
		m.IDs[channel-1] = cell
	case "amount":
		if cell == "" || strings.EqualFold(cell, "nan") {
			return nil
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return fmt.Errorf("%s for %s: %w", col, m.Name, err)
		}
		m.Amounts[channel-1] = &v
	}
	return nil
}

func loadWaste(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from project config
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open waste list: %w", err)
	}
	defer func() { _ = f.Close() }()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if name := strings.TrimSpace(sc.Text()); name != "" {
			names = append(names, name)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read waste list: %w", err)
	}
	return names, nil
}

// Save writes material_list.csv and waste.txt into dir. Each file is
// written to a temporary sibling and renamed into place.
func (l *Ledger) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(l.columns); err != nil {
		return fmt.Errorf("failed to encode material list: %w", err)
	}
	for _, m := range l.materials {
		if err := w.Write(m.record(l.columns)); err != nil {
			return fmt.Errorf("failed to encode material %s: %w", m.Name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to encode material list: %w", err)
	}

	if err := writeAtomic(filepath.Join(dir, ListFile), sb.String()); err != nil {
		return err
	}

	waste := strings.Join(l.inWash, "\n")
	if waste != "" {
		waste += "\n"
	}
	return writeAtomic(filepath.Join(dir, WasteFile), waste)
}

func (m *Material) record(columns []string) []string {
	rec := make([]string, len(columns))
	for i, col := range columns {
		switch col {
		case colMaterial:
			rec[i] = m.Name
		case colType:
			rec[i] = string(m.Type)
		default:
			match := channelColumn.FindStringSubmatch(col)
			if match == nil {
				rec[i] = m.Extra[col]
				continue
			}
			channel, _ := strconv.Atoi(match[2])
			if match[1] == "id" {
				rec[i] = m.ID(channel)
			} else if v, ok := m.Amount(channel); ok {
				rec[i] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
	}
	return rec
}

func writeAtomic(path, content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Names returns the material names sorted alphabetically.
func (l *Ledger) Names() []string {
	names := make([]string, 0, len(l.materials))
	for _, m := range l.materials {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}
