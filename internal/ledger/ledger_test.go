package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const materialList = `Material,type,id1,id2,id3,amount1,amount2,amount3,notes
P10-HS,solid,S1,,,,,,photocatalyst
AscorbicAcid,liquid,L1,,,100,,,
water,liquid,L2,,,,,,
TEOA,subsampling,SS1,SS2,SS3,30,,,
Wash,Wash solution,W1,,,0,,,
`

func writeLedger(t *testing.T, list, waste string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), DefaultDir)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ListFile), []byte(list), 0o600))
	if waste != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, WasteFile), []byte(waste), 0o600))
	}
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeLedger(t, materialList, "TEOA\n\n")

	l, err := Load(dir)
	require.NoError(t, err)

	require.Len(t, l.Materials(), 5)
	assert.Equal(t, []string{"TEOA"}, l.InWash())

	p10, ok := l.Get("P10-HS")
	require.True(t, ok)
	assert.Equal(t, TypeSolid, p10.Type)
	assert.Equal(t, "S1", p10.ID(1))
	_, set := p10.Amount(1)
	assert.False(t, set, "empty cell is unset")
	assert.Equal(t, "photocatalyst", p10.Extra["notes"])

	acid, _ := l.Get("AscorbicAcid")
	v, set := acid.Amount(1)
	assert.True(t, set)
	assert.InDelta(t, 100, v, 1e-9)

	teoa, _ := l.Get("TEOA")
	assert.Equal(t, 3, teoa.Channels())
	assert.Equal(t, "SS3", teoa.ID(3))
	assert.Equal(t, "", teoa.ID(4))

	assert.Equal(t, []string{"AscorbicAcid", "P10-HS", "TEOA", "Wash", "water"}, l.Names())
}

func TestLoad_MissingWasteIsEmpty(t *testing.T) {
	dir := writeLedger(t, materialList, "")
	l, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, l.InWash())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		list string
		msg  string
	}{
		{"empty file", "", "is empty"},
		{"wrong first column", "Name,type\nx,liquid\n", `first column must be "Material"`},
		{"bad amount", "Material,type,id1,amount1\nx,liquid,L1,lots\n", "amount1 for x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeLedger(t, tt.list, ""))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "nowhere"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open material list")
}

func TestSave_PreservesColumnsAndEmptyCells(t *testing.T) {
	dir := writeLedger(t, materialList, "")
	l, err := Load(dir)
	require.NoError(t, err)

	teoa, _ := l.Get("TEOA")
	teoa.SetAmount(2, 4.5)
	l.MarkInWash("TEOA")
	l.MarkInWash("TEOA")

	require.NoError(t, l.Save(dir))

	content, err := os.ReadFile(filepath.Join(dir, ListFile))
	require.NoError(t, err)
	assert.Contains(t, string(content), "Material,type,id1,id2,id3,amount1,amount2,amount3,notes\n")
	assert.Contains(t, string(content), "TEOA,subsampling,SS1,SS2,SS3,30,4.5,,\n")
	assert.Contains(t, string(content), "P10-HS,solid,S1,,,,,,photocatalyst\n")

	waste, err := os.ReadFile(filepath.Join(dir, WasteFile))
	require.NoError(t, err)
	assert.Equal(t, "TEOA\n", string(waste))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestNew(t *testing.T) {
	l := New(2)
	l.Add(&Material{Name: "Wash", Type: TypeWash, IDs: []string{"W1"}})
	dir := t.TempDir()
	require.NoError(t, l.Save(dir))

	content, err := os.ReadFile(filepath.Join(dir, ListFile))
	require.NoError(t, err)
	assert.Equal(t, "Material,type,id1,id2,amount1,amount2\nWash,Wash solution,W1,,,\n", string(content))
}

func TestRefillAndDrain(t *testing.T) {
	l, err := Load(writeLedger(t, materialList, "TEOA\n"))
	require.NoError(t, err)

	require.NoError(t, l.Refill("AscorbicAcid", 1))
	acid, _ := l.Get("AscorbicAcid")
	_, set := acid.Amount(1)
	assert.False(t, set)

	teoa, _ := l.Get("TEOA")
	teoa.SetAmount(2, 10)
	require.NoError(t, l.Refill("TEOA", 0))
	for ch := 1; ch <= 3; ch++ {
		_, set := teoa.Amount(ch)
		assert.False(t, set, "channel %d", ch)
	}

	assert.ErrorIs(t, l.Refill("Nope", 1), ErrUnknownMaterial)
	assert.Error(t, l.Refill("TEOA", 9))

	wash, _ := l.Get(WashMaterial)
	wash.SetAmount(1, 500)
	require.NoError(t, l.DrainWash())
	v, _ := wash.Amount(1)
	assert.Zero(t, v)
	assert.Empty(t, l.InWash())
}

func TestClone_IsIndependent(t *testing.T) {
	l, err := Load(writeLedger(t, materialList, ""))
	require.NoError(t, err)

	c := l.Clone()
	cm, _ := c.Get("AscorbicAcid")
	cm.SetAmount(1, 999)
	c.MarkInWash("TEOA")

	m, _ := l.Get("AscorbicAcid")
	v, _ := m.Amount(1)
	assert.InDelta(t, 100, v, 1e-9)
	assert.Empty(t, l.InWash())
}
