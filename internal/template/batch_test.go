package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTemplate = `objective,maximise hydrogen evolution
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

func TestParseBatch(t *testing.T) {
	b, err := ParseBatch(sampleTemplate, "batch.template")
	require.NoError(t, err)

	assert.Equal(t, "maximise hydrogen evolution", b.Params.Value("objective"))
	assert.Equal(t, "Shaker1", b.Params.Value("orbital_id"))
	_, ok := b.Params.Get("measurement_method")
	assert.False(t, ok, "measurement_method is optional")

	assert.Equal(t, []string{"SampleIndex", "SampleNumber", "Name", "P10-HS", "AscorbicAcid", "water"}, b.Compounds)
	assert.Equal(t, []string{"P10-HS", "AscorbicAcid", "water"}, b.Materials())
	assert.Equal(t, []string{"idx", "sample_number", "batch_name", "P10-HS", "AscorbicAcid", "water"}, b.Placeholders())
	assert.Equal(t, "objective", b.Keys[0])
	assert.Len(t, b.Keys, 12)
	assert.NotContains(t, b.Header, "SampleIndex")
	assert.NotRegexp(t, `\s$`, b.Header)
}

func TestParseBatch_LastSubmissionLineWins(t *testing.T) {
	content := "SampleIndex,SampleNumber,Name,water\n$first,1,a,1\n${idx},${sample_number},x,${water}\n"
	b, err := ParseBatch(content, "")
	require.NoError(t, err)
	assert.Equal(t, "${idx},${sample_number},x,${water}", b.Line)
}

func TestParseBatch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		msg     string
	}{
		{
			name:    "missing submission line",
			content: "objective,x\nSampleIndex,SampleNumber,Name,water\n",
			msg:     "missing submission line",
		},
		{
			name:    "missing compounds",
			content: "objective,x\n${idx},${sample_number},n,${water}\n",
			msg:     "missing compounds header",
		},
		{
			name:    "header without comma",
			content: "objective\nSampleIndex,SampleNumber,Name,water\n${idx},1,n,${water}\n",
			msg:     "not a key,value pair",
		},
		{
			name:    "column mismatch",
			content: "SampleIndex,SampleNumber,Name,water\n${idx},1,n\n",
			msg:     "3 columns, compounds header has 4",
		},
		{
			name:    "bad placeholder",
			content: "SampleIndex,SampleNumber,Name,water\n${idx},1,n,${water\n",
			msg:     "unclosed placeholder",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBatch(tt.content, "batch.template")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)

			var tmplErr Error
			assert.ErrorAs(t, err, &tmplErr)
		})
	}
}

func TestLoadBatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(sampleTemplate), 0o600))

	b, err := LoadBatch(path)
	require.NoError(t, err)
	assert.Equal(t, path, b.File)

	_, err = LoadBatch(filepath.Join(dir, "missing.template"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read template")
}
