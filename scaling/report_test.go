package scaling

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() []TagResult {
	return []TagResult{
		{Type: Strong, Tag: "mpi-2-1000", Measurements: []Measurement{
			{Workers: 1, Size: 1000, Seconds: 2},
			{Workers: 2, Size: 1000, Seconds: 1},
			{Workers: 4, Size: 1000, Seconds: 0.8},
		}},
		{Type: Weak, Tag: "openmp-1-500", Measurements: []Measurement{
			{Workers: 1, Size: 500, Seconds: 1},
			{Workers: 2, Size: 1000, Seconds: 1.25},
			{Workers: 4, Size: 2000, Seconds: 2},
		}},
	}
}

func TestTables(t *testing.T) {
	tables := Tables(sampleResults())
	require.Len(t, tables, 2)

	strong := tables[0].Rows
	assert.InDelta(t, 2.5, strong[2].Speedup, 1e-12)
	assert.InDelta(t, 0.625, strong[2].Efficiency, 1e-12)

	weak := tables[1].Rows
	assert.InDelta(t, 0.8, weak[1].Efficiency, 1e-12)
	assert.InDelta(t, 1.6, weak[1].Speedup, 1e-12)
	assert.InDelta(t, 0.5, weak[2].Efficiency, 1e-12)
}

func TestTablesZeroTime(t *testing.T) {
	tables := Tables([]TagResult{{Type: Strong, Tag: "t", Measurements: []Measurement{
		{Workers: 1, Seconds: 1},
		{Workers: 2, Seconds: 0},
	}}})
	assert.Zero(t, tables[0].Rows[1].Speedup)
	assert.Zero(t, tables[0].Rows[1].Efficiency)
}

func TestRenderGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, format := range Formats {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Render(&buf, format, Tables(sampleResults())))
			g.Assert(t, "report_"+format, buf.Bytes())
		})
	}
}

func TestRenderEmpty(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatText, nil))
	g.Assert(t, "report_empty", buf.Bytes())

	buf.Reset()
	require.NoError(t, Render(&buf, FormatJSON, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestRenderInvalidFormat(t *testing.T) {
	err := Render(&bytes.Buffer{}, "xml", nil)
	assert.ErrorContains(t, err, `invalid format "xml"`)
}
