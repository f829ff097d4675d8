package postprocess

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawDataset = `car_brand,car_model,car_trim,Official_Price_EGP,Fog_Lights,Transmission_Type
Hyundai,Accent-RB,1.6L Smart,1200000,True,automatic
Hyundai,Accent-RB,1.6L Comfort,,,manual
Hyundai,Tucson-NX4,2.0L Base,500,True,
Kia,Sportage,GT Line,2500000,,automatic
Kia,Sportage,LX,,,
`

func runFixture(t *testing.T, raw string) (*Report, [][]string) {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "cars.csv")
	output := filepath.Join(dir, "processed_data.csv")
	require.NoError(t, os.WriteFile(input, []byte(raw), 0o644))

	report, err := Run(input, output)
	require.NoError(t, err)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return report, records
}

func TestRun_DropsNoisyColumns(t *testing.T) {
	report, records := runFixture(t, rawDataset)

	assert.Equal(t, 6, report.ColumnsBefore)
	assert.Equal(t, 5, report.ColumnsAfter)
	assert.Equal(t, []string{"Fog_Lights"}, report.DroppedColumns)
	assert.Equal(t,
		[]string{"car_brand", "car_model", "car_trim", "Official_Price_EGP", "Transmission_Type"},
		records[0])
}

func TestRun_RowFilters(t *testing.T) {
	report, records := runFixture(t, rawDataset)

	// LX carries nothing beyond its identity; Comfort has no price and
	// Tucson's is below the plausibility floor.
	assert.Equal(t, 5, report.RowsBefore)
	assert.Equal(t, 1, report.EmptyRows)
	assert.Equal(t, 2, report.PricelessRows)
	assert.Equal(t, 2, report.RowsKept)

	require.Len(t, records, 3)
	assert.Equal(t, "1.6L Smart", records[1][2])
	assert.Equal(t, "GT Line", records[2][2])
}

func TestRun_NoPriceColumn(t *testing.T) {
	raw := strings.Join([]string{
		"car_brand,car_model,car_trim,ESP",
		"Kia,Sportage,LX,True",
		"",
	}, "\n")
	report, records := runFixture(t, raw)

	assert.Equal(t, 0, report.PricelessRows)
	assert.Len(t, records, 2)
}

func TestRun_MissingInput(t *testing.T) {
	_, err := Run(filepath.Join(t.TempDir(), "nope.csv"), filepath.Join(t.TempDir(), "out.csv"))
	assert.Error(t, err)
}
