package cost

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	o := fleet(t)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, o.Recommendations(), o.TotalCost()))

	r := csv.NewReader(&buf)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(rows), 3)
	assert.Equal(t, "Type", rows[0][0])
	assert.Equal(t, []string{"terminate", "idle", "compute", "", "730.56", "Resource is idle (0% utilization)"}, rows[1])
	assert.Equal(t, "downsize", rows[2][0])
	assert.Equal(t, "20.0", rows[2][3])

	last := rows[len(rows)-1]
	assert.Equal(t, []string{"Potential Monthly Savings", "$1095.84"}, last)
}
