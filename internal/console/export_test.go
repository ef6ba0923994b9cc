package console

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deliverly/admin-console/internal/filters"
	"github.com/deliverly/admin-console/internal/marketplace"
)

func TestWriteTableCSV(t *testing.T) {
	table := Table{
		Title:   "Deductions",
		Columns: []string{"ID", "Reason"},
		Rows: [][]string{
			{"d1", "late, twice"},
			{"d2", `said "no"`},
		},
		Filters: []string{"status: Active", "page 1, 10 per page"},
	}
	var buf bytes.Buffer
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("WAT", 3600))
	require.NoError(t, writeTableCSV(&buf, table, at, "Ada Obi"))

	want := "# Deductions\r\n" +
		"# Generated 2026-03-01T08:30:00Z by Ada Obi\r\n" +
		"# status: Active\r\n" +
		"# page 1, 10 per page\r\n" +
		"ID,Reason\r\n" +
		"d1,\"late, twice\"\r\n" +
		"d2,\"said \"\"no\"\"\"\r\n"
	assert.Equal(t, want, buf.String())
}

func TestExportFilename(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)
	assert.Equal(t, "feature-requests-20260301-0905.pdf", exportFilename(marketplace.FeatureRequests, "pdf", at))
}

func TestFlattenFormatsMoneyColumns(t *testing.T) {
	def := marketplace.DeductionResource().Definition
	row, err := flatten(marketplace.Deduction{
		ID: "d1", RiderName: "Tunde Bello", Amount: 12500, Category: "damage", Status: marketplace.StatusActive,
	}, def.Columns)
	require.NoError(t, err)
	assert.Equal(t, "d1", row[0])
	assert.Equal(t, "Tunde Bello", row[1])
	assert.Equal(t, "₦12,500.00", row[2])
	assert.Equal(t, "damage", row[3])
	assert.Equal(t, "", row[4])
}

func TestCellRendersPlainValues(t *testing.T) {
	assert.Equal(t, "3", cell(float64(3), false))
	assert.Equal(t, "4.5", cell(4.5, false))
	assert.Equal(t, "true", cell(true, false))
	assert.Equal(t, "", cell(nil, true))
	assert.Equal(t, `["a","b"]`, cell([]any{"a", "b"}, false))
}

func TestDescribeFilters(t *testing.T) {
	got := describeFilters(filters.State{
		Page: 2, PageSize: 25, SortBy: "createdAt", SortOrder: filters.SortDesc,
		Values: map[string]string{"zoneId": "lagos-1", "status": "Pending"},
	})
	assert.Equal(t, []string{
		"status: Pending",
		"zoneId: lagos-1",
		"sorted by createdAt desc",
		"page 2, 25 per page",
	}, got)
}
