package ingest

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "date,state,district,pincode,age_0_5,age_5_17,age_18_greater\n"

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestParseMapsColumnsByHeader(t *testing.T) {
	content := "state,age_18_greater,date,district,pincode,age_5_17,age_0_5\n" +
		"Bihar,30,05-03-2024,Patna,800001,20,10\n"

	rows, err := Parse(strings.NewReader(content))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, RawRow{
		Date:         "05-03-2024",
		State:        "Bihar",
		District:     "Patna",
		Pincode:      "800001",
		Age0To5:      "10",
		Age5To17:     "20",
		Age18Greater: "30",
	}, rows[0])
}

func TestParseSkipsEmptyLinesAndKeepsMalformedValues(t *testing.T) {
	content := header +
		"01-01-2024,Goa,North Goa,403001,abc,,7\n" +
		"\n" +
		"02-01-2024,Goa,South Goa,403601,1,2,3\n"

	rows, err := Parse(strings.NewReader(content))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "abc", rows[0].Age0To5)
	assert.Equal(t, "", rows[0].Age5To17)
	assert.Equal(t, "South Goa", rows[1].District)
}

func TestParseUpdateHeaderAliases(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "demographic export",
			content: "date,state,district,pincode,demo_age_5_17,demo_age_17_\n01-02-2024,Kerala,Kollam,691001,4,9\n",
		},
		{
			name:    "biometric export",
			content: "date,state,district,pincode,bio_age_5_17,bio_age_17_\n01-02-2024,Kerala,Kollam,691001,4,9\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := Parse(strings.NewReader(tt.content))
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "", rows[0].Age0To5)
			assert.Equal(t, "4", rows[0].Age5To17)
			assert.Equal(t, "9", rows[0].Age18Greater)
		})
	}
}

func TestParseShortRecordsArePadded(t *testing.T) {
	rows, err := Parse(strings.NewReader(header + "01-01-2024,Assam\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Assam", rows[0].State)
	assert.Equal(t, "", rows[0].Age18Greater)
}

func TestParseHeaderOnlyAndEmpty(t *testing.T) {
	rows, err := Parse(strings.NewReader(header))
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParseRejectsBrokenQuoting(t *testing.T) {
	_, err := Parse(strings.NewReader(header + "01-01-2024,\"Goa,x,1,2,3,4\n"))
	assert.Error(t, err)
}

func TestReadCSVFilesConcatenatesOnlyCSV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.csv", header+"01-01-2024,Goa,North Goa,403001,1,2,3\n")
	writeFile(t, dir, "b.csv", header+"01-01-2024,Bihar,Patna,800001,4,5,6\n02-01-2024,Bihar,Gaya,823001,7,8,9\n")
	writeFile(t, dir, "notes.txt", "not,a,csv\n")
	writeFile(t, dir, "UPPER.CSV", header+"01-01-2024,Kerala,Kochi,682001,1,1,1\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.csv"), 0o755))

	rows, err := ReadCSVFiles(dir)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Goa", rows[0].State)
	assert.Equal(t, "Gaya", rows[2].District)
}

func TestReadCSVFilesMissingDirectory(t *testing.T) {
	_, err := ReadCSVFiles(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
