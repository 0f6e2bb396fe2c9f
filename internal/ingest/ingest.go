package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// RawRow is one CSV record as read from disk. Count fields are kept as the
// raw strings; coercion happens during aggregation.
type RawRow struct {
	Date         string `json:"date"`
	State        string `json:"state"`
	District     string `json:"district"`
	Pincode      string `json:"pincode"`
	Age0To5      string `json:"age_0_5"`
	Age5To17     string `json:"age_5_17"`
	Age18Greater string `json:"age_18_greater"`
}

// Column names of the canonical header.
const (
	ColDate         = "date"
	ColState        = "state"
	ColDistrict     = "district"
	ColPincode      = "pincode"
	ColAge0To5      = "age_0_5"
	ColAge5To17     = "age_5_17"
	ColAge18Greater = "age_18_greater"
)

// headerAliases maps the bucket columns of the demographic and biometric
// update exports onto the canonical names.
var headerAliases = map[string]string{
	"demo_age_0_5":  ColAge0To5,
	"demo_age_5_17": ColAge5To17,
	"demo_age_17_":  ColAge18Greater,
	"bio_age_0_5":   ColAge0To5,
	"bio_age_5_17":  ColAge5To17,
	"bio_age_17_":   ColAge18Greater,
}

// ReadCSVFiles parses every .csv file in dir and returns the rows of all files
// concatenated in directory listing order.
func ReadCSVFiles(dir string) ([]RawRow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ingest: read dir %s: %w", dir, err)
	}
	var all []RawRow
	for _, entry := range entries {
		if entry.IsDir() || !IsCSV(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		rows, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		log.Printf("ingest: file=%s rows=%d", entry.Name(), len(rows))
		all = append(all, rows...)
	}
	return all, nil
}

// ReadFile parses a single CSV file using its header row for column mapping.
func ReadFile(path string) ([]RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()
	rows, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("ingest: parse %s: %w", path, err)
	}
	return rows, nil
}

// Parse reads CSV content with a header row. csv.Reader skips empty lines;
// short records are padded with empty values.
func Parse(r io.Reader) ([]RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	columns := mapHeader(header)

	var rows []RawRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, buildRow(columns, record))
	}
	return rows, nil
}

func mapHeader(header []string) []string {
	columns := make([]string, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if alias, ok := headerAliases[name]; ok {
			name = alias
		}
		columns[i] = name
	}
	return columns
}

func buildRow(columns []string, record []string) RawRow {
	var row RawRow
	for i, col := range columns {
		value := ""
		if i < len(record) {
			value = record[i]
		}
		switch col {
		case ColDate:
			row.Date = value
		case ColState:
			row.State = value
		case ColDistrict:
			row.District = value
		case ColPincode:
			row.Pincode = value
		case ColAge0To5:
			row.Age0To5 = value
		case ColAge5To17:
			row.Age5To17 = value
		case ColAge18Greater:
			row.Age18Greater = value
		}
	}
	return row
}

// IsCSV reports whether name ends in the lower-case .csv extension.
func IsCSV(name string) bool {
	return strings.HasSuffix(name, ".csv")
}
