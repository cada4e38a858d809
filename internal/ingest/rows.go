// Package ingest turns uploaded files into pipeline inputs: structured rows from CSV
// and the combined free-text note.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/medifusion-server/internal/domain"
)

// DemoPatientID identifies the synthetic row used when no structured data is supplied.
const DemoPatientID = "DEMO_001"

// ErrEmptyStructuredData is returned for a CSV upload with no header row.
var ErrEmptyStructuredData = errors.New("no columns to parse from structured file")

// Cell values read as missing, matching common spreadsheet exports.
var missingTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"n/a":  true,
	"NaN":  true,
	"nan":  true,
	"-NaN": true,
	"-nan": true,
	"NULL": true,
	"null": true,
	"None": true,
	"#N/A": true,
}

// DemoRow returns the synthetic patient row used when no CSV was uploaded.
func DemoRow() domain.StructuredRow {
	return domain.StructuredRow{
		domain.FieldPatientID:     DemoPatientID,
		domain.FieldFeat1:         0.5,
		domain.FieldFeat2:         0.3,
		domain.FieldFeat3:         0.8,
		domain.FieldTumorSizeCM:   3.2,
		domain.FieldGrowthRate:    0.6,
		domain.FieldTumorSizeFeat: 1.0,
		domain.FieldGrowthFeat:    0.0,
	}
}

// ParseCSV reads a header row followed by one record per patient. Numeric cells become
// float64, other cells stay strings, and missing cells are dropped from the row.
// patient_id is always kept as a string.
func ParseCSV(r io.Reader) ([]domain.StructuredRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyStructuredData
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i, name := range header {
		name = strings.TrimSpace(name)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		header[i] = name
	}

	rows := []domain.StructuredRow{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading record %d: %w", line, err)
		}
		if len(record) > len(header) {
			return nil, fmt.Errorf("record %d: expected %d fields, saw %d", line, len(header), len(record))
		}

		row := make(domain.StructuredRow, len(header))
		for i, cell := range record {
			if header[i] == "" {
				continue
			}
			cell = strings.TrimSpace(cell)
			if missingTokens[cell] {
				continue
			}
			row[header[i]] = parseCell(header[i], cell)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func parseCell(column, cell string) any {
	if column == domain.FieldPatientID {
		return cell
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}
	return cell
}

// PatientID returns the row's patient_id, or Patient_<index> when absent.
func PatientID(row domain.StructuredRow, index int) string {
	fallback := fmt.Sprintf("Patient_%d", index)
	raw, ok := row[domain.FieldPatientID]
	if !ok || raw == nil {
		return fallback
	}
	switch v := raw.(type) {
	case string:
		if v == "" {
			return fallback
		}
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
