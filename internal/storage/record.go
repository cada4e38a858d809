// Package storage persists processed patient results.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/medifusion-server/internal/domain"
)

// ExportVersion is written into every JSON export.
const ExportVersion = "1.0"

// maxExportLimit is the maximum number of results to export at once.
const maxExportLimit = 1000000

// resultColumns is the column list shared by every SELECT.
const resultColumns = `id, batch_id, request_id, patient_id, fused, analysis, created_at`

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans a row into a ResultRecord.
func scanRecord(s scanner) (*domain.ResultRecord, error) {
	r := &domain.ResultRecord{}
	var fused sql.NullString
	var analysis string

	if err := s.Scan(&r.ID, &r.BatchID, &r.RequestID, &r.PatientID, &fused, &analysis, &r.CreatedAt); err != nil {
		return nil, err
	}

	if fused.Valid && fused.String != "" {
		var v domain.FusedVector
		if err := json.Unmarshal([]byte(fused.String), &v); err != nil {
			return nil, fmt.Errorf("failed to decode fused vector: %w", err)
		}
		r.Fused = &v
	}
	if err := json.Unmarshal([]byte(analysis), &r.Analysis); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	return r, nil
}

// prepareRecord assigns ID and CreatedAt when unset and encodes the JSON columns.
func prepareRecord(r *domain.ResultRecord) (fused sql.NullString, analysis string, err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	if r.Fused != nil {
		data, err := json.Marshal(r.Fused)
		if err != nil {
			return fused, "", fmt.Errorf("failed to encode fused vector: %w", err)
		}
		fused = sql.NullString{String: string(data), Valid: true}
	}

	data, err := json.Marshal(r.Analysis)
	if err != nil {
		return fused, "", fmt.Errorf("failed to encode analysis: %w", err)
	}
	return fused, string(data), nil
}

// writeExport encodes records in the export envelope.
func writeExport(writer io.Writer, records []*domain.ResultRecord) error {
	if records == nil {
		records = []*domain.ResultRecord{}
	}
	export := &domain.ResultExport{
		Version:    ExportVersion,
		ExportedAt: time.Now(),
		Count:      len(records),
		Results:    records,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
