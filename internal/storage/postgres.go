package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/medifusion-server/internal/domain"
)

// PostgresStore implements domain.ResultStore using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL result store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL result store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Save implements domain.ResultStore.
func (s *PostgresStore) Save(ctx context.Context, record *domain.ResultRecord) error {
	fused, analysis, err := prepareRecord(record)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO analysis_results (
			id, batch_id, request_id, patient_id, risk_level, probability,
			fused, analysis, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.db.ExecContext(ctx, query,
		record.ID,
		record.BatchID,
		record.RequestID,
		record.PatientID,
		record.Analysis.RiskLevel.String(),
		record.Analysis.Probability,
		fused,
		analysis,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// Get implements domain.ResultStore.
func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.ResultRecord, error) {
	query := `SELECT ` + resultColumns + ` FROM analysis_results WHERE id = $1`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return record, nil
}

// List implements domain.ResultStore.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*domain.ResultRecord, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM analysis_results
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	result := []*domain.ResultRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, record)
	}

	return result, rows.Err()
}

// Count implements domain.ResultStore.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM analysis_results").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return count, nil
}

// ExportJSON implements domain.ResultStore.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}
	return writeExport(writer, all)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
