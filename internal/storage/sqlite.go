package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/medifusion-server/internal/domain"
)

// SQLiteStore implements domain.ResultStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite result store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for concurrent readers
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS analysis_results (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		request_id TEXT NOT NULL DEFAULT '',
		patient_id TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		probability REAL NOT NULL,
		fused TEXT,
		analysis TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_batch_id ON analysis_results(batch_id);
	CREATE INDEX IF NOT EXISTS idx_results_patient_id ON analysis_results(patient_id);
	CREATE INDEX IF NOT EXISTS idx_results_created_at ON analysis_results(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save implements domain.ResultStore.
func (s *SQLiteStore) Save(ctx context.Context, record *domain.ResultRecord) error {
	fused, analysis, err := prepareRecord(record)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analysis_results (
			id, batch_id, request_id, patient_id, risk_level, probability,
			fused, analysis, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
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
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

// Get implements domain.ResultStore.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.ResultRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM analysis_results WHERE id = ?`, id)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return record, nil
}

// List implements domain.ResultStore.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*domain.ResultRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+resultColumns+`
		FROM analysis_results
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
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
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM analysis_results").Scan(&count)
	return count, err
}

// ExportJSON implements domain.ResultStore.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}
	return writeExport(writer, all)
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
