package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medifusion-server/internal/domain"
)

var resultColumnNames = []string{"id", "batch_id", "request_id", "patient_id", "fused", "analysis", "created_at"}

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store, mock
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO analysis_results")).
		WithArgs(
			sqlmock.AnyArg(), "batch-1", "req-1", "P1",
			"MODERATE RISK", 0.75,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	record := sampleRecord("P1")
	err := store.Save(context.Background(), record)

	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveError(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO analysis_results").
		WillReturnError(errors.New("connection reset"))

	err := store.Save(context.Background(), sampleRecord("P1"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save result")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	rows := sqlmock.NewRows(resultColumnNames).AddRow(
		"id-1", "batch-1", "", "P1",
		[]byte(`{"feat1":0.5,"tumor_size_cm":6,"has_brca2":1}`),
		[]byte(`{"probability":0.9,"risk_level":"HIGH RISK","diagnoses":[],"anomalies":[],"recommendations":[],"confidence":"high"}`),
		created,
	)
	mock.ExpectQuery("SELECT (.+) FROM analysis_results WHERE id = \\$1").
		WithArgs("id-1").
		WillReturnRows(rows)

	got, err := store.Get(context.Background(), "id-1")

	require.NoError(t, err)
	assert.Equal(t, "P1", got.PatientID)
	require.NotNil(t, got.Fused)
	assert.Equal(t, 0.5, got.Fused.Feat1)
	assert.Equal(t, 6.0, got.Fused.TumorSizeCM)
	assert.Equal(t, 1, got.Fused.HasBRCA2)
	assert.Equal(t, domain.HIGH_RISK, got.Analysis.RiskLevel)
	assert.Equal(t, domain.HIGH, got.Analysis.Confidence)
	assert.Equal(t, created, got.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT (.+) FROM analysis_results WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(resultColumnNames))

	_, err := store.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListNullFused(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(resultColumnNames).
		AddRow("id-2", "batch-1", "", "Patient_1", nil,
			[]byte(`{"probability":0.5,"risk_level":"ERROR","diagnoses":[{"condition":"Processing Error","confidence":0}],"anomalies":["Error: boom"],"recommendations":["Please check input data"],"confidence":"low"}`),
			now).
		AddRow("id-1", "batch-1", "", "P0", []byte(`{"feat1":1}`),
			[]byte(`{"probability":0.3,"risk_level":"VERY LOW RISK","diagnoses":[],"anomalies":[],"recommendations":[],"confidence":"medium"}`),
			now.Add(-time.Minute))
	mock.ExpectQuery("SELECT (.+) FROM analysis_results ORDER BY created_at DESC").
		WithArgs(10, 0).
		WillReturnRows(rows)

	got, err := store.List(context.Background(), 10, 0)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].Fused)
	assert.Equal(t, domain.RISK_ERROR, got[0].Analysis.RiskLevel)
	require.NotNil(t, got[1].Fused)
	assert.Equal(t, 1.0, got[1].Fused.Feat1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCorruptAnalysis(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	rows := sqlmock.NewRows(resultColumnNames).
		AddRow("id-1", "batch-1", "", "P0", nil, []byte(`not json`), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM analysis_results").
		WithArgs(10, 0).
		WillReturnRows(rows)

	_, err := store.List(context.Background(), 10, 0)

	assert.Error(t, err)
}

func TestPostgresStore_Count(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM analysis_results")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	count, err := store.Count(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	mock.ExpectClose()

	assert.NoError(t, store.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
