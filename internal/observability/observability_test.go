package observability_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobpipe/internal/model"
	"jobpipe/internal/observability"
	"jobpipe/internal/store"
)

func TestRecordRunTruncatesLongMessage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := store.New(db)
	rec := observability.NewRecorder(s)

	longMsg := make([]byte, 500)
	for i := range longMsg {
		longMsg[i] = 'x'
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO extraction_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = rec.RecordRun(context.Background(), observability.RunSummary{
		SourceID: uuid.New(),
		URL:      "https://acme.example/careers",
		Status:   model.StatusOK,
		Message:  string(longMsg),
		Found:    10,
		Inserted: 8,
		Duration: 2 * time.Second,
	})
	require.NoError(t, err)
}

func TestCoverageMapsLevels(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := store.New(db)
	rec := observability.NewRecorder(s)
	sourceID := uuid.New()

	rows := sqlmock.NewRows([]string{"source_id", "discovered", "inserted", "updated"}).
		AddRow(sourceID, 50, 49, 0)

	mock.ExpectQuery(regexp.QuoteMeta("FROM extraction_logs")).
		WillReturnRows(rows)

	cov, err := rec.Coverage(context.Background(), 24)
	require.NoError(t, err)
	require.Len(t, cov, 1)
	assert.Equal(t, "ok", cov[0].Level)
}

func TestValidationErrorsFiltersByOperation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := store.New(db)
	rec := observability.NewRecorder(s)

	rows := sqlmock.NewRows([]string{
		"id", "source_id", "source_url", "error", "payload", "raw_page_id", "operation",
		"attempt_at", "resolved_at", "resolution_notes",
	}).AddRow(uuid.New(), uuid.New(), "https://acme.example/1", "missing title", []byte(`{}`),
		nil, "validation", time.Now(), nil, "")

	mock.ExpectQuery(regexp.QuoteMeta("FROM failed_inserts")).
		WillReturnRows(rows)

	out, err := rec.ValidationErrors(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, model.OpValidation, out[0].Operation)
}
