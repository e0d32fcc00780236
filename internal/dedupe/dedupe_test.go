package dedupe_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobpipe/internal/dedupe"
	"jobpipe/internal/model"
	"jobpipe/internal/store"
	"jobpipe/internal/validate"
)

func TestUpsertTalliesOutcomesAcrossBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := store.New(db)
	engine := dedupe.NewEngine(s)
	sourceID := uuid.New()

	candidates := []validate.Candidate{
		{Job: model.Job{SourceID: sourceID, Title: "A", ApplyURL: "https://x/1", CanonicalHash: "h1"}},
		{Job: model.Job{SourceID: sourceID, Title: "B", ApplyURL: "https://x/2", CanonicalHash: "h2"}},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO jobs")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(uuid.New(), true))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO jobs")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(uuid.New(), false))
	mock.ExpectCommit()

	report := engine.Upsert(context.Background(), sourceID, candidates)

	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, report.Updated)
	assert.Empty(t, report.Failed)
}

func TestUpsertFallsBackToRowByRowOnBatchFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := store.New(db)
	engine := dedupe.NewEngine(s)
	sourceID := uuid.New()

	candidates := []validate.Candidate{
		{Job: model.Job{SourceID: sourceID, Title: "A", ApplyURL: "https://x/1", CanonicalHash: "h1"}},
		{Job: model.Job{SourceID: sourceID, Title: "B", ApplyURL: "https://x/2", CanonicalHash: "h2"}},
	}

	// Batch transaction: first row ok, second row errors, whole batch rolled back.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO jobs")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(uuid.New(), true))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO jobs")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	// Row-by-row retry: both candidates get their own transaction.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO jobs")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(uuid.New(), true))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO jobs")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	report := engine.Upsert(context.Background(), sourceID, candidates)

	assert.Equal(t, 1, report.Inserted)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "B", report.Failed[0].Candidate.Job.Title)
}

func TestFailedInsertForBuildsLedgerRow(t *testing.T) {
	sourceID := uuid.New()
	r := dedupe.RowReport{
		Candidate: validate.Candidate{Job: model.Job{Title: "A", ApplyURL: "https://x/1"}, SourceURL: "https://x"},
		Err:       assert.AnError,
	}

	fi := dedupe.FailedInsertFor(sourceID, r)
	assert.Equal(t, sourceID, fi.SourceID)
	assert.Equal(t, model.OpInsert, fi.Operation)
	assert.NotEmpty(t, fi.Error)
	assert.Equal(t, "A", fi.Payload["title"])
}
