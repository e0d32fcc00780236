package store_test

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
	"jobpipe/internal/store"
)

func TestListDueSourcesScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := store.New(db)
	now := time.Now().UTC()
	id := uuid.New()

	rows := sqlmock.NewRows([]string{
		"id", "name", "careers_url", "source_type", "status", "crawl_frequency_days",
		"parser_hint", "last_crawled_at", "last_crawl_status", "next_run_at",
		"consecutive_failures", "consecutive_no_change", "leased_until",
		"created_at", "updated_at",
	}).AddRow(id, "Acme Careers", "https://acme.example/careers", "html", "active", 1,
		"", nil, nil, now, 0, 0, nil, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sources")).
		WithArgs(now, 10).
		WillReturnRows(rows)

	sources, err := s.ListDueSources(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, id, sources[0].ID)
	assert.Equal(t, "Acme Careers", sources[0].Name)
}

func TestCoverageClassifiesMismatchLevel(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := store.New(db)
	sourceID := uuid.New()
	since := time.Now().Add(-24 * time.Hour)

	rows := sqlmock.NewRows([]string{"source_id", "discovered", "inserted", "updated"}).
		AddRow(sourceID, 100, 85, 5)

	mock.ExpectQuery(regexp.QuoteMeta("FROM extraction_logs")).
		WithArgs(since).
		WillReturnRows(rows)

	cov, err := s.Coverage(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, cov, 1)
	assert.Equal(t, 100, cov[0].DiscoveredURLs)
	assert.InDelta(t, 0.15, cov[0].MismatchPct, 0.0001)
	assert.Equal(t, "critical", cov[0].Level)
}

func TestUpsertJobClassifiesInsertedVsSkipped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := store.New(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO jobs")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(uuid.New(), true))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	job := model.Job{
		SourceID:      uuid.New(),
		Title:         "Software Engineer",
		OrgName:       "Acme",
		ApplyURL:      "https://acme.example/jobs/1",
		CanonicalHash: "deadbeef",
	}

	_, outcome, err := s.UpsertJob(context.Background(), tx, job)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, store.OutcomeInserted, outcome)
}
