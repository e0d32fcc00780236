package pipeline_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"jobpipe/internal/capabilities"
	"jobpipe/internal/config"
	"jobpipe/internal/dedupe"
	"jobpipe/internal/model"
	"jobpipe/internal/observability"
	"jobpipe/internal/pipeline"
	"jobpipe/internal/rawstore"
	"jobpipe/internal/store"
)

const jobPostingHTML = `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "JobPosting",
  "title": "Senior Backend Engineer",
  "hiringOrganization": {"name": "Acme Research"},
  "description": "We are hiring a senior backend engineer to own our platform. Responsibilities include designing APIs, owning on-call, and mentoring. Qualifications: five years of distributed systems experience. Please apply before the deadline listed below, full-time position, competitive salary.",
  "datePosted": "2026-01-01",
  "validThrough": "2026-12-31",
  "employmentType": "FULL_TIME",
  "jobLocation": {"address": {"addressLocality": "Remote", "addressCountry": "US"}}
}
</script>
</head><body><h1>Senior Backend Engineer</h1></body></html>`

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Fetcher.UserAgent = "jobpipe-test/1.0"
	cfg.Fetcher.HTMLTimeoutMs = 5000
	cfg.Fetcher.HTMLMaxBytes = 1 << 20
	cfg.Fetcher.RetryBackoffMsCSV = "1000,4000"
	cfg.Robots.Respect = false
	cfg.AI.MaxCallsPerTick = 5
	cfg.AI.CacheBackend = "memory"
	cfg.Detail.Enabled = false
	return cfg
}

// TestRunHTMLSourceInsertsJob exercises one full HTML-source run end
// to end: fetch a JSON-LD JobPosting page, classify it as a job,
// normalize/score it, and upsert it, with every store call served by
// sqlmock and the raw page blob written to a temp-dir FSStore.
func TestRunHTMLSourceInsertsJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(jobPostingHTML))
	}))
	defer server.Close()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := store.New(db)
	raw := rawstore.NewFSStore(t.TempDir())
	recorder := observability.NewRecorder(st)
	dedupeEngine := dedupe.NewEngine(st)

	cfg := newTestConfig()
	caps, err := capabilities.Build(cfg)
	if err != nil {
		t.Fatalf("capabilities.Build: %v", err)
	}
	defer caps.Close()

	runner := pipeline.NewRunner(cfg, caps, recorder, dedupeEngine, st, raw, nil)

	source := model.Source{
		ID:                 uuid.New(),
		Name:               "acme-careers",
		CareersURL:         server.URL,
		SourceType:         model.SourceTypeHTML,
		Status:             model.SourceStatusActive,
		CrawlFrequencyDays: 1,
	}

	jobID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO raw_pages")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO jobs")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(jobID, true))
	mock.ExpectCommit()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO extraction_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	outcome := runner.Run(context.Background(), source)

	if outcome.Status != model.StatusOK {
		t.Fatalf("expected status OK, got %s (err=%v)", outcome.Status, outcome.Err)
	}
	if !outcome.Changed {
		t.Fatalf("expected changed=true on first insert")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

// TestRunHTMLSourceSkipsNonJobPage exercises a page with no JSON-LD
// and too little text to classify as a job: the run should come back
// EMPTY with nothing written to the jobs table.
func TestRunHTMLSourceSkipsNonJobPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><p>Welcome to our homepage.</p></body></html>`))
	}))
	defer server.Close()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := store.New(db)
	raw := rawstore.NewFSStore(t.TempDir())
	recorder := observability.NewRecorder(st)
	dedupeEngine := dedupe.NewEngine(st)

	cfg := newTestConfig()
	caps, err := capabilities.Build(cfg)
	if err != nil {
		t.Fatalf("capabilities.Build: %v", err)
	}
	defer caps.Close()

	runner := pipeline.NewRunner(cfg, caps, recorder, dedupeEngine, st, raw, nil)

	source := model.Source{
		ID:                 uuid.New(),
		Name:               "empty-careers",
		CareersURL:         server.URL,
		SourceType:         model.SourceTypeHTML,
		Status:             model.SourceStatusActive,
		CrawlFrequencyDays: 1,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO raw_pages")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO extraction_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	outcome := runner.Run(context.Background(), source)

	if outcome.Status != model.StatusEmpty {
		t.Fatalf("expected status EMPTY, got %s", outcome.Status)
	}
	if outcome.Changed {
		t.Fatalf("expected changed=false when nothing classified as a job")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
