// Package observability wraps the store's extraction_logs/
// failed_inserts writers and the coverage aggregate behind a
// narrower Recorder surface, the seam the scheduler's RunFunc and the
// admin RPCs both depend on.
package observability

import (
	"context"
	"time"

	"github.com/google/uuid"

	"jobpipe/internal/model"
	"jobpipe/internal/store"
)

// Recorder writes the one extraction_logs row per run and any
// failed_inserts rows it produced, and serves the coverage aggregate.
type Recorder struct {
	store *store.Store
}

func NewRecorder(s *store.Store) *Recorder {
	return &Recorder{store: s}
}

// RunSummary is everything one source run needs to report, matching
// the counters a run surfaces per spec.md §5 (`found, inserted,
// updated, skipped, failed, duration_ms, message`).
type RunSummary struct {
	SourceID        uuid.UUID
	RawPageID       *uuid.UUID
	URL             string
	Status          model.ExtractionStatus
	Reason          string
	Message         string
	ExtractedFields []string
	Found           int
	Inserted        int
	Updated         int
	Skipped         int
	Failed          int
	Duration        time.Duration
}

// RecordRun writes the run's single extraction_logs row. Called
// exactly once per run regardless of outcome, including fetch
// failures (RawPageID nil in that case).
func (r *Recorder) RecordRun(ctx context.Context, s RunSummary) error {
	return r.store.InsertExtractionLog(ctx, model.ExtractionLog{
		SourceID:        s.SourceID,
		RawPageID:       s.RawPageID,
		URL:             s.URL,
		Status:          s.Status,
		Reason:          s.Reason,
		Message:         truncateMessage(s.Message),
		ExtractedFields: s.ExtractedFields,
		Found:           s.Found,
		Inserted:        s.Inserted,
		Updated:         s.Updated,
		Skipped:         s.Skipped,
		Failed:          s.Failed,
		DurationMS:      s.Duration.Milliseconds(),
		CreatedAt:       time.Now().UTC(),
	})
}

// RecordFailedInsert appends one failed_inserts row. These rows are
// append-only except for admin resolution.
func (r *Recorder) RecordFailedInsert(ctx context.Context, f model.FailedInsert) error {
	if f.AttemptAt.IsZero() {
		f.AttemptAt = time.Now().UTC()
	}
	return r.store.InsertFailedInsert(ctx, f)
}

// ResolveFailedInsert marks a failed_inserts row resolved, the only
// mutation the admin path may make to an otherwise append-only table.
func (r *Recorder) ResolveFailedInsert(ctx context.Context, id uuid.UUID, notes string) error {
	return r.store.ResolveFailedInsert(ctx, id, notes)
}

// CoverageWindow is the coverage aggregate exposed over GET
// /observability/coverage.
type CoverageWindow struct {
	SourceID       uuid.UUID `json:"sourceId"`
	DiscoveredURLs int       `json:"discoveredUrls"`
	RowsInserted   int       `json:"rowsInserted"`
	RowsUpdated    int       `json:"rowsUpdated"`
	MismatchPct    float64   `json:"mismatchPct"`
	Level          string    `json:"level"`
}

// Coverage reports the discovered/inserted/updated aggregate over the
// last `hours` for every source with activity in that window.
func (r *Recorder) Coverage(ctx context.Context, hours int) ([]CoverageWindow, error) {
	if hours <= 0 {
		hours = 24
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	rows, err := r.store.Coverage(ctx, since)
	if err != nil {
		return nil, err
	}

	out := make([]CoverageWindow, 0, len(rows))
	for _, row := range rows {
		out = append(out, CoverageWindow{
			SourceID:       row.SourceID,
			DiscoveredURLs: row.DiscoveredURLs,
			RowsInserted:   row.RowsInserted,
			RowsUpdated:    row.RowsUpdated,
			MismatchPct:    row.MismatchPct,
			Level:          row.Level,
		})
	}
	return out, nil
}

// RecentLogs returns a source's most recent extraction_logs rows, for
// GET /sources/:id/logs.
func (r *Recorder) RecentLogs(ctx context.Context, sourceID uuid.UUID, limit int) ([]model.ExtractionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.store.ListExtractionLogs(ctx, sourceID, limit)
}

// ValidationErrors returns failed_inserts rows filtered to
// operation="validation", for GET /observability/validation-errors.
func (r *Recorder) ValidationErrors(ctx context.Context, sourceID *uuid.UUID, limit int) ([]model.FailedInsert, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.store.ListFailedInserts(ctx, sourceID, string(model.OpValidation), limit)
}

// truncateMessage caps the human-readable summary at 200 characters
// per spec.md §5.
func truncateMessage(msg string) string {
	const maxLen = 200
	if len(msg) <= maxLen {
		return msg
	}
	return msg[:maxLen]
}
