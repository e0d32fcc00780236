// Package store is the hand-written database/sql layer over the five
// core tables (sources, raw_pages, jobs, extraction_logs,
// failed_inserts). The teacher generated its query layer with sqlc
// against a package that was never captured by the retrieval pack, so
// this is written directly against database/sql/pgx instead of
// reproducing sqlc codegen; see DESIGN.md.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sqlc-dev/pqtype"

	"jobpipe/internal/model"
)

// Store wraps a shared *sql.DB connection pool, mirroring the
// teacher's Store struct shape.
type Store struct {
	DB *sql.DB
}

func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

// GetSource fetches one source by id.
func (s *Store) GetSource(ctx context.Context, id uuid.UUID) (model.Source, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, careers_url, source_type, status, crawl_frequency_days,
		       parser_hint, last_crawled_at, last_crawl_status, next_run_at,
		       consecutive_failures, consecutive_no_change, leased_until,
		       created_at, updated_at
		FROM sources WHERE id = $1`, id)
	return scanSource(row)
}

// ListDueSources returns up to limit active, unleased sources whose
// next_run_at has passed, oldest next_run_at first.
func (s *Store) ListDueSources(ctx context.Context, now time.Time, limit int) ([]model.Source, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, careers_url, source_type, status, crawl_frequency_days,
		       parser_hint, last_crawled_at, last_crawl_status, next_run_at,
		       consecutive_failures, consecutive_no_change, leased_until,
		       created_at, updated_at
		FROM sources
		WHERE status = 'active'
		  AND next_run_at <= $1
		  AND (leased_until IS NULL OR leased_until < $1)
		ORDER BY next_run_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list due sources: %w", err)
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSourceRows(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// LeaseSource claims a source for runUntil, preventing a second
// scheduler tick (or instance) from picking it up concurrently.
func (s *Store) LeaseSource(ctx context.Context, id uuid.UUID, until time.Time) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE sources SET leased_until = $2 WHERE id = $1`, id, until)
	return err
}

// ReleaseLease clears a source's lease once a run finishes.
func (s *Store) ReleaseLease(ctx context.Context, id uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE sources SET leased_until = NULL WHERE id = $1`, id)
	return err
}

// UpdateSourceAfterRun persists the scheduler's post-run bookkeeping:
// next_run_at, failure/no-change streaks, and the terminal status.
func (s *Store) UpdateSourceAfterRun(ctx context.Context, id uuid.UUID, status string, nextRunAt, lastCrawledAt time.Time, consecutiveFailures, consecutiveNoChange int) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE sources
		SET last_crawl_status = $2, next_run_at = $3, last_crawled_at = $4,
		    consecutive_failures = $5, consecutive_no_change = $6, leased_until = NULL,
		    updated_at = now()
		WHERE id = $1`,
		id, status, nextRunAt, lastCrawledAt, consecutiveFailures, consecutiveNoChange)
	return err
}

// PauseSource sets a source's status to paused, used by the
// scheduler's circuit breaker.
func (s *Store) PauseSource(ctx context.Context, id uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE sources SET status = 'paused', updated_at = now() WHERE id = $1`, id)
	return err
}

// InsertRawPage persists the sidecar row for a blob already written to
// the raw-page store. Callers must call this only after the blob Put
// succeeds, per the rawstore ordering invariant.
func (s *Store) InsertRawPage(ctx context.Context, page model.RawPage) (uuid.UUID, error) {
	headers, err := json.Marshal(page.HTTPHeaders)
	if err != nil {
		return uuid.Nil, err
	}
	if page.ID == uuid.Nil {
		page.ID = uuid.New()
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO raw_pages (id, source_id, url, status, http_headers, storage_path, content_length, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		page.ID, page.SourceID, page.URL, page.Status, pqtype.NullRawMessage{RawMessage: headers, Valid: true},
		page.StoragePath, page.ContentLength, page.FetchedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: insert raw page: %w", err)
	}
	return page.ID, nil
}

// InsertExtractionLog writes the single summary row for one run, per
// SPEC_FULL.md §4.10.
func (s *Store) InsertExtractionLog(ctx context.Context, log model.ExtractionLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	fields, err := json.Marshal(log.ExtractedFields)
	if err != nil {
		return err
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO extraction_logs (
			id, source_id, raw_page_id, url, status, reason, message, extracted_fields,
			found, inserted, updated, skipped, failed, duration_ms, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		log.ID, log.SourceID, nullUUID(log.RawPageID), log.URL, log.Status, log.Reason, log.Message,
		pqtype.NullRawMessage{RawMessage: fields, Valid: true},
		log.Found, log.Inserted, log.Updated, log.Skipped, log.Failed, log.DurationMS, log.CreatedAt)
	return err
}

// InsertFailedInsert records one failure to persist a candidate job.
func (s *Store) InsertFailedInsert(ctx context.Context, f model.FailedInsert) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	payload, err := json.Marshal(f.Payload)
	if err != nil {
		return err
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO failed_inserts (id, source_id, source_url, error, payload, raw_page_id, operation, attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.ID, f.SourceID, f.SourceURL, f.Error, pqtype.NullRawMessage{RawMessage: payload, Valid: true},
		nullUUID(f.RawPageID), f.Operation, f.AttemptAt)
	return err
}

// ResolveFailedInsert is the only permitted mutation of an otherwise
// append-only failed_inserts row.
func (s *Store) ResolveFailedInsert(ctx context.Context, id uuid.UUID, notes string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE failed_inserts SET resolved_at = now(), resolution_notes = $2 WHERE id = $1`, id, notes)
	return err
}

// CoverageRow is one source's coverage aggregate over a window, per
// spec.md §4.10/§6.
type CoverageRow struct {
	SourceID       uuid.UUID
	DiscoveredURLs int
	RowsInserted   int
	RowsUpdated    int
	MismatchPct    float64
	Level          string // "ok", "warning" (>5%), or "critical" (>10%)
}

// Coverage computes, per source, distinct URLs discovered since
// `since` against rows actually inserted/updated, and classifies the
// mismatch ratio per spec.md §4.10 (>5% warning, >10% critical).
func (s *Store) Coverage(ctx context.Context, since time.Time) ([]CoverageRow, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT source_id,
		       count(DISTINCT url) AS discovered,
		       coalesce(sum(inserted), 0) AS inserted,
		       coalesce(sum(updated), 0) AS updated
		FROM extraction_logs
		WHERE created_at >= $1
		GROUP BY source_id`, since)
	if err != nil {
		return nil, fmt.Errorf("store: coverage: %w", err)
	}
	defer rows.Close()

	var out []CoverageRow
	for rows.Next() {
		var r CoverageRow
		if err := rows.Scan(&r.SourceID, &r.DiscoveredURLs, &r.RowsInserted, &r.RowsUpdated); err != nil {
			return nil, err
		}
		if r.DiscoveredURLs > 0 {
			r.MismatchPct = 1 - float64(r.RowsInserted)/float64(r.DiscoveredURLs)
		}
		r.Level = coverageLevel(r.MismatchPct)
		out = append(out, r)
	}
	return out, rows.Err()
}

func coverageLevel(mismatchPct float64) string {
	switch {
	case mismatchPct > 0.10:
		return "critical"
	case mismatchPct > 0.05:
		return "warning"
	default:
		return "ok"
	}
}

// ListExtractionLogs returns the most recent extraction_logs rows for
// a source, newest first.
func (s *Store) ListExtractionLogs(ctx context.Context, sourceID uuid.UUID, limit int) ([]model.ExtractionLog, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, source_id, raw_page_id, url, status, reason, message, extracted_fields,
		       found, inserted, updated, skipped, failed, duration_ms, created_at
		FROM extraction_logs
		WHERE source_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list extraction logs: %w", err)
	}
	defer rows.Close()

	var out []model.ExtractionLog
	for rows.Next() {
		var log model.ExtractionLog
		var rawPageID uuid.NullUUID
		var fields pqtype.NullRawMessage
		if err := rows.Scan(&log.ID, &log.SourceID, &rawPageID, &log.URL, &log.Status, &log.Reason,
			&log.Message, &fields, &log.Found, &log.Inserted, &log.Updated, &log.Skipped,
			&log.Failed, &log.DurationMS, &log.CreatedAt); err != nil {
			return nil, err
		}
		if rawPageID.Valid {
			id := rawPageID.UUID
			log.RawPageID = &id
		}
		if fields.Valid {
			_ = json.Unmarshal(fields.RawMessage, &log.ExtractedFields)
		}
		out = append(out, log)
	}
	return out, rows.Err()
}

// ListFailedInserts returns failed_inserts rows, optionally scoped to
// one source and/or one operation (e.g. "validation"), newest first.
func (s *Store) ListFailedInserts(ctx context.Context, sourceID *uuid.UUID, operation string, limit int) ([]model.FailedInsert, error) {
	query := `
		SELECT id, source_id, source_url, error, payload, raw_page_id, operation,
		       attempt_at, resolved_at, resolution_notes
		FROM failed_inserts
		WHERE ($1::uuid IS NULL OR source_id = $1)
		  AND ($2 = '' OR operation = $2)
		ORDER BY attempt_at DESC
		LIMIT $3`

	var sidArg any
	if sourceID != nil {
		sidArg = *sourceID
	}

	rows, err := s.DB.QueryContext(ctx, query, sidArg, operation, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list failed inserts: %w", err)
	}
	defer rows.Close()

	var out []model.FailedInsert
	for rows.Next() {
		var f model.FailedInsert
		var rawPageID uuid.NullUUID
		var payload pqtype.NullRawMessage
		var resolvedAt sql.NullTime
		var resolutionNotes sql.NullString
		if err := rows.Scan(&f.ID, &f.SourceID, &f.SourceURL, &f.Error, &payload, &rawPageID,
			&f.Operation, &f.AttemptAt, &resolvedAt, &resolutionNotes); err != nil {
			return nil, err
		}
		if rawPageID.Valid {
			id := rawPageID.UUID
			f.RawPageID = &id
		}
		if payload.Valid {
			_ = json.Unmarshal(payload.RawMessage, &f.Payload)
		}
		if resolvedAt.Valid {
			f.ResolvedAt = &resolvedAt.Time
		}
		f.ResolutionNotes = resolutionNotes.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// DeleteExpiredRawPages removes raw_pages rows fetched before cutoff,
// used by retention cleanup. It does not touch the blob store; orphaned
// blobs are scavenged separately since raw_pages rows are the sole
// index of which blobs are still referenced.
func (s *Store) DeleteExpiredRawPages(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM raw_pages WHERE fetched_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: delete expired raw pages: %w", err)
	}
	return res.RowsAffected()
}

// DeleteExpiredExtractionLogs removes extraction_logs rows created
// before cutoff.
func (s *Store) DeleteExpiredExtractionLogs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM extraction_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: delete expired extraction logs: %w", err)
	}
	return res.RowsAffected()
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row *sql.Row) (model.Source, error) {
	return scanSourceGeneric(row)
}

func scanSourceRows(rows *sql.Rows) (model.Source, error) {
	return scanSourceGeneric(rows)
}

func scanSourceGeneric(sc rowScanner) (model.Source, error) {
	var src model.Source
	var lastCrawledAt, leasedUntil sql.NullTime
	var lastCrawlStatus sql.NullString

	err := sc.Scan(
		&src.ID, &src.Name, &src.CareersURL, &src.SourceType, &src.Status,
		&src.CrawlFrequencyDays, &src.ParserHint, &lastCrawledAt, &lastCrawlStatus,
		&src.NextRunAt, &src.ConsecutiveFailures, &src.ConsecutiveNoChange, &leasedUntil,
		&src.CreatedAt, &src.UpdatedAt,
	)
	if err != nil {
		return model.Source{}, fmt.Errorf("store: scan source: %w", err)
	}

	if lastCrawledAt.Valid {
		src.LastCrawledAt = &lastCrawledAt.Time
	}
	if leasedUntil.Valid {
		src.LeasedUntil = &leasedUntil.Time
	}
	src.LastCrawlStatus = lastCrawlStatus.String

	return src, nil
}
