// Package dedupe batches validated candidates into the jobs table
// through the store's UPSERT, retrying failed batches one row at a
// time so a single bad row cannot sink an entire batch.
package dedupe

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"jobpipe/internal/model"
	"jobpipe/internal/store"
	"jobpipe/internal/validate"
)

const maxBatchSize = 500

// RowReport is the outcome of persisting one candidate.
type RowReport struct {
	Candidate validate.Candidate
	JobID     uuid.UUID
	Outcome   store.UpsertOutcome
	Err       error
}

// BatchReport summarizes one Upsert call across every batch.
type BatchReport struct {
	Inserted int
	Updated  int
	Skipped  int
	Failed   []RowReport
	JobIDs   []uuid.UUID
}

// Engine applies validated candidates to the jobs table.
type Engine struct {
	store *store.Store
}

func NewEngine(s *store.Store) *Engine {
	return &Engine{store: s}
}

// Upsert persists validJobs in batches of at most 500, one
// transaction per batch. A batch whose transaction fails to commit is
// rolled back and retried row-by-row (batch size 1) so a single
// poison row does not block its batch-mates.
func (e *Engine) Upsert(ctx context.Context, sourceID uuid.UUID, jobs []validate.Candidate) BatchReport {
	var report BatchReport

	for start := 0; start < len(jobs); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(jobs) {
			end = len(jobs)
		}
		batch := jobs[start:end]

		rows, err := e.runBatch(ctx, batch)
		if err != nil {
			rows = e.runRowByRow(ctx, batch)
		}

		for _, r := range rows {
			if r.Err != nil {
				report.Failed = append(report.Failed, r)
				continue
			}
			switch r.Outcome {
			case store.OutcomeInserted:
				report.Inserted++
			case store.OutcomeUpdated:
				report.Updated++
			case store.OutcomeSkipped:
				report.Skipped++
			}
			report.JobIDs = append(report.JobIDs, r.JobID)
		}
	}

	return report
}

func (e *Engine) runBatch(ctx context.Context, batch []validate.Candidate) ([]RowReport, error) {
	tx, err := e.store.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("dedupe: begin tx: %w", err)
	}

	rows := make([]RowReport, 0, len(batch))
	for _, c := range batch {
		id, outcome, err := e.store.UpsertJob(ctx, tx, c.Job)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		rows = append(rows, RowReport{Candidate: c, JobID: id, Outcome: outcome})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("dedupe: commit: %w", err)
	}

	return rows, nil
}

// runRowByRow retries each candidate in its own transaction after a
// batch transaction failed, so the candidates before and after the
// poison row still persist.
func (e *Engine) runRowByRow(ctx context.Context, batch []validate.Candidate) []RowReport {
	rows := make([]RowReport, 0, len(batch))
	for _, c := range batch {
		id, outcome, err := e.upsertOne(ctx, c)
		rows = append(rows, RowReport{Candidate: c, JobID: id, Outcome: outcome, Err: err})
	}
	return rows
}

func (e *Engine) upsertOne(ctx context.Context, c validate.Candidate) (uuid.UUID, store.UpsertOutcome, error) {
	tx, err := e.store.DB.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, "", err
	}

	id, outcome, err := e.store.UpsertJob(ctx, tx, c.Job)
	if err != nil {
		_ = tx.Rollback()
		return uuid.Nil, "", err
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, "", err
	}
	return id, outcome, nil
}

// FailedInsertFor builds the model.FailedInsert row for a row that
// could not be persisted even at batch size 1.
func FailedInsertFor(sourceID uuid.UUID, r RowReport) model.FailedInsert {
	payload := map[string]any{
		"title":     r.Candidate.Job.Title,
		"apply_url": r.Candidate.Job.ApplyURL,
	}
	errMsg := ""
	if r.Err != nil {
		errMsg = r.Err.Error()
	}
	return model.FailedInsert{
		SourceID:  sourceID,
		SourceURL: r.Candidate.SourceURL,
		Error:     errMsg,
		Payload:   payload,
		Operation: model.OpInsert,
	}
}
