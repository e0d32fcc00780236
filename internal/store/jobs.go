package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"jobpipe/internal/model"
)

// UpsertOutcome classifies what UpsertJob did to one row.
type UpsertOutcome string

const (
	OutcomeInserted UpsertOutcome = "inserted"
	OutcomeUpdated  UpsertOutcome = "updated"
	OutcomeSkipped  UpsertOutcome = "skipped"
)

// UpsertJob performs `INSERT ... ON CONFLICT (source_id, canonical_hash)
// DO UPDATE` restricted to mutable columns; created_at is preserved via
// the EXCLUDED exclusion (it is simply omitted from the SET list). The
// DO UPDATE's WHERE guard only fires when a mutable column actually
// changed, so an unchanged re-crawl classifies as skipped rather than
// updated, per SPEC_FULL.md §4.8.
func (s *Store) UpsertJob(ctx context.Context, tx *sql.Tx, job model.Job) (uuid.UUID, UpsertOutcome, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO jobs (
			id, source_id, title, org_name, apply_url, location_raw, country, country_iso,
			city, latitude, longitude, is_remote, geocoding_source, geocoded_at, deadline,
			salary_raw, description, employment_type, level_norm, mission_tags,
			international_elig, quality_score, quality_grade, quality_factors, quality_issues,
			needs_review, quality_scored_at, canonical_hash, created_at, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
			$21,$22,$23,$24,$25,$26,$27,$28,now(),now()
		)
		ON CONFLICT (source_id, canonical_hash) DO UPDATE SET
			title = EXCLUDED.title,
			org_name = EXCLUDED.org_name,
			apply_url = EXCLUDED.apply_url,
			location_raw = EXCLUDED.location_raw,
			country = EXCLUDED.country,
			country_iso = EXCLUDED.country_iso,
			city = EXCLUDED.city,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			is_remote = EXCLUDED.is_remote,
			geocoding_source = EXCLUDED.geocoding_source,
			geocoded_at = EXCLUDED.geocoded_at,
			deadline = EXCLUDED.deadline,
			salary_raw = EXCLUDED.salary_raw,
			description = EXCLUDED.description,
			employment_type = EXCLUDED.employment_type,
			level_norm = EXCLUDED.level_norm,
			mission_tags = EXCLUDED.mission_tags,
			international_elig = EXCLUDED.international_elig,
			quality_score = EXCLUDED.quality_score,
			quality_grade = EXCLUDED.quality_grade,
			quality_factors = EXCLUDED.quality_factors,
			quality_issues = EXCLUDED.quality_issues,
			needs_review = EXCLUDED.needs_review,
			quality_scored_at = EXCLUDED.quality_scored_at,
			updated_at = now()
		WHERE
			jobs.title IS DISTINCT FROM EXCLUDED.title OR
			jobs.org_name IS DISTINCT FROM EXCLUDED.org_name OR
			jobs.apply_url IS DISTINCT FROM EXCLUDED.apply_url OR
			jobs.location_raw IS DISTINCT FROM EXCLUDED.location_raw OR
			jobs.deadline IS DISTINCT FROM EXCLUDED.deadline OR
			jobs.salary_raw IS DISTINCT FROM EXCLUDED.salary_raw OR
			jobs.description IS DISTINCT FROM EXCLUDED.description OR
			jobs.quality_score IS DISTINCT FROM EXCLUDED.quality_score
		RETURNING id, (xmax = 0) AS inserted`,
		job.ID, job.SourceID, job.Title, job.OrgName, job.ApplyURL, job.LocationRaw,
		job.Country, job.CountryISO, job.City, job.Latitude, job.Longitude, job.IsRemote,
		job.GeocodingSource, job.GeocodedAt, job.Deadline, job.SalaryRaw, job.Description,
		job.EmploymentType, job.LevelNorm, mustJSON(job.MissionTags), job.InternationalElig,
		job.QualityScore, job.QualityGrade, qualityFactorsJSON(job.QualityFactors),
		mustJSON(job.QualityIssues), job.NeedsReview, job.QualityScoredAt, job.CanonicalHash,
	)

	var id uuid.UUID
	var inserted bool
	if err := row.Scan(&id, &inserted); err != nil {
		if err == sql.ErrNoRows {
			existing, findErr := s.findJobID(ctx, tx, job.SourceID, job.CanonicalHash)
			if findErr != nil {
				return uuid.Nil, "", findErr
			}
			return existing, OutcomeSkipped, nil
		}
		return uuid.Nil, "", fmt.Errorf("store: upsert job: %w", err)
	}

	if inserted {
		return id, OutcomeInserted, nil
	}
	return id, OutcomeUpdated, nil
}

func (s *Store) findJobID(ctx context.Context, tx *sql.Tx, sourceID uuid.UUID, canonicalHash string) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRowContext(ctx, `SELECT id FROM jobs WHERE source_id = $1 AND canonical_hash = $2`, sourceID, canonicalHash).Scan(&id)
	return id, err
}

func qualityFactorsJSON(factors map[string]float64) pqtype.NullRawMessage {
	if len(factors) == 0 {
		return pqtype.NullRawMessage{}
	}
	raw, err := json.Marshal(factors)
	if err != nil {
		return pqtype.NullRawMessage{}
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}
}

func mustJSON(v any) pqtype.NullRawMessage {
	raw, err := json.Marshal(v)
	if err != nil || string(raw) == "null" {
		return pqtype.NullRawMessage{}
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}
}
