// Package model holds the core domain types shared across the
// ingestion pipeline: sources, raw pages, extraction results, and the
// persisted Job record.
package model

import (
	"time"

	"github.com/google/uuid"
)

// SourceType enumerates the kinds of career page a Source can be.
type SourceType string

const (
	SourceTypeHTML SourceType = "html"
	SourceTypeRSS  SourceType = "rss"
	SourceTypeAPI  SourceType = "api"
)

// SourceStatus is the lifecycle state of a Source.
type SourceStatus string

const (
	SourceStatusActive  SourceStatus = "active"
	SourceStatusPaused  SourceStatus = "paused"
	SourceStatusDeleted SourceStatus = "deleted"
)

// Source is a configured job-listing entry point.
type Source struct {
	ID                  uuid.UUID
	Name                string
	CareersURL          string
	SourceType          SourceType
	Status              SourceStatus
	CrawlFrequencyDays  int
	ParserHint          string
	LastCrawledAt       *time.Time
	LastCrawlStatus     string
	NextRunAt           time.Time
	ConsecutiveFailures int
	ConsecutiveNoChange int
	LeasedUntil         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// RawPage is an immutable record of one fetch.
type RawPage struct {
	ID            uuid.UUID
	SourceID      uuid.UUID
	URL           string
	Status        int
	HTTPHeaders   map[string]string
	StoragePath   string
	ContentLength int64
	FetchedAt     time.Time
}

// FieldName enumerates the extractable fields of a job posting.
type FieldName string

const (
	FieldTitle          FieldName = "title"
	FieldEmployer       FieldName = "employer"
	FieldLocation       FieldName = "location"
	FieldDeadline       FieldName = "deadline"
	FieldDescription    FieldName = "description"
	FieldRequirements   FieldName = "requirements"
	FieldApplicationURL FieldName = "application_url"
	FieldSalary         FieldName = "salary"
	FieldEmploymentType FieldName = "employment_type"
	FieldPostedOn       FieldName = "posted_on"
)

// AllFieldNames lists every field the cascade can populate, in a
// stable order useful for deterministic iteration/logging.
var AllFieldNames = []FieldName{
	FieldTitle, FieldEmployer, FieldLocation, FieldDeadline,
	FieldDescription, FieldRequirements, FieldApplicationURL,
	FieldSalary, FieldEmploymentType, FieldPostedOn,
}

// FieldSource identifies which cascade stage produced a FieldValue.
type FieldSource string

const (
	SourceJSONLD    FieldSource = "jsonld"
	SourceMeta      FieldSource = "meta"
	SourceDOM       FieldSource = "dom"
	SourceHeuristic FieldSource = "heuristic"
	SourceRegex     FieldSource = "regex"
	SourceAI        FieldSource = "ai"
)

// StageConfidence gives the fixed confidence assigned by each stage,
// per spec.md §4.3.
var StageConfidence = map[FieldSource]float64{
	SourceJSONLD:    0.90,
	SourceMeta:      0.80,
	SourceDOM:       0.70,
	SourceHeuristic: 0.60,
	SourceRegex:     0.50,
	SourceAI:        0.40,
}

// FieldValue is a single extracted field with its provenance.
type FieldValue struct {
	Value      string
	Source     FieldSource
	Confidence float64
	RawSnippet string
}

// ExtractionResult is the strict, in-memory output of the extractor
// cascade for a single candidate posting.
type ExtractionResult struct {
	URL             string
	CanonicalID     string
	ExtractedAt     time.Time
	PipelineVersion string
	Fields          map[FieldName]FieldValue
	IsJob           bool
	ClassifierScore float64
	DedupeHash      string
}

// Get returns the value for a field and whether it is present.
func (r *ExtractionResult) Get(f FieldName) (FieldValue, bool) {
	if r.Fields == nil {
		return FieldValue{}, false
	}
	v, ok := r.Fields[f]
	return v, ok
}

// Set stores fv for field f only if no value is present yet, or the
// candidate has strictly higher confidence; an equal-confidence
// candidate leaves the first value in place. The cascade never lowers
// an existing field's confidence, per spec.md §4.3.
func (r *ExtractionResult) Set(f FieldName, fv FieldValue) {
	if r.Fields == nil {
		r.Fields = make(map[FieldName]FieldValue)
	}
	existing, ok := r.Fields[f]
	if !ok {
		r.Fields[f] = fv
		return
	}
	if fv.Confidence > existing.Confidence {
		r.Fields[f] = fv
	}
}

// ExtractionStatus is the per-run top-level verdict.
type ExtractionStatus string

const (
	StatusOK      ExtractionStatus = "OK"
	StatusPartial ExtractionStatus = "PARTIAL"
	StatusEmpty   ExtractionStatus = "EMPTY"
	StatusDBFail  ExtractionStatus = "DB_FAIL"
)

// ExtractionLog is the single summary row written per run, carrying
// the top-level counters a run surfaces to callers: found/inserted/
// updated/skipped/failed plus duration and a short message.
type ExtractionLog struct {
	ID              uuid.UUID
	SourceID        uuid.UUID
	RawPageID       *uuid.UUID
	URL             string
	Status          ExtractionStatus
	Reason          string
	Message         string
	ExtractedFields []string
	Found           int
	Inserted        int
	Updated         int
	Skipped         int
	Failed          int
	DurationMS      int64
	CreatedAt       time.Time
}

// FailedInsertOperation enumerates why a failed_inserts row exists.
type FailedInsertOperation string

const (
	OpInsert     FailedInsertOperation = "insert"
	OpUpdate     FailedInsertOperation = "update"
	OpValidation FailedInsertOperation = "validation"
	OpProcess    FailedInsertOperation = "process"
)

// FailedInsert records why a candidate job did not persist.
type FailedInsert struct {
	ID              uuid.UUID
	SourceID        uuid.UUID
	SourceURL       string
	Error           string
	Payload         map[string]any
	RawPageID       *uuid.UUID
	Operation       FailedInsertOperation
	AttemptAt       time.Time
	ResolvedAt      *time.Time
	ResolutionNotes string
}

// QualityGrade buckets a quality score per spec.md §3.
type QualityGrade string

const (
	GradeHigh    QualityGrade = "high"
	GradeMedium  QualityGrade = "medium"
	GradeLow     QualityGrade = "low"
	GradeVeryLow QualityGrade = "very_low"
)

// DeriveGrade is a pure function of score, per spec.md §3/§8 property 5.
func DeriveGrade(score float64) QualityGrade {
	switch {
	case score >= 0.85:
		return GradeHigh
	case score >= 0.70:
		return GradeMedium
	case score >= 0.50:
		return GradeLow
	default:
		return GradeVeryLow
	}
}

// Job is a persisted posting, keyed by (source_id, canonical_hash).
type Job struct {
	ID                uuid.UUID
	SourceID          uuid.UUID
	Title             string
	OrgName           string
	ApplyURL          string
	LocationRaw       string
	Country           string
	CountryISO        string
	City              string
	Latitude          *float64
	Longitude         *float64
	IsRemote          bool
	GeocodingSource   string
	GeocodedAt        *time.Time
	Deadline          *time.Time
	SalaryRaw         string
	Description       string
	EmploymentType    string
	LevelNorm         string
	MissionTags       []string
	InternationalElig bool
	QualityScore      float64
	QualityGrade      QualityGrade
	QualityFactors    map[string]float64
	QualityIssues     []string
	NeedsReview       bool
	QualityScoredAt   *time.Time
	CanonicalHash     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
	DeletedBy         string
	DeletionReason    string
}
