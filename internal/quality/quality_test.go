package quality

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"jobpipe/internal/model"
)

func TestScoreJobCompleteListingIsHigh(t *testing.T) {
	future := time.Now().Add(30 * 24 * time.Hour)
	job := model.Job{
		Title:       "Senior Program Officer",
		OrgName:     "Example Foundation",
		ApplyURL:    "https://example.org/jobs/1",
		LocationRaw: "Geneva, Switzerland",
		Country:     "Switzerland",
		Description: strings.Repeat("a", 200),
		Deadline:    &future,
		Latitude:    ptr(46.2),
		Longitude:   ptr(6.1),
	}

	score := ScoreJob(job)

	assert.Equal(t, model.GradeHigh, score.Grade)
	assert.False(t, score.NeedsReview)
	assert.Empty(t, score.Issues)
}

func TestScoreJobBareMinimumIsVeryLow(t *testing.T) {
	job := model.Job{Title: "Analyst"}

	score := ScoreJob(job)

	assert.Equal(t, model.GradeVeryLow, score.Grade)
	assert.True(t, score.NeedsReview)
	assert.Contains(t, score.Issues, "missing:description")
}

func TestScoreJobRemoteCountsAsLocationAndGeocoded(t *testing.T) {
	job := model.Job{
		Title:    "Engineer",
		OrgName:  "Org",
		ApplyURL: "https://example.org/jobs/2",
		IsRemote: true,
	}

	score := ScoreJob(job)

	assert.NotContains(t, score.Issues, "missing:location")
	assert.NotContains(t, score.Issues, "missing:geocoding_present")
}

func TestScoreJobShortDescriptionEarnsHalfCredit(t *testing.T) {
	job := model.Job{
		Title:       "Engineer",
		ApplyURL:    "https://example.org/jobs/3",
		Description: "too short",
	}

	score := ScoreJob(job)

	assert.Contains(t, score.Issues, "short:description")
	assert.Equal(t, 0.05, score.Factors["description"])
}

func TestScoreJobInvalidURLForcesReview(t *testing.T) {
	job := model.Job{
		Title:       "Engineer",
		OrgName:     "Org",
		ApplyURL:    "javascript:void(0)",
		Description: strings.Repeat("a", 200),
	}

	score := ScoreJob(job)

	assert.Contains(t, score.Issues, "invalid_url")
	assert.True(t, score.NeedsReview)
}

func TestScoreJobPastDeadlineForcesReview(t *testing.T) {
	past := time.Now().Add(-24 * time.Hour)
	job := model.Job{
		Title:       "Engineer",
		OrgName:     "Org",
		ApplyURL:    "https://example.org/jobs/4",
		Description: strings.Repeat("a", 200),
		Deadline:    &past,
	}

	score := ScoreJob(job)

	assert.Contains(t, score.Issues, "deadline_in_past")
	assert.True(t, score.NeedsReview)
}

func TestDeriveGradeThresholdsArePure(t *testing.T) {
	assert.Equal(t, model.GradeHigh, model.DeriveGrade(0.85))
	assert.Equal(t, model.GradeMedium, model.DeriveGrade(0.70))
	assert.Equal(t, model.GradeLow, model.DeriveGrade(0.50))
	assert.Equal(t, model.GradeVeryLow, model.DeriveGrade(0.49))
}

func ptr(f float64) *float64 { return &f }
