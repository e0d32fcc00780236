package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jobpipe/internal/model"
)

func TestValidateRejectsMissingTitle(t *testing.T) {
	res := Validate([]Candidate{
		{Job: model.Job{ApplyURL: "https://example.org/a", CanonicalHash: "h1"}},
	})

	require.Len(t, res.Invalid, 1)
	assert.Empty(t, res.Valid)
	assert.Equal(t, 1, res.Stats.Rejected)
}

func TestValidateFlagsWithinBatchDuplicates(t *testing.T) {
	jobs := []Candidate{
		{Job: model.Job{Title: "Analyst", ApplyURL: "https://example.org/a", CanonicalHash: "same"}},
		{Job: model.Job{Title: "Analyst", ApplyURL: "https://example.org/a", CanonicalHash: "same"}},
	}

	res := Validate(jobs)

	require.Len(t, res.Valid, 1)
	require.Len(t, res.Invalid, 1)
	assert.Equal(t, 1, res.Stats.DupsInBatch)
}

func TestValidateEmitsSoftWarningsWithoutRejecting(t *testing.T) {
	res := Validate([]Candidate{
		{Job: model.Job{Title: "Analyst", ApplyURL: "https://example.org/a", CanonicalHash: "h1"}},
	})

	require.Len(t, res.Valid, 1)
	assert.NotEmpty(t, res.Warnings[0])
}

func TestValidateRejectsShortTitle(t *testing.T) {
	res := Validate([]Candidate{
		{Job: model.Job{Title: "X", ApplyURL: "https://example.org/a", CanonicalHash: "h1"}},
	})

	require.Len(t, res.Invalid, 1)
	assert.Empty(t, res.Valid)
}

func TestValidateRejectsUnusableApplyURL(t *testing.T) {
	res := Validate([]Candidate{
		{Job: model.Job{Title: "Analyst", ApplyURL: "javascript:void(0)", CanonicalHash: "h1"}},
	})

	require.Len(t, res.Invalid, 1)
	assert.Empty(t, res.Valid)
}
