package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDateHandlesOrdinalSuffix(t *testing.T) {
	got, ok := ParseDate("January 21st, 2026")
	assert.True(t, ok)
	assert.Equal(t, 2026, got.Year())
	assert.Equal(t, 21, got.Day())
}

func TestParseDateISOLayout(t *testing.T) {
	got, ok := ParseDate("2026-03-15")
	assert.True(t, ok)
	assert.Equal(t, 15, got.Day())
}

func TestParseDateUnrecognizedReturnsFalse(t *testing.T) {
	_, ok := ParseDate("sometime next quarter")
	assert.False(t, ok)
}

func TestSplitLocationDetectsRemote(t *testing.T) {
	loc := SplitLocation("Remote (Anywhere in EU)")
	assert.True(t, loc.IsRemote)
}

func TestSplitLocationParsesCityCountry(t *testing.T) {
	loc := SplitLocation("Nairobi, Kenya")
	assert.Equal(t, "KE", loc.CountryISO)
	assert.Equal(t, "Nairobi", loc.City)
}

func TestNormalizeEmploymentTypeAlias(t *testing.T) {
	assert.Equal(t, "full_time", normalizeEmploymentType("Full-Time"))
	assert.Equal(t, "contract", normalizeEmploymentType("Contractor"))
	assert.Equal(t, "", normalizeEmploymentType(""))
}
