package capabilities_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobpipe/internal/capabilities"
	"jobpipe/internal/config"
)

func TestBuildWithEverythingDisabledStillWiresMemoryCache(t *testing.T) {
	cfg := &config.Config{
		AI:       config.AIConfig{DefaultProvider: ""},
		Geocoder: config.GeocoderConfig{Enabled: false},
	}

	caps, err := capabilities.Build(cfg)
	require.NoError(t, err)

	assert.Nil(t, caps.AI)
	assert.Nil(t, caps.Geocoder)
	assert.Nil(t, caps.Enricher)
	assert.NotNil(t, caps.AICache)
	assert.NoError(t, caps.Close())
}

func TestBuildResolvesGeocoderAPIKeyFromEnv(t *testing.T) {
	t.Setenv("GEOCODER_TEST_KEY", "sekret")

	cfg := &config.Config{
		Geocoder: config.GeocoderConfig{
			Enabled:       true,
			Provider:      "google",
			APIKey:        "SECRET:GEOCODER_TEST_KEY",
			RatePerSecond: 5,
			CacheSize:     100,
		},
	}

	caps, err := capabilities.Build(cfg)
	require.NoError(t, err)
	assert.NotNil(t, caps.Geocoder)
	assert.NotNil(t, caps.Enricher)
	assert.NotNil(t, caps.GeocodeLimiter)
}

func TestNewAIBudgetUsesConfiguredCeiling(t *testing.T) {
	cfg := &config.Config{AI: config.AIConfig{MaxCallsPerTick: 3}}
	caps, err := capabilities.Build(cfg)
	require.NoError(t, err)

	budget := caps.NewAIBudget()
	for i := 0; i < 3; i++ {
		assert.True(t, budget.Take())
	}
	assert.False(t, budget.Take())
}
