package searchsink_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobpipe/internal/config"
	"jobpipe/internal/searchsink"
)

func TestNewHTTPSinkFromConfigDisabledReturnsFalse(t *testing.T) {
	sink, ok := searchsink.NewHTTPSinkFromConfig(config.SearchSinkConfig{Enabled: false})
	assert.False(t, ok)
	assert.Nil(t, sink)
}

func TestUpsertSucceedsOnFirstAttempt(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink, ok := searchsink.NewHTTPSinkFromConfig(config.SearchSinkConfig{
		Enabled: true, Endpoint: server.URL, MaxRetries: 3,
	})
	require.True(t, ok)

	err := sink.Upsert(context.Background(), []searchsink.Doc{{ID: "1", Title: "Engineer"}})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestUpsertNoopOnEmptyDocs(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	sink, ok := searchsink.NewHTTPSinkFromConfig(config.SearchSinkConfig{Enabled: true, Endpoint: server.URL})
	require.True(t, ok)

	err := sink.Upsert(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestUpsertReturnsErrorAfterExhaustingRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink, ok := searchsink.NewHTTPSinkFromConfig(config.SearchSinkConfig{
		Enabled: true, Endpoint: server.URL, MaxRetries: 1,
	})
	require.True(t, ok)

	err := sink.Upsert(context.Background(), []searchsink.Doc{{ID: "1"}})
	assert.Error(t, err)
}
