package llm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobpipe/internal/llm"
)

func TestMemoryResponseCacheRoundTripsExtractResult(t *testing.T) {
	cache := llm.NewMemoryResponseCache()
	ctx := context.Background()

	req := llm.ExtractRequest{URL: "https://acme.example/jobs/1", Markdown: "# Software Engineer"}
	key := llm.ExtractKey(req)

	_, ok := cache.GetExtract(ctx, key)
	assert.False(t, ok)

	cache.PutExtract(ctx, key, llm.ExtractResult{Fields: map[string]any{"title": "Software Engineer"}})

	got, ok := cache.GetExtract(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "Software Engineer", got.Fields["title"])
}

func TestExtractKeyDiffersOnContent(t *testing.T) {
	a := llm.ExtractKey(llm.ExtractRequest{URL: "https://acme.example/1", Markdown: "foo"})
	b := llm.ExtractKey(llm.ExtractRequest{URL: "https://acme.example/1", Markdown: "bar"})
	assert.NotEqual(t, a, b)
}

func TestNormalizeKeyStableForSameInput(t *testing.T) {
	a := llm.NormalizeKey(llm.NormalizeRequest{FieldName: "deadline", RawValue: "next Friday"})
	b := llm.NormalizeKey(llm.NormalizeRequest{FieldName: "deadline", RawValue: "next Friday"})
	assert.Equal(t, a, b)
}
