package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jobpipe/internal/model"
)

type fakePayload struct {
	jsonld    []string
	meta      map[string]string
	selectors map[string]string
	rawHTML   string
	hints     map[model.FieldName]string
	url       string
}

func (p fakePayload) RawHTML() string            { return p.rawHTML }
func (p fakePayload) JSONLDBlocks() []string     { return p.jsonld }
func (p fakePayload) MetaTag(name string) (string, bool) {
	v, ok := p.meta[name]
	return v, ok
}
func (p fakePayload) Select(selector string) (string, bool) {
	v, ok := p.selectors[selector]
	return v, ok
}
func (p fakePayload) ParserHintSelectors() map[model.FieldName]string { return p.hints }
func (p fakePayload) SourceURL() string                               { return p.url }

func TestCascadeJSONLDWinsOverMeta(t *testing.T) {
	payload := fakePayload{
		jsonld: []string{`{"@type":"JobPosting","title":"Program Officer"}`},
		meta:   map[string]string{"og:title": "Careers at Example"},
	}

	acc := &model.ExtractionResult{}
	cascade := DefaultCascade(nil)
	cascade.Run(context.Background(), payload, acc, NewBudget(0, false))

	title, ok := acc.Get(model.FieldTitle)
	require.True(t, ok)
	assert.Equal(t, "Program Officer", title.Value)
	assert.Equal(t, model.SourceJSONLD, title.Source)
}

func TestCascadeNeverLowersConfidence(t *testing.T) {
	acc := &model.ExtractionResult{}
	acc.Set(model.FieldTitle, model.FieldValue{Value: "From JSON-LD", Source: model.SourceJSONLD, Confidence: 0.90})
	acc.Set(model.FieldTitle, model.FieldValue{Value: "From regex", Source: model.SourceRegex, Confidence: 0.50})

	title, ok := acc.Get(model.FieldTitle)
	require.True(t, ok)
	assert.Equal(t, "From JSON-LD", title.Value)
}

func TestCascadeDOMFallsBackToGenericSelectors(t *testing.T) {
	payload := fakePayload{
		selectors: map[string]string{"h1": "Senior Analyst"},
	}

	acc := &model.ExtractionResult{}
	cascade := DefaultCascade(nil)
	cascade.Run(context.Background(), payload, acc, NewBudget(0, false))

	title, ok := acc.Get(model.FieldTitle)
	require.True(t, ok)
	assert.Equal(t, "Senior Analyst", title.Value)
	assert.Equal(t, model.SourceDOM, title.Source)
}

func TestClassifyCandidateScoresJobLikeContent(t *testing.T) {
	acc := &model.ExtractionResult{}
	acc.Set(model.FieldTitle, model.FieldValue{Value: "Program Officer", Source: model.SourceDOM, Confidence: 0.7})
	acc.Set(model.FieldApplicationURL, model.FieldValue{Value: "https://example.org/apply", Source: model.SourceDOM, Confidence: 0.7})
	acc.Set(model.FieldDescription, model.FieldValue{
		Value:  "We are looking for qualified candidates to apply. Responsibilities include managing the application process and reviewing qualifications for this full-time position with a competitive salary.",
		Source: model.SourceDOM, Confidence: 0.7,
	})

	ClassifyCandidate(acc)

	assert.True(t, acc.IsJob)
	assert.Greater(t, acc.ClassifierScore, 0.5)
}
