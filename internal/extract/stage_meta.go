package extract

import (
	"context"

	"jobpipe/internal/model"
)

// metaTagsByField maps a field to the meta/OpenGraph tag names worth
// trying, in priority order.
var metaTagsByField = map[model.FieldName][]string{
	model.FieldTitle:       {"og:title", "title"},
	model.FieldDescription: {"og:description", "description"},
	model.FieldEmployer:    {"og:site_name", "author"},
	model.FieldApplicationURL: {"og:url"},
}

// MetaStage fills fields from meta/OpenGraph tags, run after JSON-LD
// since it is slightly less reliable (often generic site branding
// rather than posting-specific data).
type MetaStage struct{}

func (MetaStage) Name() string { return "meta" }

func (MetaStage) Run(ctx context.Context, payload StagePayload, acc *model.ExtractionResult, budget *Budget) StageVerdict {
	filled := false
	for field, tags := range metaTagsByField {
		if _, ok := acc.Get(field); ok {
			continue
		}
		for _, tag := range tags {
			value, ok := payload.MetaTag(tag)
			if !ok || value == "" {
				continue
			}
			acc.Set(field, model.FieldValue{
				Value:      value,
				Source:     model.SourceMeta,
				Confidence: model.StageConfidence[model.SourceMeta],
			})
			filled = true
			break
		}
	}
	if filled {
		return VerdictFilled
	}
	return VerdictNoop
}
