package extract

import (
	"context"
	"fmt"

	"jobpipe/internal/llm"
	"jobpipe/internal/model"
)

// aiFieldSpecs lists the fields worth asking the model for when
// rule-based stages leave gaps.
var aiFieldSpecs = []llm.FieldSpec{
	{Name: "title", Description: "job title", Type: "string"},
	{Name: "employer", Description: "hiring organization name", Type: "string"},
	{Name: "location", Description: "job location (city, country, or Remote)", Type: "string"},
	{Name: "deadline", Description: "application deadline", Type: "string"},
	{Name: "description", Description: "job description summary", Type: "string"},
	{Name: "salary", Description: "salary or compensation range", Type: "string"},
	{Name: "employment_type", Description: "full-time, part-time, contract, etc.", Type: "string"},
}

// AIStage is the cascade's last resort: it asks the configured LLM to
// fill whatever fields are still missing. It is a no-op when no
// client is configured or the run's Budget is exhausted, never an
// error — AI fallback is optional by design. A response cache lets a
// re-crawl of unchanged content skip the call (and the budget charge)
// entirely.
type AIStage struct {
	client llm.Client
	cache  *llm.ResponseCache
}

func NewAIStage(client llm.Client) *AIStage {
	return &AIStage{client: client}
}

// NewAIStageWithCache is NewAIStage plus a ResponseCache consulted
// before spending budget on an identical request.
func NewAIStageWithCache(client llm.Client, cache *llm.ResponseCache) *AIStage {
	return &AIStage{client: client, cache: cache}
}

func (s *AIStage) Name() string { return "ai" }

func (s *AIStage) Run(ctx context.Context, payload StagePayload, acc *model.ExtractionResult, budget *Budget) StageVerdict {
	if s.client == nil {
		return VerdictSkipped
	}

	missing := missingFields(acc)
	if len(missing) == 0 {
		return VerdictNoop
	}

	text := payload.RawHTML()
	if text == "" {
		return VerdictNoop
	}

	req := llm.ExtractRequest{
		URL:      payload.SourceURL(),
		Markdown: text,
		Fields:   aiFieldSpecs,
	}

	var cacheKey string
	if s.cache != nil {
		cacheKey = llm.ExtractKey(req)
		if cached, ok := s.cache.GetExtract(ctx, cacheKey); ok {
			return applyExtractResult(cached, missing, acc)
		}
	}

	if !budget.Take() {
		return VerdictSkipped
	}

	res, err := s.client.ExtractFields(ctx, req)
	if err != nil {
		return VerdictSkipped
	}

	if s.cache != nil {
		s.cache.PutExtract(ctx, cacheKey, res)
	}

	return applyExtractResult(res, missing, acc)
}

func applyExtractResult(res llm.ExtractResult, missing []model.FieldName, acc *model.ExtractionResult) StageVerdict {
	filled := false
	for _, field := range missing {
		raw, ok := res.Fields[string(field)]
		if !ok {
			continue
		}
		value := fmt.Sprintf("%v", raw)
		if value == "" || value == "<nil>" {
			continue
		}
		acc.Set(field, model.FieldValue{
			Value:      value,
			Source:     model.SourceAI,
			Confidence: model.StageConfidence[model.SourceAI],
		})
		filled = true
	}

	if filled {
		return VerdictFilled
	}
	return VerdictNoop
}

func missingFields(acc *model.ExtractionResult) []model.FieldName {
	var missing []model.FieldName
	for _, f := range model.AllFieldNames {
		if _, ok := acc.Get(f); !ok {
			missing = append(missing, f)
		}
	}
	return missing
}
