package extract

import (
	"context"

	"jobpipe/internal/model"
)

// genericSelectors is the fallback CSS selector library consulted
// when a source has no parser_hint entry for a field. These are the
// class/id patterns most career-page templates converge on.
var genericSelectors = map[model.FieldName][]string{
	model.FieldTitle:          {"h1.job-title", "h1[class*=title]", ".job-title", "h1"},
	model.FieldEmployer:       {".company-name", "[class*=employer]", ".org-name"},
	model.FieldLocation:       {".job-location", "[class*=location]"},
	model.FieldDeadline:       {".application-deadline", "[class*=deadline]"},
	model.FieldDescription:    {".job-description", "[class*=description]", "article"},
	model.FieldRequirements:   {".job-requirements", "[class*=requirements]"},
	model.FieldSalary:         {".job-salary", "[class*=salary]"},
	model.FieldEmploymentType: {".employment-type", "[class*=employment-type]"},
	model.FieldPostedOn:       {".posted-on", "[class*=posted]", "time"},
}

// DOMStage resolves each unfilled field against the source's
// parser_hint selector map first, then the generic selector library.
type DOMStage struct{}

func (DOMStage) Name() string { return "dom" }

func (DOMStage) Run(ctx context.Context, payload StagePayload, acc *model.ExtractionResult, budget *Budget) StageVerdict {
	hints := payload.ParserHintSelectors()
	filled := false

	for _, field := range model.AllFieldNames {
		if _, ok := acc.Get(field); ok {
			continue
		}

		if hint, ok := hints[field]; ok && hint != "" {
			if value, found := payload.Select(hint); found {
				acc.Set(field, model.FieldValue{
					Value:      value,
					Source:     model.SourceDOM,
					Confidence: model.StageConfidence[model.SourceDOM],
					RawSnippet: hint,
				})
				filled = true
				continue
			}
		}

		for _, selector := range genericSelectors[field] {
			value, found := payload.Select(selector)
			if !found {
				continue
			}
			acc.Set(field, model.FieldValue{
				Value:      value,
				Source:     model.SourceDOM,
				Confidence: model.StageConfidence[model.SourceDOM],
				RawSnippet: selector,
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
