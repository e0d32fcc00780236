package extract

import (
	"context"
	"regexp"

	"jobpipe/internal/model"
)

var (
	salaryRegex = regexp.MustCompile(`(?i)(USD|EUR|GBP|CHF|\$|£|€)\s?[\d,]+(\.\d+)?\s?(-|to)\s?(USD|EUR|GBP|CHF|\$|£|€)?\s?[\d,]+(\.\d+)?`)
	deadlineRegex = regexp.MustCompile(`\b\d{1,2}[\s/.\-](January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec|\d{1,2})[\s/.\-]\d{2,4}\b`)
)

// RegexStage is the last rule-based stage: loose pattern matches over
// the raw text for fields the DOM/heuristic stages still could not
// find. It has the lowest confidence of any non-AI stage because
// these patterns can match incidental text unrelated to the posting.
type RegexStage struct{}

func (RegexStage) Name() string { return "regex" }

func (RegexStage) Run(ctx context.Context, payload StagePayload, acc *model.ExtractionResult, budget *Budget) StageVerdict {
	text := payload.RawHTML()
	if text == "" {
		return VerdictNoop
	}

	filled := false

	if _, ok := acc.Get(model.FieldSalary); !ok {
		if m := salaryRegex.FindString(text); m != "" {
			acc.Set(model.FieldSalary, model.FieldValue{
				Value:      m,
				Source:     model.SourceRegex,
				Confidence: model.StageConfidence[model.SourceRegex],
			})
			filled = true
		}
	}

	if _, ok := acc.Get(model.FieldDeadline); !ok {
		if m := deadlineRegex.FindString(text); m != "" {
			acc.Set(model.FieldDeadline, model.FieldValue{
				Value:      m,
				Source:     model.SourceRegex,
				Confidence: model.StageConfidence[model.SourceRegex],
			})
			filled = true
		}
	}

	if filled {
		return VerdictFilled
	}
	return VerdictNoop
}
