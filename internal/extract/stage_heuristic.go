package extract

import (
	"context"
	"regexp"
	"strings"

	"jobpipe/internal/model"
)

// labelPatterns matches "Label: value" / "Label - value" lines found
// in a raw text blob, for sources whose markup carries no useful
// class names at all.
var labelPatterns = map[model.FieldName][]*regexp.Regexp{
	model.FieldEmployer: {
		regexp.MustCompile(`(?im)^\s*(employer|organi[sz]ation|company)\s*[:\-]\s*(.+)$`),
	},
	model.FieldLocation: {
		regexp.MustCompile(`(?im)^\s*(location|duty station)\s*[:\-]\s*(.+)$`),
	},
	model.FieldDeadline: {
		regexp.MustCompile(`(?im)^\s*(deadline|closing date|apply by)\s*[:\-]\s*(.+)$`),
	},
	model.FieldSalary: {
		regexp.MustCompile(`(?im)^\s*(salary|compensation|pay range)\s*[:\-]\s*(.+)$`),
	},
	model.FieldEmploymentType: {
		regexp.MustCompile(`(?im)^\s*(employment type|contract type|job type)\s*[:\-]\s*(.+)$`),
	},
}

// HeuristicStage scans the raw page text for "Label: value" patterns.
// It is lower confidence than DOM-selector matches because it has no
// structural guarantee the matched line actually belongs to this
// posting rather than surrounding boilerplate.
type HeuristicStage struct{}

func (HeuristicStage) Name() string { return "heuristic" }

func (HeuristicStage) Run(ctx context.Context, payload StagePayload, acc *model.ExtractionResult, budget *Budget) StageVerdict {
	text := payload.RawHTML()
	if text == "" {
		return VerdictNoop
	}

	filled := false
	for field, patterns := range labelPatterns {
		if _, ok := acc.Get(field); ok {
			continue
		}
		for _, re := range patterns {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			value := strings.TrimSpace(m[len(m)-1])
			if value == "" {
				continue
			}
			acc.Set(field, model.FieldValue{
				Value:      value,
				Source:     model.SourceHeuristic,
				Confidence: model.StageConfidence[model.SourceHeuristic],
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
