package extract

import (
	"context"
	"strings"

	"jobpipe/internal/model"
)

// jobKeywords are terms whose presence in the title/description
// raises the classifier score; this is a cheap heuristic, not a
// trained model, deliberately: see SPEC_FULL.md non-goals on ML
// training of the classifier.
var jobKeywords = []string{
	"apply", "application", "responsibilities", "qualifications",
	"requirements", "deadline", "full-time", "part-time", "salary",
	"employment", "position", "vacancy", "candidate",
}

// classifierPositiveTerms and classifierNegativeTerms are the
// URL-path/page-text keywords the cascade's first stage scans for,
// before any field has been extracted.
var classifierPositiveTerms = []string{
	"title", "apply", "deadline", "duty station", "vacancy",
}

var classifierNegativeTerms = []string{
	"login", "category", "tag", "about", "privacy",
}

// classifierShortCircuitThreshold is how low ClassifierStage's score
// must fall before the cascade treats the page as confidently not a
// job and skips the remaining stages, including the AI fallback.
const classifierShortCircuitThreshold = 0.25

// ClassifierStage is the cascade's first stage. It scans the source
// URL and raw page text for job-posting and non-job-posting keywords
// before any structured extraction has run, so obvious non-job pages
// (login, category listings, about/privacy) never reach the noisier
// or AI-budget-spending stages behind it. A page with no signal
// either way stays neutral and lets the rest of the cascade run.
type ClassifierStage struct{}

func (ClassifierStage) Name() string { return "classifier" }

func (ClassifierStage) Run(_ context.Context, payload StagePayload, acc *model.ExtractionResult, _ *Budget) StageVerdict {
	text := strings.ToLower(payload.SourceURL() + " " + payload.RawHTML())

	score := 0.5
	for _, term := range classifierPositiveTerms {
		if strings.Contains(text, term) {
			score += 0.15
		}
	}
	for _, term := range classifierNegativeTerms {
		if strings.Contains(text, term) {
			score -= 0.25
		}
	}
	switch {
	case score > 1:
		score = 1
	case score < 0:
		score = 0
	}

	acc.ClassifierScore = score
	acc.IsJob = score >= 0.5
	return VerdictFilled
}

// ClassifyCandidate sets acc.IsJob and acc.ClassifierScore based on
// title presence, description length, and keyword density. It runs
// after the rule-based stages so it can use whatever got filled.
func ClassifyCandidate(acc *model.ExtractionResult) {
	score := 0.0

	if title, ok := acc.Get(model.FieldTitle); ok && strings.TrimSpace(title.Value) != "" {
		score += 0.3
	}
	if applyURL, ok := acc.Get(model.FieldApplicationURL); ok && strings.TrimSpace(applyURL.Value) != "" {
		score += 0.2
	}

	desc, _ := acc.Get(model.FieldDescription)
	text := strings.ToLower(desc.Value)
	if len(text) >= 200 {
		score += 0.2
	}

	hits := 0
	for _, kw := range jobKeywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	if hits > 0 {
		bonus := 0.05 * float64(hits)
		if bonus > 0.3 {
			bonus = 0.3
		}
		score += bonus
	}

	if score > 1 {
		score = 1
	}

	acc.ClassifierScore = score
	acc.IsJob = score >= 0.5
}
