// Package extract implements the cascading field-extraction pipeline:
// a fixed sequence of stages, each more expensive and less reliable
// than the last, that only fill gaps in an ExtractionResult and never
// lower an already-set field's confidence.
package extract

import (
	"context"
	"sync"

	"jobpipe/internal/model"
)

// StageVerdict is what a stage reports after running.
type StageVerdict string

const (
	VerdictFilled  StageVerdict = "filled"
	VerdictNoop    StageVerdict = "noop"
	VerdictSkipped StageVerdict = "skipped"
)

// Budget bounds the AI-fallback stage's spend for one tick. A single
// Budget is shared across every source run the scheduler dispatches
// concurrently within that tick, so Take is mutex-protected; see
// internal/capabilities.
type Budget struct {
	mu        sync.Mutex
	remaining int
	bypass    bool
}

func NewBudget(maxCalls int, bypass bool) *Budget {
	return &Budget{remaining: maxCalls, bypass: bypass}
}

// Take reports whether one more AI call may be made, decrementing the
// remaining count if so. An exhausted budget makes the AI stage a
// no-op rather than an error.
func (b *Budget) Take() bool {
	if b == nil {
		return false
	}
	if b.bypass {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

func (b *Budget) Remaining() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// StagePayload is the per-source-type view each stage consumes. html
// sources provide a parsed goquery document; rss/api sources adapt
// their native shape into the same interface so every stage after the
// type-specific adapter stage is written once.
type StagePayload interface {
	// RawHTML returns the page body as HTML/markdown text for stages
	// that scan strings (regex, heuristics). Empty if not applicable.
	RawHTML() string
	// JSONLDBlocks returns the raw contents of every
	// application/ld+json script tag found on the page.
	JSONLDBlocks() []string
	// MetaTag returns the content of a meta/OpenGraph tag by name or
	// property, and whether it was present.
	MetaTag(name string) (string, bool)
	// Select returns the trimmed text of the first element matching a
	// CSS selector, and whether anything matched.
	Select(selector string) (string, bool)
	// ParserHintSelectors returns the per-source selector map decoded
	// from Source.ParserHint, keyed by model.FieldName.
	ParserHintSelectors() map[model.FieldName]string
	// SourceURL is the page's canonical URL.
	SourceURL() string
}

// Stage is one step of the cascade.
type Stage interface {
	Name() string
	Run(ctx context.Context, payload StagePayload, acc *model.ExtractionResult, budget *Budget) StageVerdict
}

// Cascade runs a fixed ordered sequence of stages against one
// payload, catching panics as a skipped verdict for that stage so one
// bad selector cannot take down a whole run.
type Cascade struct {
	stages []Stage
}

func NewCascade(stages ...Stage) *Cascade {
	return &Cascade{stages: stages}
}

// StepResult records what one stage did, for logging/debugging.
type StepResult struct {
	Stage   string
	Verdict StageVerdict
}

func (c *Cascade) Run(ctx context.Context, payload StagePayload, acc *model.ExtractionResult, budget *Budget) []StepResult {
	results := make([]StepResult, 0, len(c.stages))
	for _, stage := range c.stages {
		verdict := c.runStage(ctx, stage, payload, acc, budget)
		results = append(results, StepResult{Stage: stage.Name(), Verdict: verdict})

		// The classifier runs first; a confidently negative verdict
		// ends the cascade here so the AI fallback and every other
		// stage behind it never spend work on an obvious non-job page.
		if stage.Name() == "classifier" && !acc.IsJob && acc.ClassifierScore <= classifierShortCircuitThreshold {
			break
		}
	}
	return results
}

func (c *Cascade) runStage(ctx context.Context, stage Stage, payload StagePayload, acc *model.ExtractionResult, budget *Budget) (verdict StageVerdict) {
	defer func() {
		if r := recover(); r != nil {
			verdict = VerdictSkipped
		}
	}()
	return stage.Run(ctx, payload, acc, budget)
}
