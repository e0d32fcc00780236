package extract

import "jobpipe/internal/llm"

// DefaultCascade returns the fixed stage order from SPEC_FULL.md §4.3:
// structured data first, progressively noisier heuristics after, AI
// fallback last. aiClient may be nil to disable the AI stage entirely.
func DefaultCascade(aiClient llm.Client) *Cascade {
	return NewCascade(
		ClassifierStage{},
		JSONLDStage{},
		MetaStage{},
		DOMStage{},
		HeuristicStage{},
		RegexStage{},
		NewAIStage(aiClient),
	)
}

// DefaultCascadeWithCache is DefaultCascade, but its AI stage consults
// cache before spending AI budget on an identical request.
func DefaultCascadeWithCache(aiClient llm.Client, cache *llm.ResponseCache) *Cascade {
	return NewCascade(
		ClassifierStage{},
		JSONLDStage{},
		MetaStage{},
		DOMStage{},
		HeuristicStage{},
		RegexStage{},
		NewAIStageWithCache(aiClient, cache),
	)
}
