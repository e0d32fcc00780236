package extract

import (
	"fmt"
	"strings"

	"jobpipe/internal/model"
)

// APIPayload adapts a decoded JSON document to StagePayload. Per-field
// selectors are dot-path expressions into the decoded document (e.g.
// "data.title"), taken from ParserHintSelectors and resolved through
// Select by the DOM stage.
type APIPayload struct {
	decoded    any
	sourceURL  string
	hintSelect map[model.FieldName]string
}

func NewAPIPayload(decoded any, sourceURL string, hints map[model.FieldName]string) *APIPayload {
	return &APIPayload{decoded: decoded, sourceURL: sourceURL, hintSelect: hints}
}

func (p *APIPayload) RawHTML() string        { return "" }
func (p *APIPayload) JSONLDBlocks() []string { return nil }
func (p *APIPayload) MetaTag(name string) (string, bool) {
	return "", false
}

// Select resolves a dot-path (e.g. "job.title" or "items.0.title")
// against the decoded JSON document.
func (p *APIPayload) Select(path string) (string, bool) {
	cur := p.decoded
	for _, part := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[part]
			if !ok {
				return "", false
			}
			cur = next
		case []any:
			var idx int
			if _, err := fmt.Sscanf(part, "%d", &idx); err != nil || idx < 0 || idx >= len(v) {
				return "", false
			}
			cur = v[idx]
		default:
			return "", false
		}
	}

	switch v := cur.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return "", false
		}
		return s, true
	case float64, bool:
		return fmt.Sprintf("%v", v), true
	default:
		return "", false
	}
}

func (p *APIPayload) ParserHintSelectors() map[model.FieldName]string {
	return p.hintSelect
}

func (p *APIPayload) SourceURL() string {
	return p.sourceURL
}
