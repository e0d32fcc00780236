package extract

import (
	"strings"

	"jobpipe/internal/fetcher"
	"jobpipe/internal/model"
)

// FeedPayload adapts one gofeed item to StagePayload so rss sources
// run the same cascade stages as html sources. A feed item carries no
// JSON-LD blocks; MetaTag serves the item title (as "title") and
// extension elements by name.
type FeedPayload struct {
	item       fetcher.FeedItem
	hintSelect map[model.FieldName]string
}

func NewFeedPayload(item fetcher.FeedItem, hints map[model.FieldName]string) *FeedPayload {
	return &FeedPayload{item: item, hintSelect: hints}
}

func (p *FeedPayload) RawHTML() string {
	if p.item.Content != "" {
		return p.item.Content
	}
	return p.item.Description
}

func (p *FeedPayload) JSONLDBlocks() []string { return nil }

func (p *FeedPayload) MetaTag(name string) (string, bool) {
	if name == "title" && p.item.Title != "" {
		return p.item.Title, true
	}
	if vals, ok := p.item.Extensions[name]; ok && len(vals) > 0 {
		return vals[0], true
	}
	return "", false
}

func (p *FeedPayload) Select(selector string) (string, bool) {
	// Feed items carry no DOM, so Select never matches and parser_hint
	// selectors have no effect on a feed item. Extension elements are
	// reachable by name only through MetaTag.
	return "", false
}

func (p *FeedPayload) ParserHintSelectors() map[model.FieldName]string {
	return p.hintSelect
}

func (p *FeedPayload) SourceURL() string {
	return p.item.Link
}

func (p *FeedPayload) Title() string       { return p.item.Title }
func (p *FeedPayload) Description() string { return strings.TrimSpace(p.item.Description) }
