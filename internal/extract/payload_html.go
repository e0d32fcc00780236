package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"jobpipe/internal/model"
)

// HTMLPayload adapts a parsed HTML document to StagePayload, grounded
// on the teacher's goquery-based metadata extraction.
type HTMLPayload struct {
	doc        *goquery.Document
	sourceURL  string
	hintSelect map[model.FieldName]string
}

func NewHTMLPayload(doc *goquery.Document, sourceURL string, hints map[model.FieldName]string) *HTMLPayload {
	return &HTMLPayload{doc: doc, sourceURL: sourceURL, hintSelect: hints}
}

func (p *HTMLPayload) RawHTML() string {
	html, err := p.doc.Html()
	if err != nil {
		return ""
	}
	return html
}

func (p *HTMLPayload) JSONLDBlocks() []string {
	var blocks []string
	p.doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			blocks = append(blocks, text)
		}
	})
	return blocks
}

func (p *HTMLPayload) MetaTag(name string) (string, bool) {
	if content, ok := p.doc.Find(`meta[name="` + name + `"]`).Attr("content"); ok {
		return strings.TrimSpace(content), true
	}
	if content, ok := p.doc.Find(`meta[property="` + name + `"]`).Attr("content"); ok {
		return strings.TrimSpace(content), true
	}
	return "", false
}

func (p *HTMLPayload) Select(selector string) (string, bool) {
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", false
	}
	text := strings.TrimSpace(sel.Text())
	if text == "" {
		return "", false
	}
	return text, true
}

func (p *HTMLPayload) ParserHintSelectors() map[model.FieldName]string {
	return p.hintSelect
}

func (p *HTMLPayload) SourceURL() string {
	return p.sourceURL
}
