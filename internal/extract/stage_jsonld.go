package extract

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"jobpipe/internal/model"
)

// JSONLDStage parses every application/ld+json block and fills fields
// from any JobPosting node it finds, including ones nested inside an
// @graph array. It is the first extraction stage after the classifier
// because structured data is the most reliable source, per
// model.StageConfidence.
type JSONLDStage struct{}

func (JSONLDStage) Name() string { return "jsonld" }

type jsonLDNode struct {
	Type            any    `json:"@type"`
	Title           string `json:"title"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	DatePosted      string `json:"datePosted"`
	ValidThrough    string `json:"validThrough"`
	EmploymentType  any    `json:"employmentType"`
	HiringOrg       *struct {
		Name string `json:"name"`
	} `json:"hiringOrganization"`
	JobLocation any `json:"jobLocation"`
	BaseSalary  any `json:"baseSalary"`
	Graph       []jsonLDNode `json:"@graph"`
}

func (JSONLDStage) Run(ctx context.Context, payload StagePayload, acc *model.ExtractionResult, budget *Budget) StageVerdict {
	blocks := payload.JSONLDBlocks()
	if len(blocks) == 0 {
		return VerdictNoop
	}

	filled := false
	for _, block := range blocks {
		nodes := parseJSONLD(block)
		for _, node := range nodes {
			if !isJobPosting(node.Type) {
				continue
			}
			if applyJSONLDNode(node, acc) {
				filled = true
			}
		}
	}

	if filled {
		return VerdictFilled
	}
	return VerdictNoop
}

func parseJSONLD(block string) []jsonLDNode {
	var single jsonLDNode
	if err := json.Unmarshal([]byte(block), &single); err == nil {
		if len(single.Graph) > 0 {
			return single.Graph
		}
		return []jsonLDNode{single}
	}

	var array []jsonLDNode
	if err := json.Unmarshal([]byte(block), &array); err == nil {
		return array
	}

	return nil
}

func isJobPosting(t any) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, "JobPosting")
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.EqualFold(s, "JobPosting") {
				return true
			}
		}
	}
	return false
}

func applyJSONLDNode(node jsonLDNode, acc *model.ExtractionResult) bool {
	set := func(field model.FieldName, value string) bool {
		value = strings.TrimSpace(value)
		if value == "" {
			return false
		}
		acc.Set(field, model.FieldValue{
			Value:      value,
			Source:     model.SourceJSONLD,
			Confidence: model.StageConfidence[model.SourceJSONLD],
		})
		return true
	}

	any := false
	title := node.Title
	if title == "" {
		title = node.Name
	}
	if set(model.FieldTitle, title) {
		any = true
	}
	if node.HiringOrg != nil && set(model.FieldEmployer, node.HiringOrg.Name) {
		any = true
	}
	if set(model.FieldDescription, node.Description) {
		any = true
	}
	if set(model.FieldPostedOn, node.DatePosted) {
		any = true
	}
	if set(model.FieldDeadline, node.ValidThrough) {
		any = true
	}
	if s, ok := node.EmploymentType.(string); ok && set(model.FieldEmploymentType, s) {
		any = true
	}
	if loc := jsonLDLocationString(node.JobLocation); loc != "" && set(model.FieldLocation, loc) {
		any = true
	}
	if salary := jsonLDSalaryString(node.BaseSalary); salary != "" && set(model.FieldSalary, salary) {
		any = true
	}

	return any
}

func jsonLDLocationString(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	addr, ok := m["address"].(map[string]any)
	if !ok {
		return ""
	}
	parts := []string{}
	for _, key := range []string{"addressLocality", "addressRegion", "addressCountry"} {
		if s, ok := addr[key].(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func jsonLDSalaryString(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	value, ok := m["value"].(map[string]any)
	if !ok {
		if s, ok := m["value"].(string); ok {
			return s
		}
		return ""
	}
	min, _ := value["minValue"].(float64)
	max, _ := value["maxValue"].(float64)
	unit, _ := value["unitText"].(string)
	if min == 0 && max == 0 {
		return ""
	}
	return strings.TrimSpace(fmtRange(min, max) + " " + unit)
}

func fmtRange(min, max float64) string {
	if min > 0 && max > 0 && min != max {
		return fmtNum(min) + "-" + fmtNum(max)
	}
	if max > 0 {
		return fmtNum(max)
	}
	return fmtNum(min)
}

func fmtNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
