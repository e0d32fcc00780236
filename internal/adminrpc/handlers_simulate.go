package adminrpc

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gofiber/fiber/v2"

	"jobpipe/internal/extract"
	"jobpipe/internal/model"
)

const simulateSampleLimit = 3

// handleSimulateExtract implements POST /sources/:id/simulate-extract:
// fetches the source and runs the extraction cascade exactly like a
// real run, but never upserts or persists a raw page, per spec.md §6.
func (s *Server) handleSimulateExtract(c *fiber.Ctx) error {
	id, err := sourceIDFromParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Success: false, Code: "BAD_SOURCE_ID", Error: "invalid source id"})
	}

	source, err := s.store.GetSource(context.Background(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Success: false, Code: "SOURCE_NOT_FOUND", Error: "source not found"})
	}

	results, errCategory, simErr := s.simulate(c.Context(), source)
	if simErr != "" {
		return c.JSON(SimulateExtractResponse{OK: false, Error: simErr, ErrorCategory: errCategory})
	}

	sample := make([]JobSample, 0, simulateSampleLimit)
	for i, acc := range results {
		if i >= simulateSampleLimit {
			break
		}
		sample = append(sample, jobSampleFromResult(acc))
	}

	return c.JSON(SimulateExtractResponse{OK: true, Count: len(results), Sample: sample})
}

func jobSampleFromResult(acc *model.ExtractionResult) JobSample {
	fields := make(map[model.FieldName]string, len(acc.Fields))
	for name, v := range acc.Fields {
		fields[name] = v.Value
	}
	get := func(f model.FieldName) string {
		if v, ok := acc.Get(f); ok {
			return v.Value
		}
		return ""
	}
	applyURL := get(model.FieldApplicationURL)
	if applyURL == "" {
		applyURL = acc.URL
	}
	return JobSample{
		Title:           get(model.FieldTitle),
		OrgName:         get(model.FieldEmployer),
		ApplyURL:        applyURL,
		Location:        get(model.FieldLocation),
		Deadline:        get(model.FieldDeadline),
		Description:     get(model.FieldDescription),
		IsJob:           acc.IsJob,
		ClassifierScore: acc.ClassifierScore,
		Fields:          fields,
	}
}

// simulate fetches source and runs the extraction cascade over every
// discovered candidate, the same one-candidate-per-item model the
// real pipeline uses, without touching the store or raw page
// persistence.
func (s *Server) simulate(ctx context.Context, source model.Source) (results []*model.ExtractionResult, errorCategory, errMsg string) {
	budget := s.caps.NewAIBudget()
	cascade := s.caps.Cascade()

	switch source.SourceType {
	case model.SourceTypeHTML:
		req, missing, buildErr := s.probeRequest(source)
		if buildErr != "" {
			return nil, "parse.malformed_html", buildErr
		}
		if len(missing) > 0 {
			return nil, "fetch.missing_secrets", "missing secrets: " + strings.Join(missing, ",")
		}
		res, fetchErr := s.httpFetcher.Fetch(ctx, req)
		if fetchErr != nil {
			return nil, "fetch." + string(fetchErr.Kind), fetchErr.Message
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(res.Body)))
		if err != nil {
			return nil, "parse.malformed_html", err.Error()
		}
		payload := extract.NewHTMLPayload(doc, source.CareersURL, decodeDOMHints(source.ParserHint))
		acc := runCascadeOnce(ctx, cascade, payload, budget)
		return []*model.ExtractionResult{acc}, "", ""

	case model.SourceTypeRSS:
		req, _, _ := s.probeRequest(source)
		res, fetchErr := s.feedFetcher.FetchFeed(ctx, req)
		if fetchErr != nil {
			return nil, "fetch." + string(fetchErr.Kind), fetchErr.Message
		}
		hints := decodeDOMHints(source.ParserHint)
		out := make([]*model.ExtractionResult, 0, len(res.Items))
		for _, item := range res.Items {
			payload := extract.NewFeedPayload(item, hints)
			out = append(out, runCascadeOnce(ctx, cascade, payload, budget))
		}
		return out, "", ""

	case model.SourceTypeAPI:
		req, missing, buildErr := s.probeRequest(source)
		if buildErr != "" {
			return nil, "parse.malformed_json", buildErr
		}
		if len(missing) > 0 {
			return nil, "fetch.missing_secrets", "missing secrets: " + strings.Join(missing, ",")
		}
		res, fetchErr := s.apiFetcher.FetchJSON(ctx, req)
		if fetchErr != nil {
			return nil, "fetch." + string(fetchErr.Kind), fetchErr.Message
		}
		hint, _ := decodeParserHint(source.ParserHint)
		selectors := make(map[model.FieldName]string, len(hint.Map))
		for field, path := range hint.Map {
			selectors[model.FieldName(field)] = path
		}
		items := apiItems(res.Decoded)
		out := make([]*model.ExtractionResult, 0, len(items))
		for i, item := range items {
			payload := extract.NewAPIPayload(item, fmt.Sprintf("%s#%d", req.URL, i), selectors)
			out = append(out, runCascadeOnce(ctx, cascade, payload, budget))
		}
		return out, "", ""
	}

	return nil, "parse.schema_mismatch", "unknown source_type: " + string(source.SourceType)
}

func runCascadeOnce(ctx context.Context, cascade *extract.Cascade, payload extract.StagePayload, budget *extract.Budget) *model.ExtractionResult {
	acc := &model.ExtractionResult{URL: payload.SourceURL(), PipelineVersion: "v1"}
	cascade.Run(ctx, payload, acc, budget)
	extract.ClassifyCandidate(acc)
	return acc
}

func apiItems(decoded any) []any {
	if arr, ok := decoded.([]any); ok {
		return arr
	}
	return []any{decoded}
}

func decodeDOMHints(raw string) map[model.FieldName]string {
	hint, err := decodeParserHint(raw)
	if err != nil {
		return nil
	}
	out := make(map[model.FieldName]string, len(hint.Selectors))
	for field, sel := range hint.Selectors {
		out[model.FieldName(field)] = sel
	}
	return out
}
