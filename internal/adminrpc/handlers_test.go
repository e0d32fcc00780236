package adminrpc

import (
	"context"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"jobpipe/internal/fetcher"
	"jobpipe/internal/model"
	"jobpipe/internal/secrets"
)

// handleTest implements POST /sources/:id/test: a fetch-only probe
// that never persists a raw page or runs extraction, per spec.md §6.
func (s *Server) handleTest(c *fiber.Ctx) error {
	id, err := sourceIDFromParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Success: false, Code: "BAD_SOURCE_ID", Error: "invalid source id"})
	}

	source, err := s.store.GetSource(context.Background(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Success: false, Code: "SOURCE_NOT_FOUND", Error: "source not found"})
	}

	req, missing, buildErr := s.probeRequest(source)
	if buildErr != "" {
		return c.JSON(TestResponse{OK: false, Error: buildErr, HeadersSanitized: map[string]string{}})
	}
	if len(missing) > 0 {
		return c.JSON(TestResponse{OK: false, MissingSecrets: missing, HeadersSanitized: map[string]string{}})
	}

	res, fetchErr := s.httpFetcher.Fetch(c.Context(), req)
	if fetchErr != nil {
		return c.JSON(TestResponse{OK: false, Error: fetchErr.Message, HeadersSanitized: map[string]string{}})
	}

	host := req.URL
	if u, err := url.Parse(req.URL); err == nil {
		host = u.Host
	}

	return c.JSON(TestResponse{
		OK:               true,
		Status:           res.Status,
		Host:             host,
		Size:             len(res.Body),
		ETag:             res.ETag,
		LastModified:     res.LastModified,
		HeadersSanitized: sanitizeHeaders(res.Headers),
	})
}

// probeRequest builds the fetch request a test/simulate-extract probe
// issues, resolving api auth secrets in place. buildErr is non-empty
// for a malformed api parser_hint.
func (s *Server) probeRequest(source model.Source) (req fetcher.Request, missingSecrets []string, buildErr string) {
	req = fetcher.Request{URL: source.CareersURL, UserAgent: s.cfg.Fetcher.UserAgent}

	switch source.SourceType {
	case model.SourceTypeHTML:
		req.MaxBytes = s.cfg.Fetcher.HTMLMaxBytes
	case model.SourceTypeRSS:
		req.MaxBytes = s.cfg.Fetcher.FeedMaxBytes
	case model.SourceTypeAPI:
		req.MaxBytes = s.cfg.Fetcher.APIMaxBytes
		hint, err := decodeParserHint(source.ParserHint)
		if err != nil {
			return req, nil, "invalid parser_hint: " + err.Error()
		}
		if missing := secrets.ResolveMap(s.secretsResolver(), hint.Auth); len(missing) > 0 {
			return req, missing, ""
		}
		headers := make(map[string]string, len(hint.Auth))
		for k, v := range hint.Auth {
			if str, ok := v.(string); ok {
				headers[k] = str
			}
		}
		req.Headers = headers
		if hint.BaseURL != "" {
			req.URL = strings.TrimRight(hint.BaseURL, "/") + "/" + strings.TrimLeft(hint.Path, "/")
		}
	}

	return req, nil, ""
}
