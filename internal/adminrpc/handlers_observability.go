package adminrpc

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"jobpipe/internal/observability"
)

const (
	defaultCoverageHours          = 24
	defaultValidationErrorsLimit = 50
)

// handleCoverage implements GET /observability/coverage.
func (s *Server) handleCoverage(c *fiber.Ctx) error {
	hours := defaultCoverageHours
	if raw := c.Query("hours"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			hours = parsed
		}
	}

	windows, err := s.recorder.Coverage(context.Background(), hours)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Success: false, Code: "QUERY_FAILED", Error: err.Error()})
	}

	if s.logger != nil {
		for _, w := range windows {
			if w.Level == "critical" || w.Level == "warning" {
				s.logger.Warn("coverage mismatch", "source_id", w.SourceID, "mismatch_pct", w.MismatchPct, "level", w.Level)
			}
		}
	}

	return c.JSON(struct {
		Windows []observability.CoverageWindow `json:"windows"`
	}{Windows: windows})
}

// handleValidationErrors implements GET /observability/validation-errors.
func (s *Server) handleValidationErrors(c *fiber.Ctx) error {
	limit := defaultValidationErrorsLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var sourceID *uuid.UUID
	if raw := c.Query("source_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Success: false, Code: "BAD_SOURCE_ID", Error: "invalid source_id"})
		}
		sourceID = &parsed
	}

	errs, err := s.recorder.ValidationErrors(context.Background(), sourceID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Success: false, Code: "QUERY_FAILED", Error: err.Error()})
	}

	return c.JSON(ValidationErrorsResponse{Errors: errs})
}
