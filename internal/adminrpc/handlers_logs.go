package adminrpc

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const defaultLogsLimit = 50

// handleLogs implements GET /sources/:id/logs.
func (s *Server) handleLogs(c *fiber.Ctx) error {
	id, err := sourceIDFromParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Success: false, Code: "BAD_SOURCE_ID", Error: "invalid source id"})
	}

	limit := defaultLogsLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	logs, err := s.recorder.RecentLogs(context.Background(), id, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Success: false, Code: "QUERY_FAILED", Error: err.Error()})
	}

	return c.JSON(LogsResponse{Logs: logs})
}
