package adminrpc

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// handleRun implements POST /sources/:id/run: schedules an immediate
// run through the scheduler's own concurrency semaphores and returns
// right away rather than waiting for the run to finish.
func (s *Server) handleRun(c *fiber.Ctx) error {
	id, err := sourceIDFromParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Success: false, Code: "BAD_SOURCE_ID", Error: "invalid source id"})
	}

	source, err := s.store.GetSource(context.Background(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Success: false, Code: "SOURCE_NOT_FOUND", Error: "source not found"})
	}

	accepted, reason := s.scheduler.TriggerNow(source)
	return c.JSON(RunResponse{Accepted: accepted, Reason: reason})
}
