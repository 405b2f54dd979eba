package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"brsvc/lobby"
	"brsvc/orchestrator"
)

// errorHandler maps component errors onto HTTP statuses: bad input and
// not-found are client errors, privileged-mutation failures are 403, and
// resource exhaustion is 503 so clients back off and retry instead of
// treating it as permanent.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		code = fiberErr.Code
	case errors.Is(err, lobby.ErrNoSuchPlayer):
		code = fiber.StatusBadRequest
	case errors.Is(err, lobby.ErrCapacity),
		errors.Is(err, orchestrator.ErrServerCapacity),
		errors.Is(err, orchestrator.ErrNoPortAvailable),
		errors.Is(err, orchestrator.ErrNoKeyAvailable):
		code = fiber.StatusServiceUnavailable
	}
	if code == fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
