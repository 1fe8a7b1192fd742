package handlers

import (
	"errors"

	"competition-service/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// errorStatus maps a service error to an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrCompetitionNotFound):
		return fiber.StatusNotFound, "competition_not_found"
	case errors.Is(err, services.ErrForbidden):
		return fiber.StatusForbidden, "forbidden"
	case errors.Is(err, services.ErrCompetitionClosed):
		return fiber.StatusConflict, "competition_closed"
	case errors.Is(err, services.ErrInvalidGameType):
		return fiber.StatusBadRequest, "invalid_game_type"
	case errors.Is(err, services.ErrWinnerLimitExceeded):
		return fiber.StatusUnprocessableEntity, "winner_limit_exceeded"
	case errors.Is(err, services.ErrValidation):
		return fiber.StatusBadRequest, "validation_error"
	case errors.Is(err, services.ErrIdentityNotRanked):
		return fiber.StatusNotFound, "not_found"
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}

func respondError(c *fiber.Ctx, log *logrus.Logger, err error) error {
	status, code := errorStatus(err)
	if status == fiber.StatusInternalServerError {
		log.WithError(err).WithFields(logrus.Fields{
			"method": c.Method(),
			"path":   c.Path(),
		}).Error("❌ request failed")
		return c.Status(status).JSON(fiber.Map{"error": "internal server error", "code": code})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error(), "code": code})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg, "code": "validation_error"})
}
