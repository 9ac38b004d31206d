package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-print"
)

const textCodeInternal = "internal_error"

type errorBody struct {
	Message  string         `json:"message"`
	TextCode string         `json:"text_code,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// ErrorHandler renders domain errors as {"error": {...}}. Internal failures
// are logged with their details and answered with a generic 500.
func (s *Server) ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": errorBody{Message: fe.Message}})
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		s.logger.Error("unhandled error method=%s path=%s error=%v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": errorBody{
			Message:  "internal server error",
			TextCode: textCodeInternal,
		}})
	}

	status := statusFor(richErr)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed method=%s path=%s error=%v details=%s",
			c.Method(), c.Path(), err, print.MaybePrettyJSON(richErr.Metadata))

		body := errorBody{Message: "internal server error", TextCode: textCodeInternal}
		if richErr.TextCode == identity.TextCodeUpstreamUnavailable {
			body = errorBody{Message: identity.ErrUpstreamUnavailable.Message, TextCode: richErr.TextCode}
		}
		return c.Status(status).JSON(fiber.Map{"error": body})
	}

	body := errorBody{Message: richErr.Message, TextCode: richErr.TextCode}
	if richErr.Category == goerrors.CategoryValidation && len(richErr.Metadata) > 0 {
		body.Details = richErr.Metadata
	}
	return c.Status(status).JSON(fiber.Map{"error": body})
}

func statusFor(richErr *goerrors.Error) int {
	if richErr.Code >= 400 && richErr.Code < 600 {
		return richErr.Code
	}
	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput, goerrors.CategoryConflict:
		return fiber.StatusBadRequest
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return fiber.StatusForbidden
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}
