package response

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/printworks/jobtrack/internal/model"
)

// Error codes
const (
	CodeValidationError   = model.CodeValidation
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = model.CodeNotFound
	CodeInvalidTransition = model.CodeInvalidTransition
	CodeAlreadyAssigned   = model.CodeAlreadyAssigned
	CodeStaleWrite        = model.CodeStaleWrite
	CodeDuplicate         = model.CodeDuplicate
	CodeRateLimited       = "RATE_LIMITED"
	CodeServiceError      = model.CodeServiceError
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func Error(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func ValidationError(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func Forbidden(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusForbidden, CodeForbidden, message, nil)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, CodeNotFound, message, nil)
}

func Conflict(c *fiber.Ctx, code, message string, details interface{}) error {
	return Error(c, fiber.StatusConflict, code, message, details)
}

func RateLimited(c *fiber.Ctx) error {
	return Error(c, fiber.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", nil)
}

func ServiceError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, CodeServiceError, message, nil)
}

// FromError renders a domain error with its status and code. Unclassified
// errors are logged and hidden behind SERVICE_ERROR.
func FromError(c *fiber.Ctx, err error) error {
	code := model.ErrorCode(err)
	switch code {
	case CodeNotFound:
		return NotFound(c, err.Error())
	case CodeValidationError:
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			return ValidationError(c, verr.Message, map[string]string{verr.Field: verr.Message})
		}
		return ValidationError(c, err.Error(), nil)
	case CodeStaleWrite:
		var stale *model.StaleWriteError
		if errors.As(err, &stale) {
			return Conflict(c, code, err.Error(), fiber.Map{"expected": stale.Expected, "current": stale.Actual})
		}
		return Conflict(c, code, err.Error(), nil)
	case CodeInvalidTransition, CodeAlreadyAssigned, CodeDuplicate:
		return Conflict(c, code, err.Error(), nil)
	default:
		log.Printf("Request %s %s failed: %v", c.Method(), c.Path(), err)
		return ServiceError(c, "Internal server error")
	}
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(data)
}

func Accepted(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusAccepted).JSON(data)
}

func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}
