// Package errors defines the ledger's error taxonomy and its mapping to
// HTTP statuses. Keeps service and handler layers clean by centralizing
// classification in one place.
package errors

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Sentinel errors, one per rejection class. Every rejected operation leaves
// all stores unchanged; none of these implies a partial write.
var (
	// ErrValidation: bad input shape or bounds. Caller error, never retried.
	ErrValidation = errors.New("validation failed")
	// ErrAlreadyExists: a record already lives at the derived address.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotFound: no record at the derived address.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized: caller identity does not match the record owner.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidUser: self-referential operation (like/message/block self).
	ErrInvalidUser = errors.New("invalid user")
	// ErrUserNotActive: a participant's profile is deactivated.
	ErrUserNotActive = errors.New("user not active")
	// ErrBlocked: a block exists between the pair, in either direction.
	ErrBlocked = errors.New("blocked")
	// ErrNotMutualLikes: messaging requires a match under the strict policy.
	ErrNotMutualLikes = errors.New("not mutual likes")
	// ErrMessageTooLong: message content exceeds the uniform bound.
	ErrMessageTooLong = errors.New("message too long")
)

// Validationf wraps ErrValidation with detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// AlreadyExistsf wraps ErrAlreadyExists with detail.
func AlreadyExistsf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrAlreadyExists}, args...)...)
}

// Unauthorizedf wraps ErrUnauthorized with detail.
func Unauthorizedf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUnauthorized}, args...)...)
}

// FromStorage converts storage-layer errors into taxonomy errors.
// gorm duplicate-key errors become ErrAlreadyExists so that address
// collisions surface as idempotency violations, not internal errors.
func FromStorage(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrAlreadyExists
	default:
		return err
	}
}

// HTTPStatus maps a taxonomy error to the status code the API surfaces.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidUser),
		errors.Is(err, ErrMessageTooLong):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, ErrBlocked), errors.Is(err, ErrNotMutualLikes),
		errors.Is(err, ErrUserNotActive):
		return fiber.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return fiber.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// Handler is the fiber error handler for the API. Taxonomy errors keep
// their message; anything unclassified is masked as an internal error.
func Handler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}

	status := HTTPStatus(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		msg = "internal error"
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}
