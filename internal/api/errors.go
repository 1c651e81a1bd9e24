package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/facilitydesk/taskdispatch/internal/api/middleware"
	"github.com/facilitydesk/taskdispatch/internal/api/shared"
	"github.com/facilitydesk/taskdispatch/internal/channel"
	"github.com/facilitydesk/taskdispatch/internal/dispatch"
	"github.com/facilitydesk/taskdispatch/internal/domain"
	"github.com/facilitydesk/taskdispatch/internal/store"
	"github.com/go-playground/validator/v10"
)

// ConnectionLostMessage is shown whenever the channel failed in a way the
// operator must fix by reconnecting.
const ConnectionLostMessage = "Connection lost, please reconnect"

// MapErrorToStatusCode maps internal errors to HTTP status codes.
func MapErrorToStatusCode(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, middleware.ErrInvalidToken),
		errors.Is(err, middleware.ErrExpiredToken):
		return http.StatusUnauthorized

	case errors.Is(err, dispatch.ErrPlanNotFound),
		errors.Is(err, dispatch.ErrRunNotFound),
		store.IsNotFoundError(err):
		return http.StatusNotFound

	case errors.Is(err, dispatch.ErrRunAlreadyApplied),
		errors.Is(err, channel.ErrNotReady),
		errors.Is(err, store.ErrStatusConflict):
		return http.StatusConflict

	case errors.Is(err, channel.ErrChannelBroken):
		return http.StatusServiceUnavailable

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity),
		errors.As(err, &verrs):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err that never
// includes internal details.
func GetSafeErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	switch {
	case err == nil:
		return "An unexpected error occurred"

	case errors.Is(err, middleware.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, middleware.ErrInvalidToken):
		return "Invalid token"

	case errors.Is(err, dispatch.ErrPlanNotFound):
		return "Plan not found or expired, preview again"
	case errors.Is(err, dispatch.ErrRunNotFound):
		return "Run not found"
	case store.IsNotFoundError(err):
		return "Not found"

	case errors.Is(err, dispatch.ErrRunAlreadyApplied):
		return "Run results were already applied"
	case errors.Is(err, channel.ErrNotReady):
		return "Channel not ready, connect and scan first"
	case errors.Is(err, channel.ErrChannelBroken):
		return ConnectionLostMessage

	case errors.As(err, &verrs):
		return SanitizeValidationError(err)
	case errors.Is(err, domain.ErrValidation):
		// Domain validation messages name the offending input and nothing internal.
		return strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator errors into a short message naming
// the first failing field.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}
	fe := verrs[0]
	return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "uuid":
		return "must be a UUID"
	case "datetime":
		return "invalid format"
	case "excluded_with":
		return "cannot be combined with unassigned"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the mapped status and safe message for err and logs
// the redacted error.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
