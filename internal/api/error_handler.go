package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/homespot/identity-service/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes,
//     keeping each failure kind distinct for the client.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := resolveError(err, log, c)
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	// Known domain errors → deterministic HTTP codes.
	switch {
	// Input validation — rejected before storage was touched.
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrMalformedToken):
		return http.StatusBadRequest, err.Error()

	// Authentication.
	case errors.Is(err, domain.ErrNoSuchUser):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrInvalidPassword):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, domain.ErrAccountLocked):
		return http.StatusLocked, err.Error()
	case errors.Is(err, domain.ErrEmailNotConfirmed):
		return http.StatusForbidden, err.Error()

	// Authorization — distinct from authentication.
	case errors.Is(err, domain.ErrRoleNotHeld):
		return http.StatusForbidden, err.Error()

	// Sessions.
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, err.Error()

	// Registration conflicts.
	case errors.Is(err, domain.ErrDuplicateUsername),
		errors.Is(err, domain.ErrDuplicateRoleForEmail),
		errors.Is(err, domain.ErrPasswordReuse):
		return http.StatusConflict, err.Error()

	// Confirmation / reset.
	case errors.Is(err, domain.ErrNoSuchEmail):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrInvalidOrExpiredToken):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, domain.ErrPasswordUnchanged):
		return http.StatusUnprocessableEntity, err.Error()
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, "internal server error"
}
