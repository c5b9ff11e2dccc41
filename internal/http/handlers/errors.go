package handlers

import (
	"errors"
	"net/http"

	"wainbox/internal/services"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorResponse is the body of every failed inbox request
type ErrorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message,omitempty"`
	LockedBy *uint  `json:"locked_by,omitempty"`
}

var statusByKind = map[services.Kind]int{
	services.KindUnauthenticated: http.StatusUnauthorized,
	services.KindValidation:      http.StatusBadRequest,
	services.KindNotFound:        http.StatusNotFound,
	services.KindForbidden:       http.StatusForbidden,
	services.KindConflict:        http.StatusConflict,
	services.KindPolicyViolation: http.StatusUnprocessableEntity,
	services.KindProvider:        http.StatusBadGateway,
	services.KindStore:           http.StatusInternalServerError,
}

// respondError writes err as an ErrorResponse with the status of its kind
func respondError(c echo.Context, err error) error {
	kind := services.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		kind, status = services.KindStore, http.StatusInternalServerError
	}

	resp := ErrorResponse{Error: string(kind)}
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		resp.Message = svcErr.Message
		if kind == services.KindConflict {
			lockedBy := svcErr.LockedBy
			resp.LockedBy = &lockedBy
		}
	}

	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Str("path", c.Path()).Msg("Request failed")
		// internals stay out of the response
		if kind == services.KindStore {
			resp.Message = "internal error"
		}
	}
	return c.JSON(status, resp)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: string(services.KindValidation), Message: msg})
}
