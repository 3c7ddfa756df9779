package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"loan-proposal-service/internal/domain/errs"
)

// DegradedResponse is returned when a collaborator failed. Data carries
// whatever the operation did manage to persist.
type DegradedResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Data   any    `json:"data,omitempty"`
}

// writeError maps domain error kinds to HTTP codes.
func writeError(c echo.Context, err error, partial any) error {
	var ve *errs.ValidationError
	switch {
	case errors.As(err, &ve):
		resp := ErrorResponse{Error: "validation failed"}
		if ve.Field != "" {
			resp.Details = []FieldError{{Field: ve.Field, Message: ve.Reason}}
		} else {
			resp.Details = []FieldError{{Field: "_", Message: ve.Reason}}
		}
		return c.JSON(http.StatusUnprocessableEntity, resp)
	case errors.Is(err, errs.ErrValidation):
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	case errors.Is(err, errs.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, errs.ErrUnauthorizedTransition):
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, errs.ErrConflict):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, errs.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	case errors.Is(err, errs.ErrExternalService):
		log.Warn().Err(err).Str("path", c.Path()).Msg("request degraded")
		return c.JSON(http.StatusBadGateway, DegradedResponse{Status: "degraded", Error: err.Error(), Data: partial})
	}
	log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

// bindAndValidate writes the 400/422 response itself; ok is false when it did.
func bindAndValidate(c echo.Context, req any) (ok bool, err error) {
	if err := c.Bind(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(req); err != nil {
		return false, c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	return true, nil
}
