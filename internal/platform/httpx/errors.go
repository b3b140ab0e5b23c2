package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RespondError maps domain errors to failure envelopes. Business-rule
// failures carry their message verbatim; anything unrecognised is logged
// and reported as an opaque 500.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var fieldErrs validator.ValidationErrors
	switch {
	case errors.As(err, &fieldErrs):
		Fail(w, http.StatusUnprocessableEntity, "validation failed", fieldErrorMap(fieldErrs))
	case errors.Is(err, shared.ErrValidation):
		Fail(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, shared.ErrNotFound):
		Fail(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, shared.ErrAlreadyExists):
		Fail(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, shared.ErrInvalidCredentials):
		Fail(w, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, shared.ErrInvalidTransition),
		errors.Is(err, shared.ErrInsufficientStock),
		errors.Is(err, shared.ErrEditNotAllowed),
		errors.Is(err, shared.ErrDeleteNotAllowed),
		errors.Is(err, shared.ErrOrderNotReady):
		Fail(w, http.StatusBadRequest, err.Error(), nil)
	default:
		if logger != nil {
			logger.Error("unhandled error", slog.Any("error", err))
		}
		Fail(w, http.StatusInternalServerError, "internal server error", nil)
	}
}

func fieldErrorMap(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
