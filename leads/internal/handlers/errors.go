package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tschelli/lead-lander-sub001/common/httputil"
	"github.com/tschelli/lead-lander-sub001/common/logging"
	"github.com/tschelli/lead-lander-sub001/leads/internal/admin"
	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

// writeServiceError maps service errors onto HTTP responses. Unrecognised
// errors are logged and reported as 500 without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		details := make([]httputil.FieldError, 0, len(verr.Violations))
		for _, v := range verr.Violations {
			details = append(details, httputil.FieldError{Field: v.Field, Message: v.Message})
		}
		httputil.WriteValidationError(w, details)
	case errors.Is(err, models.ErrConsentRequired):
		httputil.WriteCodedError(w, http.StatusUnprocessableEntity, "consent_required", err.Error())
	case errors.Is(err, models.ErrUnknownEntity):
		httputil.WriteCodedError(w, http.StatusNotFound, "unknown_entity", err.Error())
	case errors.Is(err, models.ErrInvalidAnswer):
		httputil.WriteCodedError(w, http.StatusConflict, "invalid_answer", err.Error())
	case errors.Is(err, admin.ErrAlreadyDelivered):
		httputil.WriteCodedError(w, http.StatusConflict, "already_delivered", err.Error())
	case errors.Is(err, models.ErrNotFound):
		httputil.WriteCodedError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, models.ErrForbidden):
		httputil.WriteCodedError(w, http.StatusForbidden, "forbidden", "forbidden")
	default:
		logger.ErrorContext(r.Context(), "request failed",
			logging.Method(r.Method),
			logging.Path(r.URL.Path),
			logging.Error(err))
		httputil.WriteCodedError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeBadRequest(w http.ResponseWriter, err error) {
	httputil.WriteCodedError(w, http.StatusBadRequest, "bad_request", err.Error())
}
