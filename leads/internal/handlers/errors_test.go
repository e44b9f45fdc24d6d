package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tschelli/lead-lander-sub001/common/logging"
	"github.com/tschelli/lead-lander-sub001/leads/internal/admin"
	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
	"github.com/tschelli/lead-lander-sub001/leads/internal/quiz"
	"github.com/tschelli/lead-lander-sub001/leads/internal/repository"
)

func TestWriteServiceError(t *testing.T) {
	verr := &models.ValidationError{}
	verr.Add("contact.phone", "must contain 10 to 15 digits")

	tests := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"validation", verr, http.StatusBadRequest, "validation_error"},
		{"consent", models.ErrConsentRequired, http.StatusUnprocessableEntity, "consent_required"},
		{"unknown entity", fmt.Errorf("%w: program %q", models.ErrUnknownEntity, "p9"), http.StatusNotFound, "unknown_entity"},
		{"invalid answer", fmt.Errorf("%w: option", models.ErrInvalidAnswer), http.StatusConflict, "invalid_answer"},
		{"delivered", admin.ErrAlreadyDelivered, http.StatusConflict, "already_delivered"},
		{"submission not found", repository.ErrSubmissionNotFound, http.StatusNotFound, "not_found"},
		{"session not found", quiz.ErrSessionNotFound, http.StatusNotFound, "not_found"},
		{"forbidden", fmt.Errorf("%w: account a2", models.ErrForbidden), http.StatusForbidden, "forbidden"},
		{"internal", errors.New("connection refused"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			writeServiceError(rec, req, logging.Discard(), tt.err)

			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"code":"`+tt.code+`"`)
			assert.NotContains(t, rec.Body.String(), "connection refused")
		})
	}
}
