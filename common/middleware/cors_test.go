package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	handler := CORS(LandingPageCORS([]string{"https://apply.example.edu", "*.landers.io"}))(next)

	tests := []struct {
		name        string
		method      string
		origin      string
		wantStatus  int
		wantAllowed string
	}{
		{"exact origin", http.MethodPost, "https://apply.example.edu", http.StatusCreated, "https://apply.example.edu"},
		{"wildcard origin", http.MethodPost, "https://nursing.landers.io", http.StatusCreated, "https://nursing.landers.io"},
		{"unknown origin", http.MethodPost, "https://evil.test", http.StatusCreated, ""},
		{"preflight", http.MethodOptions, "https://apply.example.edu", http.StatusNoContent, "https://apply.example.edu"},
		{"no origin", http.MethodPost, "", http.StatusCreated, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/submissions", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllowed, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORS_Star(t *testing.T) {
	handler := CORS(LandingPageCORS([]string{"*"}))(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodOptions, "/v1/quiz/sessions", nil)
	req.Header.Set("Origin", "https://anything.test")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "https://anything.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
}
