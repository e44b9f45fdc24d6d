package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		body    string
		max     int64
		wantErr string
	}{
		{name: "valid", body: `{"name":"x"}`, max: 1024},
		{name: "empty", body: ``, max: 1024, wantErr: "empty"},
		{name: "unknown field", body: `{"nme":"x"}`, max: 1024, wantErr: "unknown field"},
		{name: "too large", body: `{"name":"` + strings.Repeat("a", 100) + `"}`, max: 16, wantErr: "exceeds"},
		{name: "trailing object", body: `{"name":"x"}{"name":"y"}`, max: 1024, wantErr: "single JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst payload
			err := DecodeJSON(httptest.NewRecorder(), req, tt.max, &dst)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "x", dst.Name)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.195, 70.41.3.18"}, "10.0.0.1:1234", "203.0.113.195"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.7"}, "10.0.0.1:1234", "198.51.100.7"},
		{"remote addr strips port", nil, "192.0.2.10:5555", "192.0.2.10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(req))
		})
	}
}

func TestParsePagination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=3&limit=5000", nil)
	p := ParsePagination(req, 50, 200)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 200, p.Limit)
	assert.Equal(t, 400, p.Offset())

	req = httptest.NewRequest(http.MethodGet, "/?page=-1&limit=0", nil)
	p = ParsePagination(req, 50, 200)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 50, p.Limit)
}

func TestParseTimeParam(t *testing.T) {
	ts, err := ParseTimeParam("")
	require.NoError(t, err)
	assert.Nil(t, ts)

	ts, err = ParseTimeParam("2026-01-02T03:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, 2026, ts.Year())

	_, err = ParseTimeParam("yesterday")
	assert.Error(t, err)
}
