package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tschelli/lead-lander-sub001/common/tokens"
)

func TestPrincipal_Permissions(t *testing.T) {
	tests := []struct {
		name      string
		p         Principal
		client    string
		account   string
		wantRead  bool
		wantWrite bool
	}{
		{"super admin any tenant", Principal{Role: tokens.RoleSuperAdmin}, "c9", "a9", true, true},
		{"client admin own client", Principal{Role: tokens.RoleClientAdmin, ClientID: "c1"}, "c1", "a9", true, true},
		{"client admin other client", Principal{Role: tokens.RoleClientAdmin, ClientID: "c1"}, "c2", "a1", false, false},
		{"account admin listed", Principal{Role: tokens.RoleAccountAdmin, ClientID: "c1", AccountIDs: []string{"a1"}}, "c1", "a1", true, true},
		{"account admin unlisted", Principal{Role: tokens.RoleAccountAdmin, ClientID: "c1", AccountIDs: []string{"a1"}}, "c1", "a2", false, false},
		{"account admin wrong client", Principal{Role: tokens.RoleAccountAdmin, ClientID: "c1", AccountIDs: []string{"a1"}}, "c2", "a1", false, false},
		{"viewer reads only", Principal{Role: tokens.RoleAccountViewer, ClientID: "c1", AccountIDs: []string{"a1"}}, "c1", "a1", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantRead, tt.p.CanRead(tt.client, tt.account))
			assert.Equal(t, tt.wantWrite, tt.p.CanWrite(tt.client, tt.account))
		})
	}
}

func TestPrincipal_Scopes(t *testing.T) {
	super := &Principal{Role: tokens.RoleSuperAdmin}
	_, ok := super.ClientScope("")
	assert.False(t, ok)
	c, ok := super.ClientScope("c2")
	assert.True(t, ok)
	assert.Equal(t, "c2", c)
	assert.Nil(t, super.AccountScope())

	admin := &Principal{Role: tokens.RoleClientAdmin, ClientID: "c1"}
	c, ok = admin.ClientScope("")
	assert.True(t, ok)
	assert.Equal(t, "c1", c)
	_, ok = admin.ClientScope("c2")
	assert.False(t, ok)

	viewer := &Principal{Role: tokens.RoleAccountViewer, ClientID: "c1"}
	assert.Equal(t, []string{}, viewer.AccountScope())
}

func TestRequireAuth(t *testing.T) {
	gen := tokens.NewTokenGenerator("secret", time.Hour)
	valid, err := gen.Generate("u1", tokens.RoleClientAdmin, "c1", nil)
	require.NoError(t, err)
	forged, err := tokens.NewTokenGenerator("other", time.Hour).Generate("u1", tokens.RoleSuperAdmin, "", nil)
	require.NoError(t, err)

	var seen *Principal
	handler := NewMiddleware(gen).RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"forged", "Bearer " + forged, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/v1/admin/submissions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, "u1", seen.UserID)
				assert.Equal(t, "c1", seen.ClientID)
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}
