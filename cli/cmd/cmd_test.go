package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tschelli/lead-lander-sub001/cli/internal/config"
	"github.com/tschelli/lead-lander-sub001/common/tokens"
)

const testSecret = "cli-test-secret"

// run executes leadctl with args and returns what the command wrote to its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mint(t *testing.T, role, clientID string, accounts ...string) string {
	t.Helper()
	tok, err := tokens.NewTokenGenerator(testSecret, 0).Generate("ops-1", role, clientID, accounts)
	require.NoError(t, err)
	return tok
}

func TestCommandsRegistered(t *testing.T) {
	expected := map[string]bool{
		"login": false, "logout": false, "whoami": false,
		"submissions": false, "attempts": false, "audit": false,
		"requeue": false, "backfill": false, "seed": false,
		"token": false, "migrate": false, "stats": false,
	}
	for _, c := range rootCmd.Commands() {
		name := strings.Fields(c.Use)[0]
		if _, ok := expected[name]; ok {
			expected[name] = true
		}
	}
	for name, found := range expected {
		assert.True(t, found, "command %q not registered", name)
	}

	sub := map[string]bool{}
	for _, c := range submissionsCmd.Commands() {
		sub[c.Name()] = true
	}
	assert.True(t, sub["list"])
	assert.True(t, sub["get"])
}

func TestTokenMintThenLogin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := run(t, "token", "mint", "--config", path, "--user", "ops-1", "--role", "client_admin", "--client", "c1", "--secret", testSecret)
	require.NoError(t, err)
	tok := strings.TrimSpace(out)

	claims, err := tokens.NewTokenGenerator(testSecret, 0).Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "ops-1", claims.UserID)
	assert.Equal(t, tokens.RoleClientAdmin, claims.Role)
	assert.Equal(t, "c1", claims.ClientID)

	_, err = run(t, "login", "--config", path, "--token", tok, "--api-url", "http://leads.local")
	require.NoError(t, err)

	saved, err := config.Load(path)
	require.NoError(t, err)
	p, err := saved.GetProfile("")
	require.NoError(t, err)
	assert.Equal(t, tok, p.Token)
	assert.Equal(t, "http://leads.local", p.APIURL)

	out, err = run(t, "whoami", "--config", path, "-o", "json", "--api-url", "")
	require.NoError(t, err)
	var who map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &who))
	assert.Equal(t, "client_admin", who["role"])
	assert.Equal(t, "c1", who["clientId"])
	assert.Equal(t, "http://leads.local", who["apiUrl"])
}

func TestLogin_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_, err := run(t, "login", "--config", path, "--token", "not-a-jwt")
	assert.Error(t, err)
}

func TestCheckScope(t *testing.T) {
	assert.NoError(t, checkScope(tokens.RoleSuperAdmin, "", nil))
	assert.NoError(t, checkScope(tokens.RoleClientAdmin, "c1", nil))
	assert.NoError(t, checkScope(tokens.RoleAccountViewer, "c1", []string{"a1"}))

	assert.Error(t, checkScope("root", "", nil))
	assert.Error(t, checkScope(tokens.RoleClientAdmin, "", nil))
	assert.Error(t, checkScope(tokens.RoleAccountAdmin, "c1", nil))
}

func TestAdminCommands_RequireLogin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_, err := run(t, "attempts", "sub-1", "--config", path, "--api-url", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestAdminCommands_AgainstAPI(t *testing.T) {
	tok := mint(t, tokens.RoleSuperAdmin, "")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+tok, r.Header.Get("Authorization"))
		switch r.Method + " " + r.URL.Path {
		case "GET /v1/admin/submissions":
			assert.Equal(t, "c1", r.URL.Query().Get("clientId"))
			_, _ = w.Write([]byte(`{"submissions":[{"id":"sub-1","status":"delivered","accountId":"a1","programId":"p1","crmLeadId":"lead-9","contact":{"email":"ada@example.com"}}],"pagination":{"page":1,"limit":50,"total":1}}`))
		case "POST /v1/admin/submissions/sub-2/requeue":
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"submissionId":"sub-2","status":"received","requeued":true,"enqueued":true}`))
		case "POST /v1/admin/submissions/sub-3/requeue":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"submission already delivered","code":"already_delivered"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.SaveProfile("default", server.URL, tok))

	out, err := run(t, "submissions", "list", "--config", path, "--api-url", "", "--client", "c1", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "sub-1")
	assert.Contains(t, out, "lead-9")
	assert.Contains(t, out, "page 1, 1 of 1")

	out, err = run(t, "requeue", "sub-2", "--config", path, "--api-url", "", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"submissionId":"sub-2","status":"received","requeued":true,"enqueued":true}`, out)

	_, err = run(t, "requeue", "sub-3", "--config", path, "--api-url", "", "-o", "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already_delivered")
}
