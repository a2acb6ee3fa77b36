package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storybook-server/internal/handler"
	"storybook-server/internal/rollout"
	"storybook-server/shared/models"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestQuote_JSON(t *testing.T) {
	out, err := runCLI(t, "quote", "--length", "long", "--images", "--audio", "--json")
	require.NoError(t, err)

	var q models.CostQuote
	require.NoError(t, json.Unmarshal([]byte(out), &q))
	assert.Equal(t, models.StoryLengthLong, q.StoryType)
	assert.Equal(t, int64(45), q.TotalCost)
}

func TestQuote_Table(t *testing.T) {
	out, err := runCLI(t, "quote", "--length", "short")
	require.NoError(t, err)
	assert.Contains(t, out, "chapters")
	assert.Contains(t, out, "total")
}

func TestQuote_UnknownLength(t *testing.T) {
	_, err := runCLI(t, "quote", "--length", "epic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "epic")
}

func TestMigrationPreset_PostsToAdminAPI(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody handler.PresetRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		cfg, _ := rollout.PresetConfig(gotBody.Name)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handler.MigrationStatusResponse{Kind: "image", Config: cfg, Presets: rollout.PresetNames()})
	}))
	defer srv.Close()

	out, err := runCLI(t, "--api", srv.URL, "--token", "admin-token", "--json", "migration", "preset", "beta", "--kind", "image")
	require.NoError(t, err)

	assert.Equal(t, "/admin/migration/image/preset", gotPath)
	assert.Equal(t, "Bearer admin-token", gotAuth)
	assert.Equal(t, "beta", gotBody.Name)

	var status handler.MigrationStatusResponse
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, 10, status.Config.RolloutPercentage)
}

func TestMigrationStatus_RendersTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/admin/migration/text", r.URL.Path)
		_ = json.NewEncoder(w).Encode(handler.MigrationStatusResponse{Kind: "text", Config: rollout.DefaultConfig()})
	}))
	defer srv.Close()

	out, err := runCLI(t, "--api", srv.URL, "--token", "t", "migration", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "rollout")
	assert.Contains(t, out, "0%")
}

func TestAPIError_Decoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: "Admin role required", Code: "FORBIDDEN"})
	}))
	defer srv.Close()

	_, err := runCLI(t, "--api", srv.URL, "--token", "t", "migration", "emergency")
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "FORBIDDEN", apiErr.Code)
}

func TestCreditsGrant_RequiresUser(t *testing.T) {
	_, err := runCLI(t, "--token", "t", "credits", "grant", "--amount", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--user")
}

func TestMissingToken(t *testing.T) {
	t.Setenv("STORYCTL_TOKEN", "")
	_, err := runCLI(t, "migration", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token")
}
