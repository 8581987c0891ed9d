package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waabox/watchsweep/internal/credential"
	"github.com/waabox/watchsweep/internal/domain"
	"github.com/waabox/watchsweep/internal/sweep"
)

type cliTestEnv struct {
	configPath  string
	credentials string
	trakt       *fakeTrakt
	sonarr      *fakeSonarr
}

type fakeTrakt struct {
	mu          sync.Mutex
	validToken  string
	refreshes   int
	authHeaders []string
}

func (f *fakeTrakt) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/oauth/token":
		f.refreshes++
		f.validToken = "refreshed_access"
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "refreshed_access",
			"refresh_token": "refreshed_refresh",
			"token_type":    "bearer",
			"expires_in":    7776000,
			"created_at":    time.Now().Unix(),
		})
	case "/sync/history/episodes":
		f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") != "Bearer "+f.validToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("X-Pagination-Page-Count", "1")
		json.NewEncoder(w).Encode([]map[string]interface{}{{
			"id":         1,
			"watched_at": time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
			"episode": map[string]interface{}{
				"season": 1, "number": 1, "title": "Winter Is Coming",
				"ids": map[string]interface{}{"trakt": 73640, "tvdb": 3254641},
			},
			"show": map[string]interface{}{
				"title": "Game of Thrones",
				"ids":   map[string]interface{}{"trakt": 1390, "tvdb": 121361},
			},
		}})
	default:
		http.NotFound(w, r)
	}
}

type fakeSonarr struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeSonarr) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := strings.ToLower(r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.Contains(p, "episodefile") && r.Method == http.MethodDelete:
		f.deleted = append(f.deleted, path.Base(r.URL.Path))
		w.WriteHeader(http.StatusOK)
	case strings.Contains(p, "episode"):
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": 70, "seriesId": 7, "tvdbId": 3254641, "episodeFileId": 500, "seasonNumber": 1, "episodeNumber": 1, "title": "Winter Is Coming", "hasFile": true},
		})
	case strings.Contains(p, "series"):
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": 7, "title": "Game of Thrones", "tvdbId": 121361},
		})
	default:
		http.NotFound(w, r)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"TRAKT_ID", "TRAKT_CLIENT_ID", "TRAKT_API_KEY", "TRAKT_SECRET", "TRAKT_CLIENT_SECRET", "TRAKT_URL",
		"SONARR_URL", "SONARR_APIKEY", "SONARR_API_KEY", "WATCHSWEEP_CREDENTIALS", "TOKEN_PATH",
		"WATCHSWEEP_HISTORY_DAYS", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(name, "")
	}
}

func setupCLITestEnv(t *testing.T, storedToken string) *cliTestEnv {
	t.Helper()
	clearEnv(t)

	env := &cliTestEnv{
		trakt:  &fakeTrakt{validToken: storedToken},
		sonarr: &fakeSonarr{},
	}
	traktSrv := httptest.NewServer(env.trakt)
	t.Cleanup(traktSrv.Close)
	sonarrSrv := httptest.NewServer(env.sonarr)
	t.Cleanup(sonarrSrv.Close)

	base := t.TempDir()
	env.configPath = filepath.Join(base, "config.toml")
	env.credentials = filepath.Join(base, "trakt.json")
	content := fmt.Sprintf(`
[trakt]
client_id = "client"
client_secret = "secret"
url = %q

[sonarr]
url = %q
api_key = "sonarr_key"

[credentials]
path = %q

[log]
level = "error"
`, traktSrv.URL, sonarrSrv.URL, env.credentials)
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0o600))

	require.NoError(t, credential.NewFileStore(env.credentials).Save(domain.Authorization{
		AccessToken:  "stored_access",
		RefreshToken: "stored_refresh",
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(30 * 24 * time.Hour),
	}))
	return env
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSweepCommand_DeletesWatchedEpisodeFile(t *testing.T) {
	env := setupCLITestEnv(t, "stored_access")

	out, err := runCLI(t, "--config", env.configPath, "--plain")
	require.NoError(t, err)
	assert.Equal(t, []string{"500"}, env.sonarr.deleted)
	assert.Contains(t, out, "Winter Is Coming")
	assert.Contains(t, out, "S01E01")
	assert.Equal(t, []string{"Bearer stored_access"}, env.trakt.authHeaders)
}

func TestSweepCommand_DryRunDeletesNothing(t *testing.T) {
	env := setupCLITestEnv(t, "stored_access")

	out, err := runCLI(t, "--config", env.configPath, "--plain", "--dry-run")
	require.NoError(t, err)
	assert.Empty(t, env.sonarr.deleted)
	assert.Contains(t, out, "Would delete")
}

func TestSweepCommand_RefreshesRejectedTokenAndPersists(t *testing.T) {
	env := setupCLITestEnv(t, "something_else")

	_, err := runCLI(t, "--config", env.configPath, "--plain")
	require.NoError(t, err)
	assert.Equal(t, 1, env.trakt.refreshes)
	assert.Equal(t, []string{"Bearer stored_access", "Bearer refreshed_access"}, env.trakt.authHeaders)
	assert.Equal(t, []string{"500"}, env.sonarr.deleted)

	stored, err := credential.NewFileStore(env.credentials).Load()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "refreshed_access", stored.AccessToken)
	assert.Equal(t, "refreshed_refresh", stored.RefreshToken)
}

func TestSweepCommand_RejectsPlaceholderConfig(t *testing.T) {
	clearEnv(t)
	missing := filepath.Join(t.TempDir(), "config.toml")

	_, err := runCLI(t, "--config", missing, "--plain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trakt.client_id")
}

func TestStatusCommand_ReportsStoredCredentials(t *testing.T) {
	env := setupCLITestEnv(t, "stored_access")

	out, err := runCLI(t, "status", "--config", env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, env.credentials)
	assert.Contains(t, out, "yes")
}

func TestStatusCommand_ReportsMissingCredentials(t *testing.T) {
	env := setupCLITestEnv(t, "stored_access")
	require.NoError(t, os.Remove(env.credentials))

	out, err := runCLI(t, "status", "--config", env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "watchsweep login")
}

func TestConfigInitCommand_WritesSampleOnce(t *testing.T) {
	clearEnv(t)
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, err := runCLI(t, "config", "init", "--config", target)
	require.NoError(t, err)
	assert.Contains(t, out, target)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "default_client_id_here")

	_, err = runCLI(t, "config", "init", "--config", target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--overwrite")
}

func TestRenderReport_ListsDeletionsAndCounts(t *testing.T) {
	out := renderReport(sweep.Report{
		Seen:    3,
		Skipped: 1,
		NoFile:  1,
		Deleted: []sweep.Deletion{{Show: "Game of Thrones", Season: 1, Number: 1, Title: "Winter Is Coming", EpisodeFileID: 500}},
	})
	assert.Contains(t, out, "Deleted:")
	assert.Contains(t, out, "Game of Thrones")
	assert.Contains(t, out, "S01E01")
	assert.Contains(t, out, "History entries: 3")
	assert.Contains(t, out, "not in library: 1")
}

func TestRenderReport_EmptyDryRun(t *testing.T) {
	out := renderReport(sweep.Report{DryRun: true})
	assert.Contains(t, out, "Would delete: nothing")
}

func TestHoldLogs_BuffersUntilReleased(t *testing.T) {
	var out bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&out)

	held := holdLogs(logger)
	logger.Warn("token poll failed")
	assert.Empty(t, out.String())

	held.release()
	assert.Contains(t, out.String(), "token poll failed")

	logger.Info("sweeping watch history")
	assert.Contains(t, out.String(), "sweeping watch history")
}
