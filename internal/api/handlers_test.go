package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reforgerwatch/reforgerwatch/internal/auth"
	"github.com/reforgerwatch/reforgerwatch/internal/collector"
	"github.com/reforgerwatch/reforgerwatch/internal/config"
	"github.com/reforgerwatch/reforgerwatch/internal/domain"
	"github.com/reforgerwatch/reforgerwatch/internal/remote"
	"github.com/reforgerwatch/reforgerwatch/internal/storage"
)

type stubQuerier struct{}

func (stubQuerier) QueryInfo(string) (*collector.A2SInfo, error) {
	return &collector.A2SInfo{Name: "Test Server", Map: "Everon", Players: 3, MaxPlayers: 64}, nil
}

type stubSource struct{}

func (stubSource) List(string) ([]remote.DirEntry, error) {
	return []remote.DirEntry{
		{Name: "logs_2024-03-01_10-00-00", IsDir: true},
		{Name: "logs_2024-03-02_10-00-00", IsDir: true},
	}, nil
}

func (stubSource) Get(path string) ([]byte, error) {
	log := `10:58:20.001  SCRIPT       : serveradmintools_player_joined, player: Alice, identity: abc-1
10:58:23.456  BattlEye Server: Adding player name='Alice', port=50000
10:58:23.456  Alice connected (1.2.3.4:50000)
10:58:23.456  BattlEye Server: Player #0 Alice - BE GUID: aabbcc112233
10:59:01.200  SCRIPT       : serveradmintools_player_killed, victim: Bob, instigator: Alice, instigator_identity: abc-1
`
	return []byte(log), nil
}

func (stubSource) Close() error { return nil }

type stubBrowser struct{}

func (stubBrowser) Acquire() (remote.FileSource, error) { return stubSource{}, nil }
func (stubBrowser) CloseOnError()                       {}

type brokenBrowser struct{}

func (brokenBrowser) Acquire() (remote.FileSource, error) {
	return nil, errors.New("connection refused")
}
func (brokenBrowser) CloseOnError() {}

func newTestRouter(t *testing.T, files collector.FileBrowser) (*Router, *storage.Store, *auth.Service) {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		Server: config.ServerConfig{
			Name:            "Test Server",
			Host:            "127.0.0.1",
			QueryPort:       17777,
			GamePort:        2001,
			RefreshInterval: time.Minute,
		},
		Remote: config.RemoteConfig{BaseLogPath: "/profile/logs"},
	}
	engine := collector.NewEngine(cfg, store, files, stubQuerier{}, nil)

	// Seed the snapshot without starting the poll loops
	_, err = engine.Install(context.Background())
	require.NoError(t, err)

	authService := auth.NewService("test-secret", time.Hour)
	return NewRouter(store, engine, authService), store, authService
}

func doRequest(router *Router, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetStatus(t *testing.T) {
	router, _, _ := newTestRouter(t, stubBrowser{})

	rec := doRequest(router, http.MethodGet, "/api/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap domain.StatusSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	require.True(t, snap.State.Online)
	require.Equal(t, "Test Server", snap.State.Name)
	require.Equal(t, 3, snap.State.Players)
}

func TestGetLeaderboardStripsPlaceholders(t *testing.T) {
	router, _, _ := newTestRouter(t, stubBrowser{})

	rec := doRequest(router, http.MethodGet, "/api/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		TopKillers []domain.LeaderboardEntry `json:"top_killers"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.TopKillers, 1)
	require.Equal(t, "Alice", body.TopKillers[0].Name)
}

func TestGetPlayersRedaction(t *testing.T) {
	router, _, authService := newTestRouter(t, stubBrowser{})

	rec := doRequest(router, http.MethodGet, "/api/players", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var records []domain.PlayerRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&records))
	require.NotEmpty(t, records)
	require.Empty(t, records[0].GUID)
	require.Empty(t, records[0].IP)

	token, err := authService.GenerateToken(1, "alice", false)
	require.NoError(t, err)

	rec = doRequest(router, http.MethodGet, "/api/players", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	records = nil
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&records))
	require.Equal(t, "aabbcc112233", records[0].GUID)
	require.Equal(t, "1.2.3.4", records[0].IP)
}

func TestGetPlayerStats(t *testing.T) {
	router, _, _ := newTestRouter(t, stubBrowser{})

	rec := doRequest(router, http.MethodGet, "/api/players/abc-1/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats domain.PlayerKillStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	require.Equal(t, "abc-1", stats.Identity)
	require.Equal(t, 1, stats.Kills)
}

func TestGetPlayerStatsRemoteFailure(t *testing.T) {
	router, _, _ := newTestRouter(t, stubBrowser{})

	// Swap in a broken remote after the seed cycle
	router.engine = collector.NewEngine(&config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", QueryPort: 17777, RefreshInterval: time.Minute},
		Remote: config.RemoteConfig{BaseLogPath: "/profile/logs"},
	}, router.store, brokenBrowser{}, stubQuerier{}, nil)

	rec := doRequest(router, http.MethodGet, "/api/players/abc-1/stats", "", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRefreshRequiresAuth(t *testing.T) {
	router, _, authService := newTestRouter(t, stubBrowser{})

	rec := doRequest(router, http.MethodPost, "/api/refresh", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := authService.GenerateToken(1, "alice", false)
	require.NoError(t, err)

	rec = doRequest(router, http.MethodPost, "/api/refresh", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestInstallRequiresAdmin(t *testing.T) {
	router, _, authService := newTestRouter(t, stubBrowser{})

	userToken, err := authService.GenerateToken(1, "alice", false)
	require.NoError(t, err)
	rec := doRequest(router, http.MethodPost, "/api/install", userToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	adminToken, err := authService.GenerateToken(2, "root", true)
	require.NoError(t, err)
	rec = doRequest(router, http.MethodPost, "/api/install", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin(t *testing.T) {
	router, store, _ := newTestRouter(t, stubBrowser{})

	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)
	require.NoError(t, store.CreateUser(context.Background(), "alice", hash, false))

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "hunter2"})
	rec := doRequest(router, http.MethodPost, "/api/auth/login", "", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp loginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)
	require.Equal(t, "alice", resp.Username)

	body, _ = json.Marshal(map[string]string{"username": "alice", "password": "wrong"})
	rec = doRequest(router, http.MethodPost, "/api/auth/login", "", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	body, _ = json.Marshal(map[string]string{"username": "nobody", "password": "x"})
	rec = doRequest(router, http.MethodPost, "/api/auth/login", "", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	router, _, _ := newTestRouter(t, stubBrowser{})

	rec := doRequest(router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
