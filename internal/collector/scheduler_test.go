package collector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reforgerwatch/reforgerwatch/internal/config"
	"github.com/reforgerwatch/reforgerwatch/internal/domain"
	"github.com/reforgerwatch/reforgerwatch/internal/remote"
	"github.com/reforgerwatch/reforgerwatch/internal/storage"
)

type fakeQuerier struct {
	info *A2SInfo
	err  error
}

func (f *fakeQuerier) QueryInfo(address string) (*A2SInfo, error) {
	return f.info, f.err
}

type fakeSource struct {
	dirs  map[string][]remote.DirEntry
	files map[string][]byte
}

func (f *fakeSource) List(path string) ([]remote.DirEntry, error) {
	entries, ok := f.dirs[path]
	if !ok {
		return nil, errors.New("no such directory")
	}
	return entries, nil
}

func (f *fakeSource) Get(path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

func (f *fakeSource) Close() error { return nil }

type fakeBrowser struct {
	src    remote.FileSource
	err    error
	closed int
}

func (f *fakeBrowser) Acquire() (remote.FileSource, error) { return f.src, f.err }
func (f *fakeBrowser) CloseOnError()                       { f.closed++ }

const baseLogPath = "/profile/logs"

func liveInfo() *A2SInfo {
	return &A2SInfo{Name: "EU Conflict #1", Map: "Everon", Players: 42, MaxPlayers: 128}
}

// twoSessionSource serves a finished session log plus a newer live one
func twoSessionSource(finished, live string) *fakeSource {
	return &fakeSource{
		dirs: map[string][]remote.DirEntry{
			baseLogPath: {
				{Name: "logs_2024-03-01_10-00-00", IsDir: true},
				{Name: "logs_2024-03-02_10-00-00", IsDir: true},
				{Name: "crash.log", IsDir: false},
			},
		},
		files: map[string][]byte{
			baseLogPath + "/logs_2024-03-01_10-00-00/console.log": []byte(finished),
			baseLogPath + "/logs_2024-03-02_10-00-00/console.log": []byte(live),
		},
	}
}

func newTestEngine(t *testing.T, query LiveQuerier, files FileBrowser) *Engine {
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
		Remote: config.RemoteConfig{BaseLogPath: baseLogPath},
	}
	return NewEngine(cfg, store, files, query, nil)
}

func TestEngineCycleSuccess(t *testing.T) {
	browser := &fakeBrowser{src: twoSessionSource(sessionLog, "")}
	engine := newTestEngine(t, &fakeQuerier{info: liveInfo()}, browser)

	snap, err := engine.Install(context.Background())
	require.NoError(t, err)
	require.True(t, snap.State.Online)
	require.Equal(t, "EU Conflict #1", snap.State.Name)
	require.Equal(t, "Everon", snap.State.Map)
	require.Equal(t, 42, snap.State.Players)
	require.Equal(t, 128, snap.State.MaxPlayers)
	require.Equal(t, "127.0.0.1:2001", snap.State.Address)
	require.Equal(t, "US", snap.RoundWinner)
	require.NotEmpty(t, snap.ID)
	require.Equal(t, 60, snap.NextRefreshSeconds)

	require.Len(t, snap.Stats.TopKillers, domain.LeaderboardSize)
	require.Equal(t, "Alice", snap.Stats.TopKillers[0].Name)
	require.Equal(t, 2, snap.Stats.TopKillers[0].Kills)

	// Parsed records are persisted
	rec, err := engine.store.GetPlayer(context.Background(), "aabbcc112233")
	require.NoError(t, err)
	require.Equal(t, "Alice", rec.Name)
	require.Equal(t, "1.2.3.4", rec.IP)
	require.Equal(t, 2, rec.Kills)

	// The cached snapshot matches what the cycle returned
	cached := engine.Snapshot()
	require.Equal(t, snap.ID, cached.ID)
}

func TestEngineCycleDegradesOnQueryFailure(t *testing.T) {
	browser := &fakeBrowser{src: twoSessionSource(sessionLog, "")}
	engine := newTestEngine(t, &fakeQuerier{err: errors.New("timeout")}, browser)

	snap, err := engine.Install(context.Background())
	require.NoError(t, err)
	require.False(t, snap.State.Online)
	require.Equal(t, "Test Server", snap.State.Name)
	require.Zero(t, snap.State.Players)
	require.Zero(t, snap.State.MaxPlayers)
	require.Equal(t, "N/A", snap.State.Map)
	require.Equal(t, "N/A", snap.State.Uptime)
	require.Equal(t, "127.0.0.1:2001", snap.State.Address)

	for _, entry := range snap.Stats.TopKillers {
		require.True(t, entry.IsPlaceholder())
	}

	// The remote handle is razed so the next cycle reconnects fresh
	require.Equal(t, 1, browser.closed)
}

func TestEngineCycleDegradesOnRemoteFailure(t *testing.T) {
	browser := &fakeBrowser{err: errors.New("connection refused")}
	engine := newTestEngine(t, &fakeQuerier{info: liveInfo()}, browser)

	snap, err := engine.Install(context.Background())
	require.NoError(t, err)
	require.False(t, snap.State.Online)
	require.Equal(t, 1, browser.closed)
}

func TestEngineCycleNoSessionLogsKeepsLeaderboard(t *testing.T) {
	src := &fakeSource{dirs: map[string][]remote.DirEntry{baseLogPath: {}}}
	engine := newTestEngine(t, &fakeQuerier{info: liveInfo()}, &fakeBrowser{src: src})

	seeded := []domain.LeaderboardEntry{{Name: "Alice", Kills: 9}, {}, {}}
	require.NoError(t, engine.store.SetTopKillers(context.Background(), seeded))

	snap, err := engine.Install(context.Background())
	require.NoError(t, err)
	require.True(t, snap.State.Online)
	require.Equal(t, "Alice", snap.Stats.TopKillers[0].Name)
	require.Equal(t, 9, snap.Stats.TopKillers[0].Kills)
}

func TestEngineRefreshThrottled(t *testing.T) {
	browser := &fakeBrowser{src: twoSessionSource(sessionLog, "")}
	engine := newTestEngine(t, &fakeQuerier{info: liveInfo()}, browser)

	ctx := context.Background()
	_, err := engine.RefreshNow(ctx)
	require.NoError(t, err)
	_, err = engine.RefreshNow(ctx)
	require.NoError(t, err)

	_, err = engine.RefreshNow(ctx)
	require.ErrorIs(t, err, ErrRefreshThrottled)
}

func TestEnginePlayerStats(t *testing.T) {
	liveLog := `10:58:20.001  SCRIPT       : serveradmintools_player_joined, player: Alice, identity: abc-1
10:58:23.456  BattlEye Server: Adding player name='Alice', port=50000
10:58:23.456  Alice connected (1.2.3.4:50000)
10:58:23.456  BattlEye Server: Player #0 Alice - BE GUID: aabbcc112233
10:59:01.200  SCRIPT       : serveradmintools_player_killed, victim: Bob, instigator: Alice, instigator_identity: abc-1
`
	browser := &fakeBrowser{src: twoSessionSource(sessionLog, liveLog)}
	engine := newTestEngine(t, &fakeQuerier{info: liveInfo()}, browser)

	stats, err := engine.PlayerStats(context.Background(), "abc-1")
	require.NoError(t, err)
	require.Equal(t, "abc-1", stats.Identity)
	require.Equal(t, 1, stats.Kills)
	require.NotNil(t, stats.LastKill)

	// The live tally overwrites the stored record
	rec, err := engine.store.GetPlayer(context.Background(), "aabbcc112233")
	require.NoError(t, err)
	require.Equal(t, 1, rec.Kills)

	// And is merged into the persisted leaderboard
	top, err := engine.Leaderboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Alice", top[0].Name)
	require.Equal(t, 1, top[0].Kills)
}

func TestEnginePlayerStatsUnknownIdentity(t *testing.T) {
	// An identity absent from the live log reports a zero tally, not an error
	browser := &fakeBrowser{src: twoSessionSource(sessionLog, "")}
	engine := newTestEngine(t, &fakeQuerier{info: liveInfo()}, browser)

	stats, err := engine.PlayerStats(context.Background(), "no-such-identity")
	require.NoError(t, err)
	require.Zero(t, stats.Kills)
	require.Nil(t, stats.LastKill)
}

func TestEnginePlayerStatsNoSessionLogs(t *testing.T) {
	src := &fakeSource{dirs: map[string][]remote.DirEntry{baseLogPath: {}}}
	browser := &fakeBrowser{src: src}
	engine := newTestEngine(t, &fakeQuerier{info: liveInfo()}, browser)

	_, err := engine.PlayerStats(context.Background(), "abc-1")
	require.ErrorIs(t, err, remote.ErrNoSessionLogs)

	// Missing logs is not a connection fault
	require.Zero(t, browser.closed)
}

func TestFormatUptime(t *testing.T) {
	require.Equal(t, "0h 0m 0s", formatUptime(0))
	require.Equal(t, "0h 1m 5s", formatUptime(65*time.Second))
	require.Equal(t, "25h 0m 1s", formatUptime(25*time.Hour+time.Second))
}
