package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/reforgerwatch/reforgerwatch/internal/config"
	"github.com/reforgerwatch/reforgerwatch/internal/domain"
	"github.com/reforgerwatch/reforgerwatch/internal/remote"
	"github.com/reforgerwatch/reforgerwatch/internal/storage"
)

var (
	// ErrRefreshInFlight means a refresh pipeline is already running; at
	// most one runs at a time.
	ErrRefreshInFlight = errors.New("refresh already in flight")
	// ErrRefreshThrottled means manual refreshes are arriving faster than
	// the rate limit allows.
	ErrRefreshThrottled = errors.New("refresh rate limit exceeded")
)

// LiveQuerier queries the game server's live state
type LiveQuerier interface {
	QueryInfo(address string) (*A2SInfo, error)
}

// FileBrowser hands out the shared remote connection
type FileBrowser interface {
	Acquire() (remote.FileSource, error)
	CloseOnError()
}

// Publisher pushes snapshots and leaderboard updates to subscribers
type Publisher interface {
	PublishSnapshot(*domain.StatusSnapshot) error
	PublishLeaderboard([]domain.LeaderboardEntry) error
}

// Engine drives the poll cycle: query live state, fetch and parse the session
// log, refresh player records and the leaderboard, and publish a snapshot.
// All mutable scheduler state lives here, guarded by mu; the Querying phase
// is single-flight via cycleMu.
type Engine struct {
	cfg     *config.Config
	store   *storage.Store
	files   FileBrowser
	query   LiveQuerier
	pub     Publisher
	archive *remote.Archive

	// cycleMu makes the refresh pipeline single-flight: a cycle triggered
	// while another is mid-flight is rejected, not queued.
	cycleMu sync.Mutex

	mu            sync.RWMutex
	snapshot      *domain.StatusSnapshot
	serverStart   *time.Time // uptime clock; nil while the server is offline
	nextRefreshAt time.Time

	limiter *rate.Limiter // manual refresh rate limit

	done chan struct{}
	wg   sync.WaitGroup
}

// NewEngine creates the poll engine. pub may be nil when no bus is attached.
func NewEngine(cfg *config.Config, store *storage.Store, files FileBrowser, query LiveQuerier, pub Publisher) *Engine {
	return &Engine{
		cfg:     cfg,
		store:   store,
		files:   files,
		query:   query,
		pub:     pub,
		archive: remote.NewArchive(cfg.Remote.ArchiveDir),
		limiter: rate.NewLimiter(rate.Every(10*time.Second), 2),
		done:    make(chan struct{}),
	}
}

// Start seeds an offline snapshot and begins the poll and countdown loops
func (e *Engine) Start(ctx context.Context) {
	now := time.Now().UTC()
	e.setSnapshot(e.offlineSnapshot(now))

	e.wg.Add(2)
	go e.pollLoop(ctx)
	go e.countdownLoop(ctx)
	log.Printf("Engine: started, polling every %v", e.cfg.Server.RefreshInterval)
}

// Stop halts the loops and waits for them to finish
func (e *Engine) Stop() {
	close(e.done)
	e.wg.Wait()
	log.Println("Engine: stopped")
}

// Snapshot returns the last composed snapshot. Never nil after Start.
func (e *Engine) Snapshot() *domain.StatusSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.snapshot == nil {
		return nil
	}
	snap := *e.snapshot
	return &snap
}

// Leaderboard returns the persisted top killers list
func (e *Engine) Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	return e.store.GetTopKillers(ctx)
}

// RefreshNow services a manual refresh request through the same pipeline as
// the timer. Overlapping requests are rejected, not queued.
func (e *Engine) RefreshNow(ctx context.Context) (*domain.StatusSnapshot, error) {
	if !e.limiter.Allow() {
		return nil, ErrRefreshThrottled
	}
	return e.runCycle(ctx)
}

// Install performs an immediate full cycle and returns the fresh snapshot so
// a presentation collaborator can seed its persisted message.
func (e *Engine) Install(ctx context.Context) (*domain.StatusSnapshot, error) {
	return e.runCycle(ctx)
}

// pollLoop runs the refresh cycle on a fixed interval
func (e *Engine) pollLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Server.RefreshInterval)
	defer ticker.Stop()

	e.tick(ctx)

	for {
		select {
		case <-e.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	if _, err := e.runCycle(ctx); err != nil {
		if errors.Is(err, ErrRefreshInFlight) {
			log.Println("Engine: refresh in flight, skipping tick")
			return
		}
		log.Printf("Engine: refresh cycle error: %v", err)
	}
}

// countdownLoop re-renders the cached snapshot once per second with an
// updated countdown. It performs no I/O and is superseded by the next cycle.
func (e *Engine) countdownLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.snapshot == nil {
				e.mu.Unlock()
				continue
			}
			remaining := int(time.Until(e.nextRefreshAt).Seconds())
			if remaining < 0 {
				remaining = 0
			}
			e.snapshot.NextRefreshSeconds = remaining
			snap := *e.snapshot
			e.mu.Unlock()

			e.publishSnapshot(&snap)
		}
	}
}

// runCycle executes one refresh pipeline: Querying, then Presenting on
// success or Degraded on any failure. Remote and parse errors never escape;
// they are converted into an offline snapshot.
func (e *Engine) runCycle(ctx context.Context) (*domain.StatusSnapshot, error) {
	if !e.cycleMu.TryLock() {
		return nil, ErrRefreshInFlight
	}
	defer e.cycleMu.Unlock()

	now := time.Now().UTC()

	info, err := e.query.QueryInfo(e.cfg.Server.QueryAddress())
	if err != nil {
		log.Printf("Engine: live query failed: %v", err)
		return e.degrade(now), nil
	}

	topKillers, winner, err := e.refreshStats(ctx, now)
	if err != nil {
		log.Printf("Engine: stats refresh failed: %v", err)
		return e.degrade(now), nil
	}

	e.mu.Lock()
	if e.serverStart == nil {
		t := now
		e.serverStart = &t
	}
	uptime := formatUptime(now.Sub(*e.serverStart))
	e.mu.Unlock()

	snap := &domain.StatusSnapshot{
		ID: uuid.NewString(),
		State: domain.ServerState{
			Online:     true,
			Name:       serverName(info.Name, e.cfg.Server.Name),
			Players:    info.Players,
			MaxPlayers: info.MaxPlayers,
			Map:        mapName(info.Map),
			Address:    e.cfg.Server.GameAddress(),
			Uptime:     uptime,
			UpdatedAt:  now,
		},
		Stats:              domain.ServerStatistics{TopKillers: topKillers},
		RoundWinner:        winner,
		NextRefreshSeconds: int(e.cfg.Server.RefreshInterval.Seconds()),
		GeneratedAt:        now,
	}
	e.setSnapshot(snap)
	return snap, nil
}

// refreshStats pulls the last finished session's console log, rebuilds every
// referenced player record, and recomputes the top killers in bulk.
func (e *Engine) refreshStats(ctx context.Context, now time.Time) ([]domain.LeaderboardEntry, string, error) {
	src, err := e.files.Acquire()
	if err != nil {
		return nil, "", err
	}

	dir, err := remote.CurrentSessionDir(src, e.cfg.Remote.BaseLogPath)
	if errors.Is(err, remote.ErrNoSessionLogs) {
		// No stats available yet; keep whatever is persisted
		entries, kerr := e.store.GetTopKillers(ctx)
		return entries, "", kerr
	}
	if err != nil {
		return nil, "", err
	}

	logText, err := remote.FetchConsoleLog(src, dir)
	if err != nil {
		return nil, "", err
	}
	if err := e.archive.Save(dir, []byte(logText)); err != nil {
		log.Printf("Engine: archiving session log failed: %v", err)
	}

	stats := ParseSessionLog(logText, now)
	for i := range stats.Records {
		if err := e.store.UpsertPlayer(ctx, &stats.Records[i]); err != nil {
			return nil, "", err
		}
	}

	records, err := e.store.ListPlayers(ctx)
	if err != nil {
		return nil, "", err
	}
	topKillers := RecomputeTopKillers(records)
	if err := e.store.SetTopKillers(ctx, topKillers); err != nil {
		return nil, "", err
	}
	e.publishLeaderboard(topKillers)

	return topKillers, stats.Winner, nil
}

// PlayerStats re-parses the freshest session log (the one still being
// written) for a single identity, updates its record, and merges the result
// into the top killers incrementally. Unlike the poll cycle, errors here are
// surfaced to the caller.
func (e *Engine) PlayerStats(ctx context.Context, identity string) (*domain.PlayerKillStats, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	now := time.Now().UTC()

	src, err := e.files.Acquire()
	if err != nil {
		e.files.CloseOnError()
		return nil, err
	}

	dir, err := remote.LatestSessionDir(src, e.cfg.Remote.BaseLogPath)
	if err != nil {
		if !errors.Is(err, remote.ErrNoSessionLogs) {
			e.files.CloseOnError()
		}
		return nil, err
	}

	logText, err := remote.FetchConsoleLog(src, dir)
	if err != nil {
		e.files.CloseOnError()
		return nil, err
	}

	stats := ParseSessionLog(logText, now, identity)
	for i := range stats.Records {
		if err := e.store.UpsertPlayer(ctx, &stats.Records[i]); err != nil {
			return nil, err
		}
	}

	killStats := stats.KillsFor(identity, now)

	rec, err := e.store.GetPlayerByIdentity(ctx, identity)
	if errors.Is(err, storage.ErrNotFound) {
		// Identity not bound to a stored record yet; tally only
		return &killStats, nil
	}
	if err != nil {
		return nil, err
	}

	rec.Kills = killStats.Kills
	rec.LastKill = killStats.LastKill
	rec.LastUpdated = now
	if err := e.store.UpsertPlayer(ctx, rec); err != nil {
		return nil, err
	}

	existing, err := e.store.GetTopKillers(ctx)
	if err != nil {
		return nil, err
	}
	merged := MergeTopKillers(existing, domain.LeaderboardEntry{
		Name:     rec.Name,
		Kills:    rec.Kills,
		LastKill: rec.LastKill,
	})
	if err := e.store.SetTopKillers(ctx, merged); err != nil {
		return nil, err
	}
	e.publishLeaderboard(merged)

	return &killStats, nil
}

// degrade composes the offline snapshot, resets the uptime clock, and razes
// the remote connection so the next cycle reconnects fresh
func (e *Engine) degrade(now time.Time) *domain.StatusSnapshot {
	e.mu.Lock()
	e.serverStart = nil
	e.mu.Unlock()

	e.files.CloseOnError()

	snap := e.offlineSnapshot(now)
	e.setSnapshot(snap)
	return snap
}

// offlineSnapshot zeroes the live fields but preserves the configured server
// address
func (e *Engine) offlineSnapshot(now time.Time) *domain.StatusSnapshot {
	return &domain.StatusSnapshot{
		ID: uuid.NewString(),
		State: domain.ServerState{
			Online:     false,
			Name:       e.cfg.Server.Name,
			Players:    0,
			MaxPlayers: 0,
			Map:        "N/A",
			Address:    e.cfg.Server.GameAddress(),
			Uptime:     "N/A",
			UpdatedAt:  now,
		},
		Stats:              domain.ServerStatistics{TopKillers: padTopKillers(nil)},
		NextRefreshSeconds: int(e.cfg.Server.RefreshInterval.Seconds()),
		GeneratedAt:        now,
	}
}

func (e *Engine) setSnapshot(snap *domain.StatusSnapshot) {
	e.mu.Lock()
	e.snapshot = snap
	e.nextRefreshAt = snap.GeneratedAt.Add(e.cfg.Server.RefreshInterval)
	e.mu.Unlock()

	e.publishSnapshot(snap)
}

func (e *Engine) publishSnapshot(snap *domain.StatusSnapshot) {
	if e.pub == nil {
		return
	}
	if err := e.pub.PublishSnapshot(snap); err != nil {
		log.Printf("Engine: publishing snapshot: %v", err)
	}
}

func (e *Engine) publishLeaderboard(entries []domain.LeaderboardEntry) {
	if e.pub == nil {
		return
	}
	if err := e.pub.PublishLeaderboard(entries); err != nil {
		log.Printf("Engine: publishing leaderboard: %v", err)
	}
}

// serverName prefers the live-reported name, falling back to the configured
// one
func serverName(live, configured string) string {
	if live != "" {
		return live
	}
	return configured
}

func mapName(live string) string {
	if live == "" {
		return "Unknown"
	}
	return live
}

// formatUptime renders a duration as "1h 2m 3s"
func formatUptime(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%dh %dm %ds", total/3600, (total%3600)/60, total%60)
}
