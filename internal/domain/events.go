package domain

import "time"

// Log event types emitted by the session log parser
const (
	LogEventPlayerJoined = "player_joined"
	LogEventPlayerKilled = "player_killed"
	LogEventRoundEnded   = "round_ended"
)

// LogEvent is a typed event extracted from one line of the server console log
type LogEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// PlayerJoinedData carries the session identity assigned to a joining player
type PlayerJoinedData struct {
	Name     string `json:"name"`
	Identity string `json:"identity"`
}

// PlayerKilledData identifies the killer of a confirmed player kill. Kills by
// AI or the environment are never emitted.
type PlayerKilledData struct {
	KillerName     string `json:"killer_name"`
	KillerIdentity string `json:"killer_identity"`
}

// RoundEndedData carries the winning faction of a finished round
type RoundEndedData struct {
	Winner string `json:"winner"`
}

// Bus event types for snapshot/leaderboard notifications
const (
	EventSnapshot    = "snapshot"
	EventLeaderboard = "leaderboard"
)

// Event wraps a payload for the bus and WebSocket subscribers
type Event struct {
	Type      string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}
