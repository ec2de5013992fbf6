package domain

import "time"

// PlayerRecord holds the derived stats for one player, keyed by BattlEye GUID.
// The GUID is the authoritative cross-session key; Identity is assigned per
// session by the game server and is only meaningful within the session it was
// observed in.
type PlayerRecord struct {
	GUID        string     `json:"be_guid"`
	Identity    string     `json:"identity"`
	Name        string     `json:"name"`
	IP          string     `json:"ip,omitempty"`
	Kills       int        `json:"kills"`
	LastKill    *time.Time `json:"last_kill,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
}

// LeaderboardSize is the fixed length of the top killers list.
const LeaderboardSize = 3

// LeaderboardEntry is one slot on the top killers list. An empty Name marks a
// placeholder slot that pads the list out to LeaderboardSize.
type LeaderboardEntry struct {
	Name     string     `json:"name"`
	Kills    int        `json:"kills"`
	LastKill *time.Time `json:"last_kill,omitempty"`
}

// IsPlaceholder reports whether the entry pads the list rather than ranking a
// real player.
func (e LeaderboardEntry) IsPlaceholder() bool {
	return e.Name == ""
}

// ServerStatistics is the persisted aggregate derived from player records.
// TopKillers always has exactly LeaderboardSize entries, sorted by kills
// descending with placeholders last.
type ServerStatistics struct {
	TopKillers []LeaderboardEntry `json:"top_killers"`
}

// PlayerKillStats is the result of an on-demand single-player stats query.
type PlayerKillStats struct {
	Identity string     `json:"identity"`
	Kills    int        `json:"kills"`
	LastKill *time.Time `json:"last_kill,omitempty"`
}
