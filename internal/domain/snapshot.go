package domain

import "time"

// ServerState is the live view of the game server from one poll cycle.
type ServerState struct {
	Online     bool      `json:"online"`
	Name       string    `json:"name"`
	Players    int       `json:"players"`
	MaxPlayers int       `json:"max_players"`
	Map        string    `json:"map"`
	Address    string    `json:"address"` // configured host:game-port, preserved while offline
	Uptime     string    `json:"uptime"`  // "N/A" while offline
	UpdatedAt  time.Time `json:"updated_at"`
}

// StatusSnapshot is the point-in-time composite handed to presentation
// collaborators. It is replaced wholesale each cycle, never mutated in place.
type StatusSnapshot struct {
	ID                 string           `json:"id"`
	State              ServerState      `json:"state"`
	Stats              ServerStatistics `json:"stats"`
	RoundWinner        string           `json:"round_winner,omitempty"`
	NextRefreshSeconds int              `json:"next_refresh_seconds"`
	GeneratedAt        time.Time        `json:"generated_at"`
}
