package collector

import (
	"regexp"
	"strings"
	"time"

	"github.com/reforgerwatch/reforgerwatch/internal/domain"
)

// Regular expressions for the Reforger console log grammar
var (
	// Matches the leading timestamp token: 10:58:23.456
	timestampRegex = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2}\.\d{3})`)

	joinRegex           = regexp.MustCompile(`player: ([^,]+), identity: ([a-f0-9-]+)`)
	killerRegex         = regexp.MustCompile(`instigator: ([^,]+)`)
	killerIdentityRegex = regexp.MustCompile(`instigator_identity: ([a-f0-9-]+)`)
	beNameRegex         = regexp.MustCompile(`name='([^']+)'`)
	connIPRegex         = regexp.MustCompile(`\(([^)]+)\)`)
	beGUIDRegex         = regexp.MustCompile(`BE GUID: ([a-f0-9]+)`)
	winnerRegex         = regexp.MustCompile(`winner:\s*(\w+)`)
)

// Line markers in the Reforger console log. Matching is a cheap substring
// check first, then a regexp capture.
const (
	joinMarker     = "serveradmintools_player_joined"
	killMarker     = "serveradmintools_player_killed"
	roundEndMarker = "serveradmintools_game_ended"
	beAddMarker    = "BattlEye Server: Adding player"
	connectMarker  = "connected"
	guidMarker     = "BE GUID:"
)

// Killer names that never attribute a kill to a player
const (
	killerAI    = "AI"
	killerWorld = "world"
)

// ParseEvents converts raw log text into the ordered sequence of typed
// events. Lines that match no pattern are skipped; a malformed line never
// fails the parse.
func ParseEvents(logText string) []domain.LogEvent {
	var events []domain.LogEvent

	for _, line := range strings.Split(logText, "\n") {
		switch {
		case strings.Contains(line, joinMarker):
			if m := joinRegex.FindStringSubmatch(line); m != nil {
				events = append(events, domain.LogEvent{
					Type: domain.LogEventPlayerJoined,
					Data: domain.PlayerJoinedData{Name: m[1], Identity: m[2]},
				})
			}
		case strings.Contains(line, killMarker):
			name, identity, ok := parseKiller(line)
			if ok {
				events = append(events, domain.LogEvent{
					Type: domain.LogEventPlayerKilled,
					Data: domain.PlayerKilledData{KillerName: name, KillerIdentity: identity},
				})
			}
		case strings.Contains(line, roundEndMarker):
			if m := winnerRegex.FindStringSubmatch(line); m != nil {
				events = append(events, domain.LogEvent{
					Type: domain.LogEventRoundEnded,
					Data: domain.RoundEndedData{Winner: m[1]},
				})
			}
		}
	}

	return events
}

// parseKiller extracts the killer name and identity from a kill line.
// Kills by AI or the world are not player kills and report ok=false.
func parseKiller(line string) (name, identity string, ok bool) {
	nameMatch := killerRegex.FindStringSubmatch(line)
	identityMatch := killerIdentityRegex.FindStringSubmatch(line)
	if nameMatch == nil || identityMatch == nil {
		return "", "", false
	}
	if nameMatch[1] == killerAI || nameMatch[1] == killerWorld {
		return "", "", false
	}
	return nameMatch[1], identityMatch[1], true
}

// SessionStats is the outcome of a full two-pass scan of one session log.
type SessionStats struct {
	// Identities maps display name to the session identity from join lines.
	// Later joins for the same name overwrite earlier ones.
	Identities map[string]string
	// Kills tallies player kills per session identity. Every identity seen
	// in pass 1 is present, so a known identity with no kills reports zero.
	Kills map[string]int
	// Records are the player records assembled in pass 2, in first-seen
	// order, one per GUID.
	Records []domain.PlayerRecord
	// Winner is the last round winner seen, if any.
	Winner string
}

// KillsFor returns the kill tally for a session identity, with the lastKill
// timestamp that accompanies a non-zero tally.
func (s *SessionStats) KillsFor(identity string, now time.Time) domain.PlayerKillStats {
	stats := domain.PlayerKillStats{Identity: identity, Kills: s.Kills[identity]}
	if stats.Kills > 0 {
		t := now
		stats.LastKill = &t
	}
	return stats
}

// playerAccumulator gathers the fields of one timestamp group in pass 2
type playerAccumulator struct {
	name string
	ip   string
	guid string
}

func (p *playerAccumulator) complete() bool {
	return p.guid != "" && p.name != "" && p.ip != ""
}

// ParseSessionLog runs both extraction passes over the full text of one
// session's console log. filterIdentities seeds the kill tally so a queried
// identity that never killed still reports zero instead of being unknown.
//
// Pass 1 collects name->identity bindings from join lines and tallies player
// kills per identity. Pass 2 groups lines by their leading timestamp token and
// flushes a PlayerRecord whenever a group has yielded a name, an IP and a BE
// GUID, merging in the identity and kill data from pass 1.
func ParseSessionLog(logText string, now time.Time, filterIdentities ...string) *SessionStats {
	stats := &SessionStats{
		Identities: make(map[string]string),
		Kills:      make(map[string]int),
	}
	for _, identity := range filterIdentities {
		stats.Kills[identity] = 0
	}

	lines := strings.Split(logText, "\n")

	// Pass 1: identities and kill tallies
	for _, line := range lines {
		switch {
		case strings.Contains(line, joinMarker):
			if m := joinRegex.FindStringSubmatch(line); m != nil {
				stats.Identities[m[1]] = m[2]
				if _, seen := stats.Kills[m[2]]; !seen {
					stats.Kills[m[2]] = 0
				}
			}
		case strings.Contains(line, killMarker):
			// A kill line attributes by its own identity field; no prior
			// join is required.
			if _, identity, ok := parseKiller(line); ok {
				stats.Kills[identity]++
			}
		case strings.Contains(line, roundEndMarker):
			if m := winnerRegex.FindStringSubmatch(line); m != nil {
				stats.Winner = m[1]
			}
		}
	}

	// Pass 2: player record fields, grouped by timestamp prefix
	byGUID := make(map[string]int) // guid -> index into stats.Records
	var current playerAccumulator
	var currentTimestamp string

	flush := func() {
		if !current.complete() {
			return
		}
		rec := stats.buildRecord(current, now)
		if i, seen := byGUID[rec.GUID]; seen {
			stats.Records[i] = rec
		} else {
			byGUID[rec.GUID] = len(stats.Records)
			stats.Records = append(stats.Records, rec)
		}
	}

	for _, line := range lines {
		m := timestampRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		timestamp := m[1]

		if currentTimestamp != "" && timestamp != currentTimestamp {
			flush()
			current = playerAccumulator{}
		}
		currentTimestamp = timestamp

		switch {
		case strings.Contains(line, beAddMarker):
			if nm := beNameRegex.FindStringSubmatch(line); nm != nil {
				current.name = nm[1]
			}
		case strings.Contains(line, guidMarker):
			if gm := beGUIDRegex.FindStringSubmatch(line); gm != nil {
				current.guid = gm[1]
				// Eager flush: persist as soon as the group is complete
				// rather than waiting for the next timestamp boundary.
				flush()
			}
		case strings.Contains(line, connectMarker):
			if im := connIPRegex.FindStringSubmatch(line); im != nil {
				current.ip = hostPart(im[1])
			}
		}
	}

	return stats
}

// buildRecord merges a completed accumulator with the pass-1 identity and
// kill data
func (s *SessionStats) buildRecord(acc playerAccumulator, now time.Time) domain.PlayerRecord {
	rec := domain.PlayerRecord{
		GUID:        acc.guid,
		Name:        acc.name,
		IP:          acc.ip,
		LastUpdated: now,
	}
	if identity, known := s.Identities[acc.name]; known {
		rec.Identity = identity
		rec.Kills = s.Kills[identity]
		if rec.Kills > 0 {
			t := now
			rec.LastKill = &t
		}
	}
	return rec
}

// hostPart strips the port from a host:port token
func hostPart(addr string) string {
	if i := strings.Index(addr, ":"); i != -1 {
		return addr[:i]
	}
	return addr
}
