package collector

import (
	"sort"
	"time"

	"github.com/reforgerwatch/reforgerwatch/internal/domain"
)

// MergeTopKillers folds candidate entries into an existing top killers list
// and returns a new list of exactly domain.LeaderboardSize entries, sorted by
// kills descending and padded with placeholders. Entries sharing a name are
// deduplicated: the one with the strictly more recent lastKill wins, and on
// equal or absent timestamps the first-seen entry is kept.
//
// This is the incremental path: a fresh kill merged into the previous list.
// For a full rebuild from the record store use RecomputeTopKillers.
func MergeTopKillers(existing []domain.LeaderboardEntry, candidates ...domain.LeaderboardEntry) []domain.LeaderboardEntry {
	var merged []domain.LeaderboardEntry
	index := make(map[string]int) // name -> position in merged

	add := func(entry domain.LeaderboardEntry) {
		if entry.IsPlaceholder() {
			return
		}
		i, seen := index[entry.Name]
		if !seen {
			index[entry.Name] = len(merged)
			merged = append(merged, entry)
			return
		}
		if laterKill(entry.LastKill, merged[i].LastKill) {
			merged[i] = entry
		}
	}

	for _, entry := range existing {
		add(entry)
	}
	for _, entry := range candidates {
		add(entry)
	}

	// Stable sort: candidates with equal kills keep first-seen order
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Kills > merged[j].Kills
	})

	if len(merged) > domain.LeaderboardSize {
		merged = merged[:domain.LeaderboardSize]
	}
	return padTopKillers(merged)
}

// RecomputeTopKillers rebuilds the top killers list from a full scan of the
// player records, discarding any previous list.
func RecomputeTopKillers(records []domain.PlayerRecord) []domain.LeaderboardEntry {
	candidates := make([]domain.LeaderboardEntry, 0, len(records))
	for _, rec := range records {
		candidates = append(candidates, domain.LeaderboardEntry{
			Name:     rec.Name,
			Kills:    rec.Kills,
			LastKill: rec.LastKill,
		})
	}
	return MergeTopKillers(nil, candidates...)
}

// padTopKillers right-pads the list with placeholders to the fixed size
func padTopKillers(entries []domain.LeaderboardEntry) []domain.LeaderboardEntry {
	for len(entries) < domain.LeaderboardSize {
		entries = append(entries, domain.LeaderboardEntry{})
	}
	return entries
}

// laterKill reports whether a is strictly more recent than b
func laterKill(a, b *time.Time) bool {
	if a == nil || b == nil {
		return false
	}
	return a.After(*b)
}
