package remote

import (
	"errors"
	"path"
	"sort"
	"strings"
)

const (
	sessionDirPrefix = "logs_"
	consoleLogName   = "console.log"
)

// ErrNoSessionLogs means no logs_* directory exists under the base path.
// Callers treat it as "no stats available", not a remote failure.
var ErrNoSessionLogs = errors.New("no session log directories found")

// sessionDirs lists the logs_* directories under basePath sorted descending,
// so the newest session comes first
func sessionDirs(src FileSource, basePath string) ([]string, error) {
	entries, err := src.List(basePath)
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir && strings.HasPrefix(entry.Name, sessionDirPrefix) {
			dirs = append(dirs, entry.Name)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	return dirs, nil
}

// CurrentSessionDir resolves the directory of the last finished session: the
// second-most-recent logs_* directory, because the most recent one is still
// being written by the running server. With a single directory present it
// falls back to that one.
func CurrentSessionDir(src FileSource, basePath string) (string, error) {
	dirs, err := sessionDirs(src, basePath)
	if err != nil {
		return "", err
	}
	switch {
	case len(dirs) > 1:
		return path.Join(basePath, dirs[1]), nil
	case len(dirs) == 1:
		return path.Join(basePath, dirs[0]), nil
	default:
		return "", ErrNoSessionLogs
	}
}

// LatestSessionDir resolves the most recent logs_* directory, the one the
// running server is still appending to. Used for live per-player queries.
func LatestSessionDir(src FileSource, basePath string) (string, error) {
	dirs, err := sessionDirs(src, basePath)
	if err != nil {
		return "", err
	}
	if len(dirs) == 0 {
		return "", ErrNoSessionLogs
	}
	return path.Join(basePath, dirs[0]), nil
}

// FetchConsoleLog retrieves the full console log of a session directory
func FetchConsoleLog(src FileSource, sessionDir string) (string, error) {
	data, err := src.Get(path.Join(sessionDir, consoleLogName))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
