package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/reforgerwatch/reforgerwatch/internal/domain"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// formatTimestamp converts time.Time to SQLite-compatible UTC ISO8601 string.
// The Z suffix ensures the Go sqlite driver parses it back as UTC.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// parseTimestamp reads a stored ISO8601 string back into a time.Time
func parseTimestamp(s string) (time.Time, error) {
	return time.Parse("2006-01-02T15:04:05Z", s)
}

// Store provides database access
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Player record methods ---

// UpsertPlayer writes or fully overwrites the record keyed by GUID. Mutable
// fields are replaced as a unit so stale kills never survive next to a fresh
// name.
func (s *Store) UpsertPlayer(ctx context.Context, rec *domain.PlayerRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO players (guid, identity, name, ip, kills, last_kill, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guid) DO UPDATE SET
			identity = excluded.identity,
			name = excluded.name,
			ip = excluded.ip,
			kills = excluded.kills,
			last_kill = excluded.last_kill,
			last_updated = excluded.last_updated
	`, rec.GUID, rec.Identity, rec.Name, rec.IP, rec.Kills,
		nullableTimestamp(rec.LastKill), formatTimestamp(rec.LastUpdated))
	if err != nil {
		return fmt.Errorf("upserting player %s: %w", rec.GUID, err)
	}
	return nil
}

// GetPlayer returns the record for a GUID, or ErrNotFound
func (s *Store) GetPlayer(ctx context.Context, guid string) (*domain.PlayerRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guid, identity, name, ip, kills, last_kill, last_updated
		FROM players WHERE guid = ?
	`, guid)
	return scanPlayer(row)
}

// GetPlayerByIdentity returns the record carrying a session identity, or
// ErrNotFound. Identities are session-scoped so at most one record holds a
// given identity at a time.
func (s *Store) GetPlayerByIdentity(ctx context.Context, identity string) (*domain.PlayerRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guid, identity, name, ip, kills, last_kill, last_updated
		FROM players WHERE identity = ? ORDER BY last_updated DESC LIMIT 1
	`, identity)
	return scanPlayer(row)
}

// ListPlayers returns all player records
func (s *Store) ListPlayers(ctx context.Context) ([]domain.PlayerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guid, identity, name, ip, kills, last_kill, last_updated
		FROM players ORDER BY kills DESC, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.PlayerRecord
	for rows.Next() {
		rec, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// rowScanner lets scanPlayer work on both QueryRow and Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlayer(row rowScanner) (*domain.PlayerRecord, error) {
	var rec domain.PlayerRecord
	var lastKill sql.NullString
	var lastUpdated string

	err := row.Scan(&rec.GUID, &rec.Identity, &rec.Name, &rec.IP, &rec.Kills, &lastKill, &lastUpdated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if lastKill.Valid {
		if t, err := parseTimestamp(lastKill.String); err == nil {
			rec.LastKill = &t
		}
	}
	if t, err := parseTimestamp(lastUpdated); err == nil {
		rec.LastUpdated = t
	}
	return &rec, nil
}

func nullableTimestamp(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTimestamp(*t)
}

// --- Top killers methods ---

// GetTopKillers returns the persisted top killers list, padded with
// placeholders to exactly domain.LeaderboardSize entries.
func (s *Store) GetTopKillers(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, kills, last_kill FROM top_killers ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var entry domain.LeaderboardEntry
		var lastKill sql.NullString
		if err := rows.Scan(&entry.Name, &entry.Kills, &lastKill); err != nil {
			return nil, err
		}
		if lastKill.Valid {
			if t, err := parseTimestamp(lastKill.String); err == nil {
				entry.LastKill = &t
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for len(entries) < domain.LeaderboardSize {
		entries = append(entries, domain.LeaderboardEntry{})
	}
	return entries[:domain.LeaderboardSize], nil
}

// SetTopKillers replaces the persisted top killers list wholesale
func (s *Store) SetTopKillers(ctx context.Context, entries []domain.LeaderboardEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM top_killers"); err != nil {
		return err
	}
	for i, entry := range entries {
		if i >= domain.LeaderboardSize {
			break
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO top_killers (position, name, kills, last_kill)
			VALUES (?, ?, ?, ?)
		`, i+1, entry.Name, entry.Kills, nullableTimestamp(entry.LastKill))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// --- User methods ---

// User is an API account
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateUser adds a new API user
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, is_admin) VALUES (?, ?, ?)
	`, username, passwordHash, isAdmin)
	if err != nil {
		return fmt.Errorf("creating user %s: %w", username, err)
	}
	return nil
}

// GetUserByUsername returns a user, or ErrNotFound
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, is_admin, created_at
		FROM users WHERE username = ?
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if t, err := parseTimestamp(createdAt); err == nil {
		u.CreatedAt = t
	}
	return &u, nil
}

// ListUsers returns all API users
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password_hash, is_admin, created_at FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &createdAt); err != nil {
			return nil, err
		}
		if t, err := parseTimestamp(createdAt); err == nil {
			u.CreatedAt = t
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser removes a user by username
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE username = ?", username)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
