// Package history is an in-process audit store for the stats and room
// listing API: which rooms exist, which strokes were committed, and
// who joined or left. It is bookkeeping, not authority: the live
// canvas state belongs to the room sessions. With the default
// in-memory DSN nothing here outlives the process.
package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryDSN keeps the store entirely in process memory.
const MemoryDSN = ":memory:"

type Store struct {
	db *sql.DB
}

type Room struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Commit struct {
	ID          int64
	RoomID      string
	OpID        string
	UserID      string
	Tool        string
	PointCount  int
	CommittedAt time.Time
}

func Open(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}

	memory := dsn == MemoryDSN || strings.HasPrefix(dsn, "file::memory:")
	if !memory {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if memory {
		// database/sql would otherwise hand each connection its own
		// empty in-memory database.
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS stroke_commits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		op_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		tool TEXT NOT NULL,
		point_count INTEGER NOT NULL DEFAULT 0,
		committed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_stroke_commits_room_id ON stroke_commits(room_id);

	CREATE TABLE IF NOT EXISTS presence_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL CHECK (kind IN ('join', 'leave')),
		at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_presence_events_room_id ON presence_events(room_id);
	`
	_, err := db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureRoom records a room the first time it is seen.
func (s *Store) EnsureRoom(id string) error {
	_, err := s.db.Exec("INSERT OR IGNORE INTO rooms (id) VALUES (?)", id)
	return err
}

func (s *Store) GetRoom(id string) (*Room, error) {
	row := s.db.QueryRow(
		"SELECT id, created_at, updated_at FROM rooms WHERE id = ?", id,
	)

	var r Room
	err := row.Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListRooms(limit, offset int) ([]Room, error) {
	rows, err := s.db.Query(
		"SELECT id, created_at, updated_at FROM rooms ORDER BY updated_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// RecordCommit logs one finalized stroke operation and touches the
// room's updated_at.
func (s *Store) RecordCommit(roomID, opID, userID, tool string, pointCount int) error {
	if err := s.EnsureRoom(roomID); err != nil {
		return err
	}
	_, err := s.db.Exec(
		"INSERT INTO stroke_commits (room_id, op_id, user_id, tool, point_count) VALUES (?, ?, ?, ?, ?)",
		roomID, opID, userID, tool, pointCount,
	)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		"UPDATE rooms SET updated_at = CURRENT_TIMESTAMP WHERE id = ?", roomID,
	)
	return err
}

func (s *Store) CommitCount(roomID string) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM stroke_commits WHERE room_id = ?", roomID,
	).Scan(&count)
	return count, err
}

// ListCommits returns a room's commit log, newest first.
func (s *Store) ListCommits(roomID string, limit, offset int) ([]Commit, error) {
	rows, err := s.db.Query(`
		SELECT id, room_id, op_id, user_id, tool, point_count, committed_at
		FROM stroke_commits
		WHERE room_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, roomID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commits []Commit
	for rows.Next() {
		var c Commit
		if err := rows.Scan(&c.ID, &c.RoomID, &c.OpID, &c.UserID, &c.Tool, &c.PointCount, &c.CommittedAt); err != nil {
			return nil, err
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

// RecordPresence logs a join or leave event.
func (s *Store) RecordPresence(roomID, userID, name, kind string) error {
	if err := s.EnsureRoom(roomID); err != nil {
		return err
	}
	_, err := s.db.Exec(
		"INSERT INTO presence_events (room_id, user_id, name, kind) VALUES (?, ?, ?, ?)",
		roomID, userID, name, kind,
	)
	return err
}

// Stats

func (s *Store) GetStats() (map[string]any, error) {
	stats := make(map[string]any)

	var roomCount int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM rooms").Scan(&roomCount); err != nil {
		return nil, err
	}
	stats["room_count"] = roomCount

	var commitCount int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM stroke_commits").Scan(&commitCount); err != nil {
		return nil, err
	}
	stats["commit_count"] = commitCount

	var joinCount int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM presence_events WHERE kind = 'join'").Scan(&joinCount); err != nil {
		return nil, err
	}
	stats["join_count"] = joinCount

	return stats, nil
}
