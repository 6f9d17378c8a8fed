// Package sqlite provides the embedded SQLite score store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS tournaments (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tournament_scores (
		tournament_id TEXT NOT NULL,
		player_id TEXT NOT NULL,
		score INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (tournament_id, player_id)
	)`,
	`CREATE TABLE IF NOT EXISTS queued_actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		player_id TEXT NOT NULL,
		action TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_queued_actions_player ON queued_actions(player_id, id)`,
}

// Store persists scores and queued actions in SQLite
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens a SQLite store at the provided path and creates the schema
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer avoids SQLITE_BUSY between pool connections.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, now: time.Now}
	if err := store.runMigrations(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations(ctx context.Context) error {
	for _, migration := range migrations {
		if _, err := s.sqlDB.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return nil
}

func (s *Store) stamp() int64 {
	return s.now().UTC().UnixMilli()
}

// CreateTable registers the tournament. Calling it again is a no-op.
func (s *Store) CreateTable(ctx context.Context, tournamentID string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO tournaments (id, created_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		tournamentID, s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("create tournament %s: %w", tournamentID, err)
	}
	return nil
}

// Tournaments returns every registered tournament id
func (s *Store) Tournaments(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id FROM tournaments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tournaments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tournament: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetScore returns a player's stored score and whether one exists
func (s *Store) GetScore(ctx context.Context, tournamentID string, player uuid.UUID) (int64, bool, error) {
	var score int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT score FROM tournament_scores WHERE tournament_id = ? AND player_id = ?`,
		tournamentID, player.String(),
	).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get score: %w", err)
	}
	return score, true, nil
}

// SetScore inserts or overwrites a player's score
func (s *Store) SetScore(ctx context.Context, tournamentID string, player uuid.UUID, score int64) error {
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO tournament_scores (tournament_id, player_id, score, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tournament_id, player_id) DO UPDATE SET
			score = excluded.score,
			updated_at = excluded.updated_at`,
		tournamentID, player.String(), score, s.stamp(),
	)
	if err != nil {
		if isBusy(err) {
			return fmt.Errorf("set score: database busy: %w", err)
		}
		return fmt.Errorf("set score: %w", err)
	}
	return nil
}

// DeleteScores removes every score of a tournament
func (s *Store) DeleteScores(ctx context.Context, tournamentID string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM tournament_scores WHERE tournament_id = ?`, tournamentID); err != nil {
		return fmt.Errorf("delete scores: %w", err)
	}
	return nil
}

// DeleteScore removes one player's score
func (s *Store) DeleteScore(ctx context.Context, tournamentID string, player uuid.UUID) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM tournament_scores WHERE tournament_id = ? AND player_id = ?`,
		tournamentID, player.String(),
	)
	if err != nil {
		return fmt.Errorf("delete score: %w", err)
	}
	return nil
}

// QueuedActions returns a player's deferred actions in queue order
func (s *Store) QueuedActions(ctx context.Context, player uuid.UUID) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT action FROM queued_actions WHERE player_id = ? ORDER BY id`,
		player.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("get queued actions: %w", err)
	}
	defer rows.Close()

	var actions []string
	for rows.Next() {
		var action string
		if err := rows.Scan(&action); err != nil {
			return nil, fmt.Errorf("scan queued action: %w", err)
		}
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

// QueueActions appends deferred actions for a player
func (s *Store) QueueActions(ctx context.Context, player uuid.UUID, actions []string) error {
	if len(actions) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin queue actions: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO queued_actions (player_id, action, created_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare queue actions: %w", err)
	}
	defer stmt.Close()

	now := s.stamp()
	for _, action := range actions {
		if _, err := stmt.ExecContext(ctx, player.String(), action, now); err != nil {
			return fmt.Errorf("queue action: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit queue actions: %w", err)
	}
	return nil
}

// ClearQueuedActions drops a player's deferred actions
func (s *Store) ClearQueuedActions(ctx context.Context, player uuid.UUID) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM queued_actions WHERE player_id = ?`, player.String()); err != nil {
		return fmt.Errorf("clear queued actions: %w", err)
	}
	return nil
}

func isBusy(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code() & 0xff
	return code == sqlite3lib.SQLITE_BUSY || code == sqlite3lib.SQLITE_LOCKED
}
