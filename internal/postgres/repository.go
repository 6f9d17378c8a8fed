package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tournament-engine/internal/config"
)

// Repository provides PostgreSQL-based score persistence
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tournaments (
			id VARCHAR(64) PRIMARY KEY,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tournament_scores (
			tournament_id VARCHAR(64) NOT NULL,
			player_id UUID NOT NULL,
			score BIGINT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (tournament_id, player_id)
		)`,
		`CREATE TABLE IF NOT EXISTS queued_actions (
			id BIGSERIAL PRIMARY KEY,
			player_id UUID NOT NULL,
			action TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queued_actions_player ON queued_actions(player_id, id)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// CreateTable registers a tournament. Calling it again is a no-op.
func (r *Repository) CreateTable(ctx context.Context, tournamentID string) error {
	query := `INSERT INTO tournaments (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, query, tournamentID); err != nil {
		return fmt.Errorf("creating tournament: %w", err)
	}
	return nil
}

// Tournaments returns every registered tournament id
func (r *Repository) Tournaments(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM tournaments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing tournaments: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning tournaments: %w", err)
	}
	return ids, nil
}

// GetScore returns a player's stored score and whether one exists
func (r *Repository) GetScore(ctx context.Context, tournamentID string, player uuid.UUID) (int64, bool, error) {
	query := `
		SELECT score
		FROM tournament_scores
		WHERE tournament_id = $1 AND player_id = $2
	`
	var score int64
	err := r.pool.QueryRow(ctx, query, tournamentID, player).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("getting score: %w", err)
	}
	return score, true, nil
}

// SetScore inserts or overwrites a player's score
func (r *Repository) SetScore(ctx context.Context, tournamentID string, player uuid.UUID, score int64) error {
	query := `
		INSERT INTO tournament_scores (tournament_id, player_id, score, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (tournament_id, player_id)
		DO UPDATE SET score = EXCLUDED.score, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.pool.Exec(ctx, query, tournamentID, player, score); err != nil {
		return fmt.Errorf("upserting score: %w", err)
	}
	return nil
}

// DeleteScores removes every score of a tournament
func (r *Repository) DeleteScores(ctx context.Context, tournamentID string) error {
	query := `DELETE FROM tournament_scores WHERE tournament_id = $1`
	if _, err := r.pool.Exec(ctx, query, tournamentID); err != nil {
		return fmt.Errorf("deleting scores: %w", err)
	}
	return nil
}

// DeleteScore removes one player's score
func (r *Repository) DeleteScore(ctx context.Context, tournamentID string, player uuid.UUID) error {
	query := `DELETE FROM tournament_scores WHERE tournament_id = $1 AND player_id = $2`
	if _, err := r.pool.Exec(ctx, query, tournamentID, player); err != nil {
		return fmt.Errorf("deleting score: %w", err)
	}
	return nil
}

// QueuedActions returns a player's deferred actions in queue order
func (r *Repository) QueuedActions(ctx context.Context, player uuid.UUID) ([]string, error) {
	query := `SELECT action FROM queued_actions WHERE player_id = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, player)
	if err != nil {
		return nil, fmt.Errorf("getting queued actions: %w", err)
	}
	actions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning queued actions: %w", err)
	}
	return actions, nil
}

// QueueActions appends deferred actions for a player
func (r *Repository) QueueActions(ctx context.Context, player uuid.UUID, actions []string) error {
	if len(actions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `INSERT INTO queued_actions (player_id, action) VALUES ($1, $2)`
	for _, action := range actions {
		batch.Queue(query, player, action)
	}

	// A batch runs as one implicit transaction
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range actions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("queueing actions: %w", err)
		}
	}
	return nil
}

// ClearQueuedActions drops a player's deferred actions
func (r *Repository) ClearQueuedActions(ctx context.Context, player uuid.UUID) error {
	query := `DELETE FROM queued_actions WHERE player_id = $1`
	if _, err := r.pool.Exec(ctx, query, player); err != nil {
		return fmt.Errorf("clearing queued actions: %w", err)
	}
	return nil
}
