// Package redis implements the score store on Redis. Each tournament's
// scores live in one hash keyed by player id; queued actions are a list
// per player.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tournament-engine/internal/config"
)

const tournamentsKey = "tournaments"

// ScoreStore provides Redis-based score persistence
type ScoreStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewScoreStore connects to Redis
func NewScoreStore(cfg *config.RedisConfig, logger *slog.Logger) (*ScoreStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewScoreStoreFromClient(client, logger), nil
}

// NewScoreStoreFromClient wraps an existing client
func NewScoreStoreFromClient(client *redis.Client, logger *slog.Logger) *ScoreStore {
	return &ScoreStore{
		client: client,
		logger: logger,
	}
}

// Close closes the Redis connection
func (s *ScoreStore) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client
func (s *ScoreStore) Client() *redis.Client {
	return s.client
}

// scoresKey returns the Redis key for a tournament's score hash
func (s *ScoreStore) scoresKey(tournamentID string) string {
	return fmt.Sprintf("tournament:%s:scores", tournamentID)
}

// actionsKey returns the Redis key for a player's queued actions
func (s *ScoreStore) actionsKey(player uuid.UUID) string {
	return fmt.Sprintf("player:%s:actions", player)
}

// CreateTable records the tournament as provisioned. Hashes are created
// on first write, so this only maintains the index set.
func (s *ScoreStore) CreateTable(ctx context.Context, tournamentID string) error {
	if err := s.client.SAdd(ctx, tournamentsKey, tournamentID).Err(); err != nil {
		return fmt.Errorf("registering tournament: %w", err)
	}
	return nil
}

// Tournaments returns every provisioned tournament id
func (s *ScoreStore) Tournaments(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, tournamentsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing tournaments: %w", err)
	}
	return ids, nil
}

// GetScore returns a player's stored score and whether one exists
func (s *ScoreStore) GetScore(ctx context.Context, tournamentID string, player uuid.UUID) (int64, bool, error) {
	raw, err := s.client.HGet(ctx, s.scoresKey(tournamentID), player.String()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("getting score: %w", err)
	}

	score, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parsing score %q: %w", raw, err)
	}
	return score, true, nil
}

// SetScore overwrites a player's score
func (s *ScoreStore) SetScore(ctx context.Context, tournamentID string, player uuid.UUID, score int64) error {
	if err := s.client.HSet(ctx, s.scoresKey(tournamentID), player.String(), score).Err(); err != nil {
		return fmt.Errorf("setting score: %w", err)
	}
	return nil
}

// DeleteScores removes every score of a tournament
func (s *ScoreStore) DeleteScores(ctx context.Context, tournamentID string) error {
	if err := s.client.Del(ctx, s.scoresKey(tournamentID)).Err(); err != nil {
		return fmt.Errorf("deleting scores: %w", err)
	}
	return nil
}

// DeleteScore removes one player's score
func (s *ScoreStore) DeleteScore(ctx context.Context, tournamentID string, player uuid.UUID) error {
	if err := s.client.HDel(ctx, s.scoresKey(tournamentID), player.String()).Err(); err != nil {
		return fmt.Errorf("deleting score: %w", err)
	}
	return nil
}

// QueuedActions returns a player's deferred actions in queue order
func (s *ScoreStore) QueuedActions(ctx context.Context, player uuid.UUID) ([]string, error) {
	actions, err := s.client.LRange(ctx, s.actionsKey(player), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("getting queued actions: %w", err)
	}
	return actions, nil
}

// QueueActions appends deferred actions for a player
func (s *ScoreStore) QueueActions(ctx context.Context, player uuid.UUID, actions []string) error {
	if len(actions) == 0 {
		return nil
	}

	values := make([]any, len(actions))
	for i, a := range actions {
		values[i] = a
	}
	if err := s.client.RPush(ctx, s.actionsKey(player), values...).Err(); err != nil {
		return fmt.Errorf("queueing actions: %w", err)
	}
	return nil
}

// ClearQueuedActions drops a player's deferred actions
func (s *ScoreStore) ClearQueuedActions(ctx context.Context, player uuid.UUID) error {
	if err := s.client.Del(ctx, s.actionsKey(player)).Err(); err != nil {
		return fmt.Errorf("clearing queued actions: %w", err)
	}
	return nil
}
