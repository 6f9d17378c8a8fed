package manager

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/tournament-engine/internal/domain"
	"github.com/tournament-engine/internal/tournament"
)

// List returns every active tournament ordered by identifier
func (m *Manager) List(ctx context.Context) ([]tournament.Info, error) {
	var infos []tournament.Info
	err := m.call(ctx, func() error {
		now := m.now()
		for _, t := range m.sortedActive() {
			infos = append(infos, t.Info(now))
		}
		return nil
	})
	return infos, err
}

// Get returns one active tournament
func (m *Manager) Get(ctx context.Context, id string) (*tournament.Info, error) {
	var info tournament.Info
	err := m.call(ctx, func() error {
		t, err := m.lookup(id)
		if err != nil {
			return err
		}
		info = t.Info(m.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Leaderboard returns up to limit cached standings and the total number
// of ranked players
func (m *Manager) Leaderboard(ctx context.Context, id string, limit int) ([]domain.Standing, int, error) {
	var standings []domain.Standing
	var total int
	err := m.call(ctx, func() error {
		t, err := m.lookup(id)
		if err != nil {
			return err
		}
		standings = m.standings(t, limit)
		total = t.RankedCount()
		return nil
	})
	return standings, total, err
}

// PlayerStanding returns a player's cached position and live score
func (m *Manager) PlayerStanding(ctx context.Context, id string, player uuid.UUID) (*domain.Standing, error) {
	var standing domain.Standing
	err := m.call(ctx, func() error {
		t, err := m.lookup(id)
		if err != nil {
			return err
		}
		pos := t.Position(player)
		if pos == 0 && !t.IsParticipant(player) {
			return domain.ErrPlayerNotFound
		}
		standing = domain.Standing{Position: pos, PlayerID: player, Score: t.Score(player)}
		if !t.IsParticipant(player) {
			// Ended tournaments only keep the final ranking.
			standing.Score, _ = t.ScoreAt(pos)
		}
		standing.PlayerName, _ = m.names.PlayerName(player)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &standing, nil
}

// ForceUpdate evaluates every active tournament and refreshes every
// ranking immediately. It returns the number of tournaments updated.
func (m *Manager) ForceUpdate(ctx context.Context) (int, error) {
	var updated int
	err := m.call(ctx, func() error {
		now := m.now()
		for _, t := range m.sortedActive() {
			tr := t.Update(now)
			if t.Status() == domain.StatusActive {
				t.RefreshRanking(now)
				tr.Refreshed = true
				updated++
			}
			m.applyTransition(t, tr)
		}
		return nil
	})
	return updated, err
}

// Start forces a tournament active
func (m *Manager) Start(ctx context.Context, id string) error {
	return m.call(ctx, func() error {
		t, err := m.lookup(id)
		if err != nil {
			return err
		}
		tr, err := t.Start(m.now(), false)
		if err != nil {
			return fmt.Errorf("starting %s: %w", t.Identifier(), err)
		}
		m.applyTransition(t, tr)
		return nil
	})
}

// End forces a tournament to end. A RANDOM tournament is removed from
// the active set once its end-of-session work is done.
func (m *Manager) End(ctx context.Context, id string) error {
	return m.call(ctx, func() error {
		t, err := m.lookup(id)
		if err != nil {
			return err
		}
		tr, err := t.End(m.now())
		if err != nil {
			return fmt.Errorf("ending %s: %w", t.Identifier(), err)
		}
		m.applyTransition(t, tr)
		return nil
	})
}

// Clear removes every participant from memory and the store
func (m *Manager) Clear(ctx context.Context, id string) error {
	return m.call(ctx, func() error {
		t, err := m.lookup(id)
		if err != nil {
			return err
		}
		t.ClearParticipants()
		tid := t.Identifier()
		// Saves submitted before the clear must not land after it
		m.io.Barrier(func(ctx context.Context) {
			if err := m.store.DeleteScores(ctx, tid); err != nil {
				m.logger.Error("failed to clear scores", "tournament_id", tid, "error", err)
			}
		})
		m.logger.Info("cleared participants", "tournament_id", tid)
		return nil
	})
}

// ClearPlayer removes one player's score from memory and the store
func (m *Manager) ClearPlayer(ctx context.Context, id string, player uuid.UUID) error {
	return m.call(ctx, func() error {
		t, err := m.lookup(id)
		if err != nil {
			return err
		}
		t.ClearParticipant(player)
		tid := t.Identifier()
		m.io.Do(playerKey(player), func(ctx context.Context) {
			if err := m.store.DeleteScore(ctx, tid, player); err != nil {
				m.logger.Error("failed to clear score", "tournament_id", tid, "player_id", player, "error", err)
			}
		})
		return nil
	})
}

// ForceJoin enrolls an online player, bypassing permission and cost
func (m *Manager) ForceJoin(ctx context.Context, id string, player uuid.UUID) error {
	return m.call(ctx, func() error {
		t, err := m.lookup(id)
		if err != nil {
			return err
		}
		s, ok := m.online[player]
		if !ok {
			return domain.ErrPlayerOffline
		}
		if t.IsParticipant(player) {
			return domain.ErrAlreadyParticipating
		}
		m.enroll(t, s)
		return nil
	})
}

// ForceJoinAll enrolls every online player not yet participating and
// returns how many joined.
func (m *Manager) ForceJoinAll(ctx context.Context, id string) (int, error) {
	var joined int
	err := m.call(ctx, func() error {
		t, err := m.lookup(id)
		if err != nil {
			return err
		}
		for _, p := range m.onlinePlayers() {
			if t.IsParticipant(p.ID) {
				continue
			}
			m.enroll(t, m.online[p.ID])
			joined++
		}
		return nil
	})
	return joined, err
}

// Join is a player's own enrollment. The tournament must be active and
// the player must hold the participation permission. A participation
// cost is withdrawn outside the loop and refunded if enrollment fails
// in the meantime.
func (m *Manager) Join(ctx context.Context, id string, player uuid.UUID) error {
	validate := func() (*tournament.Tournament, *session, error) {
		t, err := m.lookup(id)
		if err != nil {
			return nil, nil, err
		}
		if t.Status() != domain.StatusActive {
			return nil, nil, domain.ErrNotActive
		}
		s, ok := m.online[player]
		if !ok {
			return nil, nil, domain.ErrPlayerOffline
		}
		if t.IsParticipant(player) {
			return nil, nil, domain.ErrAlreadyParticipating
		}
		if !t.CanJoin(s.player) {
			return nil, nil, domain.ErrNoPermission
		}
		return t, s, nil
	}

	var target domain.Player
	var cost float64
	if err := m.call(ctx, func() error {
		t, s, err := validate()
		if err != nil {
			return err
		}
		target = s.player
		cost = t.ParticipationCost()
		return nil
	}); err != nil {
		return err
	}

	charged := false
	if cost > 0 && m.economy != nil {
		if err := m.economy.Withdraw(ctx, target, cost); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInsufficientFunds, err)
		}
		charged = true
	}

	err := m.call(ctx, func() error {
		t, s, err := validate()
		if err != nil {
			return err
		}
		m.enroll(t, s)
		return nil
	})
	if err != nil && charged {
		if rerr := m.economy.Deposit(context.WithoutCancel(ctx), target, cost); rerr != nil {
			m.logger.Error("failed to refund participation cost", "player_id", player, "error", rerr)
		}
	}
	return err
}

func (m *Manager) enroll(t *tournament.Tournament, s *session) {
	t.AddParticipant(s.player.ID, 0)
	m.logger.Info("player joined tournament", "tournament_id", t.Identifier(), "player_id", s.player.ID)
	m.execute(&s.player, t.ParticipationActions(), t)
}

// RandomStart picks a pooled RANDOM tournament that is not running,
// activates a fresh instance of it and runs its start actions.
func (m *Manager) RandomStart(ctx context.Context) (string, error) {
	var started string
	err := m.call(ctx, func() error {
		var candidates []*tournament.Definition
		for k, def := range m.pool {
			if _, running := m.active[k]; running {
				continue
			}
			if tl, _ := domain.ParseTimeline(def.Timeline); tl == domain.TimelineRandom {
				candidates = append(candidates, def)
			}
		}
		if len(candidates) == 0 {
			return domain.ErrNoRandomTournaments
		}
		sortDefinitions(candidates)

		def := candidates[m.pick(len(candidates))]
		t, err := m.enable(def, true)
		if err != nil {
			return err
		}
		m.execute(nil, t.StartActions(), t)
		started = t.Identifier()
		return nil
	})
	return started, err
}

func sortDefinitions(defs []*tournament.Definition) {
	slices.SortFunc(defs, func(a, b *tournament.Definition) int {
		return strings.Compare(key(a.Identifier), key(b.Identifier))
	})
}
