package manager

import (
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"

	"github.com/tournament-engine/internal/action"
	"github.com/tournament-engine/internal/domain"
	"github.com/tournament-engine/internal/tournament"
)

// Tick evaluates every active tournament once
func (m *Manager) Tick(ctx context.Context) error {
	return m.call(ctx, func() error {
		m.tick()
		return nil
	})
}

// scheduledTick is the scheduler task. A tick that fires after the
// loop stopped is a no-op.
func (m *Manager) scheduledTick(ctx context.Context) {
	if err := m.Tick(ctx); err != nil && !errors.Is(err, domain.ErrManagerStopped) && !errors.Is(err, context.Canceled) {
		m.logger.Warn("tournament update skipped", "error", err)
	}
}

func (m *Manager) tick() {
	now := m.now()
	for _, t := range m.sortedActive() {
		m.applyTransition(t, t.Update(now))
	}
}

// applyTransition runs the manager-side effects of a status change and
// publishes refreshed leaderboards.
func (m *Manager) applyTransition(t *tournament.Tournament, tr tournament.Transition) {
	if tr.Changed() && tr.To == domain.StatusActive {
		m.logger.Info("tournament started", "tournament_id", t.Identifier())
		m.execute(nil, t.StartActions(), t)
	}

	if tr.Changed() && tr.To == domain.StatusEnded {
		m.finish(t, tr.Final)
	}

	if tr.Refreshed {
		m.publish(t)
	}
}

// finish persists the final scores, hands out rewards and runs the end
// actions. RANDOM tournaments are then dropped from the active set.
func (m *Manager) finish(t *tournament.Tournament, final map[uuid.UUID]int64) {
	id := t.Identifier()
	m.logger.Info("tournament ended", "tournament_id", id, "participants", len(final))

	for player, score := range final {
		m.saveScore(id, player, score)
	}

	m.reward(t)
	m.execute(nil, t.EndActions(), t)

	if t.Timeline() == domain.TimelineRandom {
		m.remove(t)
	}
}

// reward runs each position's reward actions for the player holding it.
// Offline winners get the actions queued for their next connect.
func (m *Manager) reward(t *tournament.Tournament) {
	rewards := t.Rewards()
	positions := make([]int, 0, len(rewards))
	for pos := range rewards {
		positions = append(positions, pos)
	}
	slices.Sort(positions)

	for _, pos := range positions {
		winner, ok := t.PlayerAt(pos)
		if !ok {
			continue
		}
		actions := rewards[pos]

		if s, online := m.online[winner]; online {
			m.execute(&s.player, actions, t)
			continue
		}

		player := domain.Player{ID: winner}
		if name, ok := m.names.PlayerName(winner); ok {
			player.Name = name
		}
		if m.executor != nil {
			actions = m.executor.Render(action.Request{
				Player:     &player,
				Items:      actions,
				Tournament: t,
				Now:        m.now(),
			})
		}
		m.queueActions(winner, actions)
		m.logger.Info("queued reward for offline player",
			"tournament_id", t.Identifier(),
			"player_id", winner,
			"position", pos,
		)
	}
}

func (m *Manager) publish(t *tournament.Tournament) {
	if m.publisher == nil {
		return
	}
	m.publisher.PublishLeaderboard(t.Identifier(), m.standings(t, m.cfg.BroadcastSize), t.RankedCount())
}

// standings returns the cached ranking with display names filled in
func (m *Manager) standings(t *tournament.Tournament, limit int) []domain.Standing {
	out := t.Standings(limit)
	for i := range out {
		if name, ok := m.names.PlayerName(out[i].PlayerID); ok {
			out[i].PlayerName = name
		}
	}
	return out
}
