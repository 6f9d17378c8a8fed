package manager

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tournament-engine/internal/domain"
	"github.com/tournament-engine/internal/tournament"
)

// Concurrent score reads per hydration
const hydrateFanout = 4

type loadedScore struct {
	target       *tournament.Tournament
	tournamentID string
	score        int64
	found        bool
	err          error
}

// PlayerConnected starts a session for p and hydrates their scores
func (m *Manager) PlayerConnected(ctx context.Context, p domain.Player) error {
	if p.ID == uuid.Nil {
		return domain.ErrInvalidRequest
	}
	return m.call(ctx, func() error {
		m.connect(p)
		return nil
	})
}

// PlayerDisconnected saves and evicts the player's scores
func (m *Manager) PlayerDisconnected(ctx context.Context, id uuid.UUID) error {
	return m.call(ctx, func() error {
		m.disconnect(id)
		return nil
	})
}

func (m *Manager) connect(p domain.Player) {
	if _, ok := m.online[p.ID]; ok {
		// Duplicate join: treat as a reconnect.
		m.disconnect(p.ID)
	}

	m.nextGen++
	s := &session{player: p, gen: m.nextGen}
	m.online[p.ID] = s
	m.names.remember(p)

	targets := make([]*tournament.Tournament, 0, len(m.active))
	for _, t := range m.sortedActive() {
		if t.Status() == domain.StatusEnded || m.provisioning[key(t.Identifier())] > 0 {
			continue
		}
		targets = append(targets, t)
	}
	m.hydrate(s, targets, true)
}

// hydrate loads the session's queued actions (when flush is set) and
// scores for the given tournaments off the loop, then applies them on
// the loop. The job is keyed by player so it runs after any earlier
// save for the same player.
func (m *Manager) hydrate(s *session, targets []*tournament.Tournament, flush bool) {
	player := s.player
	gen := s.gen
	ids := make([]string, len(targets))
	for i, t := range targets {
		ids[i] = t.Identifier()
	}

	m.io.Do(playerKey(player.ID), func(ctx context.Context) {
		var actions []string
		if flush {
			actions = m.takeQueuedActions(ctx, player.ID)
		}

		scores := make([]loadedScore, len(ids))
		var g errgroup.Group
		g.SetLimit(hydrateFanout)
		for i, id := range ids {
			g.Go(func() error {
				score, found, err := m.store.GetScore(ctx, id, player.ID)
				scores[i] = loadedScore{target: targets[i], tournamentID: id, score: score, found: found, err: err}
				return nil
			})
		}
		_ = g.Wait()

		m.post(func() { m.applyHydration(player.ID, gen, actions, scores) })
	})
}

// takeQueuedActions fetches and clears deferred actions. If the queue
// cannot be cleared the actions are not returned, so they run at most
// once.
func (m *Manager) takeQueuedActions(ctx context.Context, id uuid.UUID) []string {
	actions, err := m.store.QueuedActions(ctx, id)
	if err != nil {
		m.logger.Error("failed to load queued actions", "player_id", id, "error", err)
		return nil
	}
	if len(actions) == 0 {
		return nil
	}
	if err := m.store.ClearQueuedActions(ctx, id); err != nil {
		m.logger.Error("failed to clear queued actions", "player_id", id, "error", err)
		return nil
	}
	return actions
}

// applyHydration runs on the loop. Results for a session that has since
// ended are discarded; the store still holds the last saved score.
func (m *Manager) applyHydration(id uuid.UUID, gen uint64, actions []string, scores []loadedScore) {
	s, online := m.online[id]
	if !online || s.gen != gen {
		m.logger.Debug("discarding stale hydration", "player_id", id, "generation", gen)
		m.redeliver(id, actions)
		return
	}

	if len(actions) > 0 {
		m.execute(&s.player, actions, nil)
	}

	for _, l := range scores {
		if l.err != nil {
			m.logger.Error("failed to load score",
				"tournament_id", l.tournamentID,
				"player_id", id,
				"error", l.err,
			)
			continue
		}
		// A score read for an instance that has since been replaced
		// belongs to the previous session.
		t := l.target
		if cur, ok := m.active[key(l.tournamentID)]; !ok || cur != t {
			continue
		}
		if t.Status() == domain.StatusEnded || t.IsParticipant(id) {
			continue
		}

		if l.found {
			t.AddParticipant(id, l.score)
			continue
		}
		if t.AutomaticParticipation() && t.CanJoin(s.player) {
			t.AddParticipant(id, 0)
			m.execute(&s.player, t.ParticipationActions(), t)
		}
	}
}

// redeliver hands deferred actions from a stale hydration to the
// player's current session, or puts them back in the queue.
func (m *Manager) redeliver(id uuid.UUID, actions []string) {
	if len(actions) == 0 {
		return
	}
	if s, ok := m.online[id]; ok {
		m.execute(&s.player, actions, nil)
		return
	}
	m.queueActions(id, actions)
}

func (m *Manager) queueActions(id uuid.UUID, actions []string) {
	m.io.Do(playerKey(id), func(ctx context.Context) {
		if err := m.store.QueueActions(ctx, id, actions); err != nil {
			m.logger.Error("failed to queue actions", "player_id", id, "error", err)
		}
	})
}

// disconnect saves the player's score in every tournament they take part
// in and frees the in-memory entries. Tournaments that ended already
// saved and cleared their participants.
func (m *Manager) disconnect(id uuid.UUID) {
	if _, ok := m.online[id]; !ok {
		return
	}
	delete(m.online, id)

	for _, t := range m.sortedActive() {
		score, ok := t.RemoveParticipant(id)
		if !ok {
			continue
		}
		m.saveScore(t.Identifier(), id, score)
	}
}

// HandleEvents applies a batch of game events on the loop. Join and quit
// events drive the player cache; the rest are routed to objectives.
func (m *Manager) HandleEvents(ctx context.Context, events []domain.Event) error {
	return m.call(ctx, func() error {
		for _, ev := range events {
			if !ev.Valid() {
				m.logger.Warn("dropping invalid event", "kind", ev.Kind)
				continue
			}
			m.handleEvent(ev)
		}
		return nil
	})
}

func (m *Manager) handleEvent(ev domain.Event) {
	switch ev.Kind {
	case domain.EventPlayerJoin:
		m.connect(ev.Player)
	case domain.EventPlayerQuit:
		m.disconnect(ev.Player.ID)
	default:
		s, ok := m.online[ev.Player.ID]
		if !ok {
			return
		}
		// Keep the session's view of the player current.
		if ev.Player.World != "" {
			s.player.World = ev.Player.World
		}
		if ev.Player.GameMode != "" {
			s.player.GameMode = ev.Player.GameMode
		}
		ev.Player = s.player
		m.objectives.Dispatch(ev)
	}
}
