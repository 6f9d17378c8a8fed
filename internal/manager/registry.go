package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tournament-engine/internal/domain"
	"github.com/tournament-engine/internal/tournament"
)

// Load reads every definition file, registers the tournaments, starts
// the update scheduler and runs one update pass.
func (m *Manager) Load(ctx context.Context) error {
	defs, err := tournament.LoadDir(m.dir)
	if err != nil {
		// Broken files are reported and skipped
		m.logger.Error("failed to load some tournament files", "directory", m.dir, "error", err)
	}
	if len(defs) == 0 {
		m.logger.Warn("no tournaments found", "directory", m.dir)
	}

	if err := m.call(ctx, func() error {
		for _, def := range defs {
			// Failures are logged by register; other tournaments still load.
			_ = m.register(def)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("registering tournaments: %w", err)
	}

	if m.scheduler != nil {
		if err := m.scheduler.Start(m.scheduledTick); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
	}

	return m.call(ctx, func() error {
		m.tick()
		return nil
	})
}

// RegisterTournament adds a tournament definition. Disabled definitions
// are ignored and RANDOM ones are only added to the pool.
func (m *Manager) RegisterTournament(ctx context.Context, def *tournament.Definition) error {
	return m.call(ctx, func() error { return m.register(def) })
}

func (m *Manager) register(def *tournament.Definition) error {
	if !def.Enabled {
		m.logger.Debug("tournament disabled, skipping", "tournament_id", def.Identifier)
		return nil
	}

	// Validate before it enters the pool
	checked, err := m.builder.Build(def)
	if err != nil {
		m.logger.Error("invalid tournament definition", "tournament_id", def.Identifier, "error", err)
		return err
	}

	m.pool[key(def.Identifier)] = def.Clone()
	if checked.Timeline() == domain.TimelineRandom {
		m.logger.Debug("tournament kept in random pool", "tournament_id", def.Identifier)
		return nil
	}

	_, err = m.enable(def, true)
	return err
}

// EnableTournament builds a pooled tournament and makes it active
func (m *Manager) EnableTournament(ctx context.Context, id string, clearParticipants bool) error {
	return m.call(ctx, func() error {
		def, ok := m.pool[key(id)]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrTournamentNotFound, id)
		}
		_, err := m.enable(def, clearParticipants)
		return err
	})
}

// enable builds a fresh instance from def, computes its initial status,
// binds its objective and inserts it into the active set. An objective
// load failure is logged and leaves the tournament registered but unable
// to score.
func (m *Manager) enable(def *tournament.Definition, clearParticipants bool) (*tournament.Tournament, error) {
	t, err := m.builder.Build(def)
	if err != nil {
		m.logger.Error("failed to build tournament", "tournament_id", def.Identifier, "error", err)
		return nil, err
	}
	id := t.Identifier()
	reset := clearParticipants && t.Timeline() == domain.TimelineRandom

	if err := t.LoadObjective(); err != nil {
		m.logger.Error("objective did not load, scoring disabled",
			"tournament_id", id,
			"objective", def.Objective,
			"error", err,
		)
	}

	if old, ok := m.active[key(id)]; ok {
		old.Detach()
	}
	t.Initialize(m.now(), clearParticipants)
	m.active[key(id)] = t

	m.logger.Info("loaded tournament",
		"tournament_id", id,
		"status", t.Status(),
		"timeline", t.Timeline(),
	)

	m.provision(t, reset)
	return t, nil
}

// provision creates the tournament's storage, drops the previous
// session's scores when reset is set, then hydrates online players.
// Connects that happen meanwhile skip the tournament; the completion
// covers them. A reset runs as a barrier so saves still pending from the
// previous session land before the delete.
func (m *Manager) provision(t *tournament.Tournament, reset bool) {
	id := t.Identifier()
	m.provisioning[key(id)]++

	submit := m.io.Go
	if reset {
		submit = m.io.Barrier
	}
	submit(func(ctx context.Context) {
		if err := m.store.CreateTable(ctx, id); err != nil {
			m.logger.Error("failed to provision tournament storage", "tournament_id", id, "error", err)
		}
		if reset {
			if err := m.store.DeleteScores(ctx, id); err != nil {
				m.logger.Error("failed to reset tournament scores", "tournament_id", id, "error", err)
			}
		}

		m.post(func() {
			k := key(id)
			if m.provisioning[k]--; m.provisioning[k] <= 0 {
				delete(m.provisioning, k)
			}
			if cur, ok := m.active[k]; !ok || cur != t || t.Status() == domain.StatusEnded {
				return
			}
			for _, s := range m.online {
				m.hydrate(s, []*tournament.Tournament{t}, false)
			}
		})
	})
}

// DisableTournament stops a RANDOM tournament without ending it. FIXED
// tournaments end through their schedule and are left untouched.
func (m *Manager) DisableTournament(ctx context.Context, id string) error {
	return m.call(ctx, func() error {
		t, err := m.lookup(id)
		if err != nil {
			return err
		}
		m.disable(t)
		return nil
	})
}

func (m *Manager) disable(t *tournament.Tournament) {
	if t.Timeline() != domain.TimelineRandom {
		return
	}
	if t.Status() == domain.StatusEnded {
		m.logger.Info("tournament already ended", "tournament_id", t.Identifier())
		return
	}
	t.Suspend()
	m.logger.Info("disabled tournament", "tournament_id", t.Identifier())
}

// RemoveTournament drops a RANDOM tournament from the active set. Its
// definition stays pooled so it can be enabled again.
func (m *Manager) RemoveTournament(ctx context.Context, id string) error {
	return m.call(ctx, func() error {
		t, err := m.lookup(id)
		if err != nil {
			return err
		}
		if t.Timeline() != domain.TimelineRandom {
			return fmt.Errorf("%w: %s is not a random tournament", domain.ErrInvalidTransition, id)
		}
		m.remove(t)
		return nil
	})
}

func (m *Manager) remove(t *tournament.Tournament) {
	if t.Status() != domain.StatusEnded {
		t.Suspend()
	}
	t.Detach()
	delete(m.active, key(t.Identifier()))
	m.logger.Info("unloaded tournament", "tournament_id", t.Identifier())
}

// Shutdown stops the scheduler and saves every online participant's
// score. Participants of RANDOM tournaments stay in memory until the
// tournament is disabled. Unless reloading, the store is closed once all
// pending I/O has finished.
func (m *Manager) Shutdown(ctx context.Context, reload bool) error {
	var errs []error
	if m.scheduler != nil {
		if err := m.scheduler.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping scheduler: %w", err))
		}
	}

	m.logger.Info("saving player data")
	if err := m.call(ctx, func() error {
		m.saveAll()
		return nil
	}); err != nil {
		errs = append(errs, fmt.Errorf("saving scores: %w", err))
	}

	if err := m.io.WaitContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for storage I/O: %w", err))
	}

	if !reload {
		if err := m.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// saveAll persists every online participant, disables RANDOM
// tournaments and empties the registry.
func (m *Manager) saveAll() {
	for _, t := range m.sortedActive() {
		id := t.Identifier()
		for playerID := range m.online {
			if !t.IsParticipant(playerID) {
				continue
			}
			m.saveScore(id, playerID, t.Score(playerID))
			if t.Timeline() != domain.TimelineRandom {
				t.RemoveParticipant(playerID)
			}
		}
		m.disable(t)
		t.Detach()
	}
	clear(m.active)
	clear(m.pool)
}

func (m *Manager) saveScore(tournamentID string, player uuid.UUID, score int64) {
	m.io.Do(playerKey(player), func(ctx context.Context) {
		if err := m.store.SetScore(ctx, tournamentID, player, score); err != nil {
			m.logger.Error("failed to save score",
				"tournament_id", tournamentID,
				"player_id", player,
				"error", err,
			)
		}
	})
}

// Reload saves state, forgets every tournament and loads the definition
// files again. Online players are kept and re-hydrated.
func (m *Manager) Reload(ctx context.Context) error {
	if err := m.Shutdown(ctx, true); err != nil {
		return fmt.Errorf("reload shutdown: %w", err)
	}
	return m.Load(ctx)
}
