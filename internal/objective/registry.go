package objective

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tournament-engine/internal/domain"
	"github.com/tournament-engine/internal/tournament"
)

// Registry resolves objectives by name and routes events to them. It is
// not safe for concurrent use; it lives on the manager's loop.
type Registry struct {
	strategies map[string]Strategy
	byKind     map[domain.EventKind][]Strategy
	logger     *slog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
		byKind:     make(map[domain.EventKind][]Strategy),
		logger:     logger,
	}
}

// NewDefaultRegistry creates a registry with every built-in objective
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	for _, s := range []Strategy{
		NewBreakObjective(),
		NewPlaceObjective(),
		NewCraftObjective(),
		NewPlayerKillObjective(),
		NewMobKillObjective(),
	} {
		// Built-in names are unique.
		_ = r.Register(s)
	}
	return r
}

// Register adds a strategy. Names are case-insensitive and unique.
func (r *Registry) Register(s Strategy) error {
	key := strings.ToUpper(s.Name())
	if _, exists := r.strategies[key]; exists {
		return fmt.Errorf("objective %s already registered", key)
	}
	r.strategies[key] = s
	for _, kind := range s.Kinds() {
		r.byKind[kind] = append(r.byKind[kind], s)
	}
	r.logger.Debug("registered objective", "objective", key)
	return nil
}

// Objective implements tournament.ObjectiveResolver
func (r *Registry) Objective(name string) (tournament.Objective, bool) {
	s, ok := r.strategies[strings.ToUpper(strings.TrimSpace(name))]
	return s, ok
}

// Dispatch scores ev in every tournament served by an interested
// strategy and returns the number of score changes.
func (r *Registry) Dispatch(ev domain.Event) int {
	changes := 0
	for _, s := range r.byKind[ev.Kind] {
		for _, t := range s.Tournaments() {
			if !t.CanExecute(ev.Player) {
				continue
			}
			delta := s.Score(t, ev)
			if delta == 0 {
				continue
			}
			if t.AddScore(ev.Player.ID, delta) {
				changes++
			}
		}
		if o, ok := s.(Observer); ok {
			o.Observe(ev)
		}
	}
	return changes
}
