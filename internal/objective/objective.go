// Package objective implements the scoring strategies tournaments are
// bound to and routes game events to them.
package objective

import (
	"slices"
	"strings"

	"github.com/tournament-engine/internal/domain"
	"github.com/tournament-engine/internal/tournament"
)

// Strategy is an objective that turns game events into score deltas
type Strategy interface {
	tournament.Objective
	// Kinds lists the event kinds the strategy consumes.
	Kinds() []domain.EventKind
	// Score returns the delta ev earns in t, zero for none.
	Score(t *tournament.Tournament, ev domain.Event) int64
	// Tournaments returns the tournaments currently served.
	Tournaments() []*tournament.Tournament
}

// Observer is implemented by strategies that keep state across events.
// Observe runs after every served tournament has been scored.
type Observer interface {
	Observe(ev domain.Event)
}

// Base tracks the tournaments an objective serves
type Base struct {
	name        string
	tournaments []*tournament.Tournament
}

// NewBase creates a Base with the given objective name
func NewBase(name string) Base {
	return Base{name: strings.ToUpper(name)}
}

// Name returns the objective name
func (b *Base) Name() string { return b.name }

// AddTournament starts serving t
func (b *Base) AddTournament(t *tournament.Tournament) {
	if slices.Contains(b.tournaments, t) {
		return
	}
	b.tournaments = append(b.tournaments, t)
}

// RemoveTournament stops serving t
func (b *Base) RemoveTournament(t *tournament.Tournament) {
	b.tournaments = slices.DeleteFunc(b.tournaments, func(s *tournament.Tournament) bool {
		return s == t
	})
}

// Tournaments returns a copy of the served tournaments
func (b *Base) Tournaments() []*tournament.Tournament {
	return slices.Clone(b.tournaments)
}

// whitelist is an optional allow-list. A nil whitelist allows everything.
type whitelist map[string]struct{}

func newWhitelist(def *tournament.Definition, key string) whitelist {
	if !def.Has(key) {
		return nil
	}
	wl := make(whitelist)
	for _, v := range def.StringList(key) {
		wl[strings.ToUpper(strings.TrimSpace(v))] = struct{}{}
	}
	return wl
}

func (wl whitelist) allows(v string) bool {
	if wl == nil {
		return true
	}
	_, ok := wl[strings.ToUpper(v)]
	return ok
}

// whitelistFor returns the allow-list an objective stored on t
func whitelistFor(t *tournament.Tournament, objective string) whitelist {
	cfg, ok := t.ObjectiveConfig(objective)
	if !ok {
		return nil
	}
	wl, _ := cfg.(whitelist)
	return wl
}

func amount(ev domain.Event) int64 {
	if ev.Amount < 1 {
		return 1
	}
	return int64(ev.Amount)
}
