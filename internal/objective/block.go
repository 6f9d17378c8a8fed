package objective

import (
	"github.com/tournament-engine/internal/domain"
	"github.com/tournament-engine/internal/tournament"
)

type breakConfig struct {
	whitelist     whitelist
	excludePlaced bool
}

// BreakObjective scores one point per block broken. Immature crops are
// ignored. With exclude_placed_blocks, blocks placed by players while the
// objective was running do not count.
type BreakObjective struct {
	Base
	placed map[domain.Location]struct{}
}

// NewBreakObjective creates the BLOCK_BREAK objective
func NewBreakObjective() *BreakObjective {
	return &BreakObjective{
		Base:   NewBase("BLOCK_BREAK"),
		placed: make(map[domain.Location]struct{}),
	}
}

// Kinds implements Strategy
func (o *BreakObjective) Kinds() []domain.EventKind {
	return []domain.EventKind{domain.EventBlockBreak, domain.EventBlockPlace}
}

// LoadTournament reads block_whitelist and exclude_placed_blocks
func (o *BreakObjective) LoadTournament(t *tournament.Tournament, def *tournament.Definition) error {
	t.SetObjectiveConfig(o.Name(), breakConfig{
		whitelist:     newWhitelist(def, "block_whitelist"),
		excludePlaced: def.Bool("exclude_placed_blocks"),
	})
	return nil
}

// Score implements Strategy
func (o *BreakObjective) Score(t *tournament.Tournament, ev domain.Event) int64 {
	if ev.Kind != domain.EventBlockBreak {
		return 0
	}
	if ev.Crop && !ev.Grown {
		return 0
	}
	cfg, _ := t.ObjectiveConfig(o.Name())
	bc, _ := cfg.(breakConfig)
	if bc.excludePlaced && o.wasPlaced(ev.Location) {
		return 0
	}
	if !bc.whitelist.allows(ev.Block) {
		return 0
	}
	return 1
}

// Observe tracks player-placed blocks
func (o *BreakObjective) Observe(ev domain.Event) {
	if ev.Location == nil {
		return
	}
	switch ev.Kind {
	case domain.EventBlockPlace:
		if o.excluding() {
			o.placed[*ev.Location] = struct{}{}
		}
	case domain.EventBlockBreak:
		delete(o.placed, *ev.Location)
	}
}

// RemoveTournament stops serving t and forgets placed blocks once no
// served tournament excludes them.
func (o *BreakObjective) RemoveTournament(t *tournament.Tournament) {
	o.Base.RemoveTournament(t)
	if !o.excluding() {
		clear(o.placed)
	}
}

func (o *BreakObjective) excluding() bool {
	for _, t := range o.tournaments {
		cfg, _ := t.ObjectiveConfig(o.Name())
		if bc, ok := cfg.(breakConfig); ok && bc.excludePlaced {
			return true
		}
	}
	return false
}

func (o *BreakObjective) wasPlaced(loc *domain.Location) bool {
	if loc == nil {
		return false
	}
	_, ok := o.placed[*loc]
	return ok
}

// PlaceObjective scores one point per block placed
type PlaceObjective struct {
	Base
}

// NewPlaceObjective creates the BLOCK_PLACE objective
func NewPlaceObjective() *PlaceObjective {
	return &PlaceObjective{Base: NewBase("BLOCK_PLACE")}
}

// Kinds implements Strategy
func (o *PlaceObjective) Kinds() []domain.EventKind {
	return []domain.EventKind{domain.EventBlockPlace}
}

// LoadTournament reads block_whitelist
func (o *PlaceObjective) LoadTournament(t *tournament.Tournament, def *tournament.Definition) error {
	t.SetObjectiveConfig(o.Name(), newWhitelist(def, "block_whitelist"))
	return nil
}

// Score implements Strategy
func (o *PlaceObjective) Score(t *tournament.Tournament, ev domain.Event) int64 {
	if !whitelistFor(t, o.Name()).allows(ev.Block) {
		return 0
	}
	return 1
}
