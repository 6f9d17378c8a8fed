package objective

import (
	"github.com/tournament-engine/internal/domain"
	"github.com/tournament-engine/internal/tournament"
)

// CraftObjective scores the number of items crafted
type CraftObjective struct {
	Base
}

// NewCraftObjective creates the ITEM_CRAFT objective
func NewCraftObjective() *CraftObjective {
	return &CraftObjective{Base: NewBase("ITEM_CRAFT")}
}

// Kinds implements Strategy
func (o *CraftObjective) Kinds() []domain.EventKind {
	return []domain.EventKind{domain.EventItemCraft}
}

// LoadTournament reads item_whitelist
func (o *CraftObjective) LoadTournament(t *tournament.Tournament, def *tournament.Definition) error {
	t.SetObjectiveConfig(o.Name(), newWhitelist(def, "item_whitelist"))
	return nil
}

// Score implements Strategy
func (o *CraftObjective) Score(t *tournament.Tournament, ev domain.Event) int64 {
	if !whitelistFor(t, o.Name()).allows(ev.Item) {
		return 0
	}
	return amount(ev)
}

// PlayerKillObjective scores one point per player killed
type PlayerKillObjective struct {
	Base
}

// NewPlayerKillObjective creates the PLAYER_KILLS objective
func NewPlayerKillObjective() *PlayerKillObjective {
	return &PlayerKillObjective{Base: NewBase("PLAYER_KILLS")}
}

// Kinds implements Strategy
func (o *PlayerKillObjective) Kinds() []domain.EventKind {
	return []domain.EventKind{domain.EventPlayerKill}
}

// LoadTournament implements tournament.Objective; PLAYER_KILLS has no options.
func (o *PlayerKillObjective) LoadTournament(*tournament.Tournament, *tournament.Definition) error {
	return nil
}

// Score implements Strategy. Suicides do not count.
func (o *PlayerKillObjective) Score(_ *tournament.Tournament, ev domain.Event) int64 {
	if ev.Victim == nil || *ev.Victim == ev.Player.ID {
		return 0
	}
	return 1
}

// MobKillObjective scores one point per mob killed
type MobKillObjective struct {
	Base
}

// NewMobKillObjective creates the MOB_KILLS objective
func NewMobKillObjective() *MobKillObjective {
	return &MobKillObjective{Base: NewBase("MOB_KILLS")}
}

// Kinds implements Strategy
func (o *MobKillObjective) Kinds() []domain.EventKind {
	return []domain.EventKind{domain.EventMobKill}
}

// LoadTournament reads mob_whitelist
func (o *MobKillObjective) LoadTournament(t *tournament.Tournament, def *tournament.Definition) error {
	t.SetObjectiveConfig(o.Name(), newWhitelist(def, "mob_whitelist"))
	return nil
}

// Score implements Strategy
func (o *MobKillObjective) Score(t *tournament.Tournament, ev domain.Event) int64 {
	if ev.Entity == "" {
		return 0
	}
	if !whitelistFor(t, o.Name()).allows(ev.Entity) {
		return 0
	}
	return 1
}
