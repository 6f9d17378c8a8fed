package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind identifies a game event reported by the host
type EventKind string

const (
	EventPlayerJoin EventKind = "player_join"
	EventPlayerQuit EventKind = "player_quit"
	EventBlockBreak EventKind = "block_break"
	EventBlockPlace EventKind = "block_place"
	EventItemCraft  EventKind = "item_craft"
	EventPlayerKill EventKind = "player_kill"
	EventMobKill    EventKind = "mob_kill"
)

// Location is a block position in a world
type Location struct {
	World string `json:"world"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
}

// Event is a single game event. Only the fields relevant to Kind are set.
type Event struct {
	Kind      EventKind  `json:"kind"`
	Player    Player     `json:"player"`
	Block     string     `json:"block,omitempty"`
	Location  *Location  `json:"location,omitempty"`
	Crop      bool       `json:"crop,omitempty"`
	Grown     bool       `json:"grown,omitempty"`
	Item      string     `json:"item,omitempty"`
	Amount    int        `json:"amount,omitempty"`
	Victim    *uuid.UUID `json:"victim,omitempty"`
	Entity    string     `json:"entity,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Valid reports whether the event carries the minimum routing information
func (e Event) Valid() bool {
	return e.Kind != "" && e.Player.ID != uuid.Nil
}
