package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Player is a connected player as reported by the game host
type Player struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	World       string    `json:"world,omitempty"`
	GameMode    string    `json:"game_mode,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
}

// HasPermission reports whether the player holds the given permission node.
// A trailing ".*" grants every node below it.
func (p Player) HasPermission(node string) bool {
	node = strings.ToLower(node)
	for _, held := range p.Permissions {
		held = strings.ToLower(held)
		if held == node || held == "*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(held, ".*"); ok && strings.HasPrefix(node, prefix+".") {
			return true
		}
	}
	return false
}
