package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Status represents where a tournament is in its lifecycle
type Status string

const (
	StatusWaiting Status = "WAITING"
	StatusActive  Status = "ACTIVE"
	StatusEnded   Status = "ENDED"
)

// Timeline represents how a tournament is scheduled
type Timeline string

const (
	// TimelineFixed tournaments run between explicit start and end instants.
	TimelineFixed Timeline = "FIXED"
	// TimelineRandom tournaments sit in a dormant pool until activated on demand.
	TimelineRandom Timeline = "RANDOM"
)

// ParseTimeline normalizes a configured timeline name
func ParseTimeline(s string) (Timeline, bool) {
	switch Timeline(strings.ToUpper(strings.TrimSpace(s))) {
	case TimelineFixed, "":
		return TimelineFixed, true
	case TimelineRandom:
		return TimelineRandom, true
	default:
		return "", false
	}
}

// Standing represents a single entry in a tournament leaderboard
type Standing struct {
	Position   int       `json:"position"`
	PlayerID   uuid.UUID `json:"player_id"`
	PlayerName string    `json:"player_name,omitempty"`
	Score      int64     `json:"score"`
}
