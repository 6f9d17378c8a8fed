package tournament

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tournament-engine/internal/domain"
)

// Accepted layouts for start and end in a tournament file
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
}

// ObjectiveResolver finds an objective by its configured name
type ObjectiveResolver interface {
	Objective(name string) (Objective, bool)
}

// BuildError describes why a definition could not be built
type BuildError struct {
	Identifier string
	Field      string
	Reason     string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("tournament %s: %s: %s", e.Identifier, e.Field, e.Reason)
}

func (e *BuildError) Unwrap() error {
	return domain.ErrInvalidDefinition
}

// Builder turns definitions into tournaments
type Builder struct {
	objectives ObjectiveResolver
}

// NewBuilder creates a builder resolving objectives through r
func NewBuilder(r ObjectiveResolver) *Builder {
	return &Builder{objectives: r}
}

// Build validates def and returns a new WAITING tournament. Every call
// returns an independent instance; nothing is cached. On error no
// tournament is returned.
func (b *Builder) Build(def *Definition) (*Tournament, error) {
	if def == nil {
		return nil, &BuildError{Field: "definition", Reason: "missing"}
	}
	id := def.Identifier
	fail := func(field, format string, args ...any) (*Tournament, error) {
		return nil, &BuildError{Identifier: id, Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	if strings.TrimSpace(id) == "" {
		return fail("identifier", "must not be empty")
	}

	if def.Objective == "" {
		return fail("objective", "must be set")
	}
	objective, ok := b.objectives.Objective(def.Objective)
	if !ok {
		return fail("objective", "unknown objective %q", def.Objective)
	}

	timeline, ok := domain.ParseTimeline(def.Timeline)
	if !ok {
		return fail("timeline", "unknown timeline %q", def.Timeline)
	}

	loc := time.UTC
	if def.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(def.Timezone); err != nil {
			return fail("timezone", "%v", err)
		}
	}

	if def.ParticipationCost < 0 {
		return fail("participation_cost", "must not be negative")
	}
	if def.LeaderboardRefresh < 0 {
		return fail("leaderboard_refresh", "must not be negative")
	}
	if def.Duration < 0 {
		return fail("duration", "must not be negative")
	}
	for pos := range def.Rewards {
		if pos < 1 {
			return fail("rewards", "position %d must be at least 1", pos)
		}
	}

	var start, end time.Time
	if timeline == domain.TimelineFixed {
		var err error
		if start, err = parseTime(def.Start, loc); err != nil {
			return fail("start", "%v", err)
		}
		if end, err = parseTime(def.End, loc); err != nil {
			return fail("end", "%v", err)
		}
		if !end.After(start) {
			return fail("end", "must be after start")
		}
	}

	def = def.Clone()
	return &Tournament{
		identifier:              id,
		def:                     def,
		status:                  domain.StatusWaiting,
		timeline:                timeline,
		start:                   start,
		end:                     end,
		location:                loc,
		duration:                def.Duration,
		disabledWorlds:          toSet(def.DisabledWorlds),
		disabledGamemodes:       toSet(def.DisabledGamemodes),
		automaticParticipation:  def.AutomaticParticipation,
		participationCost:       def.ParticipationCost,
		participationPermission: def.ParticipationPermission,
		refreshInterval:         time.Duration(def.LeaderboardRefresh) * time.Second,
		participationActions:    def.ParticipationActions,
		startActions:            def.StartActions,
		endActions:              def.EndActions,
		rewards:                 def.Rewards,
		participants:            make(map[uuid.UUID]*participant),
		positions:               make(map[uuid.UUID]int),
		objective:               objective,
	}, nil
}

func parseTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("required for FIXED timeline")
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q", value)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[normalize(v)] = struct{}{}
	}
	return set
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
