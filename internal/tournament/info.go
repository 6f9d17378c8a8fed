package tournament

import (
	"slices"
	"time"

	"github.com/tournament-engine/internal/domain"
)

// Info is a read-only snapshot of a tournament for admin surfaces
type Info struct {
	Identifier              string          `json:"identifier"`
	Status                  domain.Status   `json:"status"`
	Objective               string          `json:"objective"`
	Timeline                domain.Timeline `json:"timeline"`
	Timezone                string          `json:"timezone"`
	Start                   *time.Time      `json:"start,omitempty"`
	End                     *time.Time      `json:"end,omitempty"`
	TimeRemaining           string          `json:"time_remaining,omitempty"`
	DisabledWorlds          []string        `json:"disabled_worlds"`
	DisabledGamemodes       []string        `json:"disabled_gamemodes"`
	AutomaticParticipation  bool            `json:"automatic_participation"`
	ParticipationCost       float64         `json:"participation_cost"`
	ParticipationPermission string          `json:"participation_permission,omitempty"`
	LeaderboardRefresh      int             `json:"leaderboard_refresh"`
	Participants            int             `json:"participants"`
	ObjectiveScoring        bool            `json:"objective_scoring"`
	ObjectiveConfig         []string        `json:"objective_config"`
}

// Info returns a snapshot of the tournament's configuration and state
func (t *Tournament) Info(now time.Time) Info {
	info := Info{
		Identifier:              t.identifier,
		Status:                  t.status,
		Timeline:                t.timeline,
		Timezone:                t.location.String(),
		DisabledWorlds:          setKeys(t.disabledWorlds),
		DisabledGamemodes:       setKeys(t.disabledGamemodes),
		AutomaticParticipation:  t.automaticParticipation,
		ParticipationCost:       t.participationCost,
		ParticipationPermission: t.participationPermission,
		LeaderboardRefresh:      int(t.refreshInterval / time.Second),
		Participants:            len(t.participants),
		ObjectiveScoring:        t.serving,
		ObjectiveConfig:         t.ObjectiveConfigKeys(),
	}
	if t.objective != nil {
		info.Objective = t.objective.Name()
	}
	if !t.start.IsZero() {
		start := t.start
		info.Start = &start
	}
	if !t.end.IsZero() {
		end := t.end
		info.End = &end
		if t.status != domain.StatusEnded {
			info.TimeRemaining = FormatDuration(t.TimeRemaining(now))
		}
	}
	return info
}

// TimeRemaining returns the time until the end instant, zero if none
func (t *Tournament) TimeRemaining(now time.Time) time.Duration {
	if t.end.IsZero() || !now.Before(t.end) {
		return 0
	}
	return t.end.Sub(now)
}

func setKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
