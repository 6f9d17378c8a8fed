// Package tournament holds the tournament state machine, participant
// scores and the ranking cache. A Tournament is not safe for concurrent
// use; the manager's loop goroutine is its only writer and reader.
package tournament

import (
	"cmp"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/tournament-engine/internal/domain"
)

// Objective is the scoring strategy a tournament is bound to. One
// objective serves many tournaments.
type Objective interface {
	Name() string
	LoadTournament(t *Tournament, def *Definition) error
	AddTournament(t *Tournament)
	RemoveTournament(t *Tournament)
}

type participant struct {
	score int64
	seq   uint64
}

// Transition reports what an evaluation or admin action changed. Final
// holds the scores captured when the tournament ended, before the
// in-memory participants were cleared.
type Transition struct {
	From      domain.Status
	To        domain.Status
	Refreshed bool
	Final     map[uuid.UUID]int64
}

// Changed reports whether the status moved
func (tr Transition) Changed() bool {
	return tr.From != tr.To
}

// Tournament is one competitive session
type Tournament struct {
	identifier string
	def        *Definition

	status   domain.Status
	timeline domain.Timeline
	start    time.Time
	end      time.Time
	location *time.Location
	duration time.Duration

	disabledWorlds          map[string]struct{}
	disabledGamemodes       map[string]struct{}
	automaticParticipation  bool
	participationCost       float64
	participationPermission string
	refreshInterval         time.Duration

	participationActions []string
	startActions         []string
	endActions           []string
	rewards              map[int][]string

	participants map[uuid.UUID]*participant
	nextSeq      uint64

	ranking   []domain.Standing
	positions map[uuid.UUID]int
	ranked    bool
	rankedAt  time.Time

	objective       Objective
	objectiveReady  bool
	serving         bool
	objectiveConfig map[string]any
}

// Identifier returns the tournament's unique key
func (t *Tournament) Identifier() string { return t.identifier }

// Definition returns the definition the tournament was built from
func (t *Tournament) Definition() *Definition { return t.def }

// Status returns the current lifecycle status
func (t *Tournament) Status() domain.Status { return t.status }

// Timeline returns the scheduling mode
func (t *Tournament) Timeline() domain.Timeline { return t.timeline }

// StartTime returns the start instant, zero when unscheduled
func (t *Tournament) StartTime() time.Time { return t.start }

// EndTime returns the end instant, zero when open-ended
func (t *Tournament) EndTime() time.Time { return t.end }

// Location returns the configured time zone
func (t *Tournament) Location() *time.Location { return t.location }

// Objective returns the bound objective
func (t *Tournament) Objective() Objective { return t.objective }

// AutomaticParticipation reports whether players are enrolled on connect
func (t *Tournament) AutomaticParticipation() bool { return t.automaticParticipation }

// ParticipationCost returns the price of manual enrollment
func (t *Tournament) ParticipationCost() float64 { return t.participationCost }

// ParticipationPermission returns the permission gating enrollment, if any
func (t *Tournament) ParticipationPermission() string { return t.participationPermission }

// ParticipationActions returns actions run when a player enrolls
func (t *Tournament) ParticipationActions() []string { return t.participationActions }

// StartActions returns actions run when the tournament becomes active
func (t *Tournament) StartActions() []string { return t.startActions }

// EndActions returns actions run when the tournament ends
func (t *Tournament) EndActions() []string { return t.endActions }

// Rewards returns reward actions keyed by leaderboard position
func (t *Tournament) Rewards() map[int][]string { return t.rewards }

// RefreshInterval returns the ranking cache cadence
func (t *Tournament) RefreshInterval() time.Duration { return t.refreshInterval }

// CanJoin reports whether the player passes the permission gate
func (t *Tournament) CanJoin(p domain.Player) bool {
	return t.participationPermission == "" || p.HasPermission(t.participationPermission)
}

// CanExecute reports whether an objective may score for the player:
// the tournament is active, the player is enrolled and is not in a
// disabled world or game mode.
func (t *Tournament) CanExecute(p domain.Player) bool {
	if t.status != domain.StatusActive || !t.IsParticipant(p.ID) {
		return false
	}
	if _, ok := t.disabledWorlds[normalize(p.World)]; ok {
		return false
	}
	if _, ok := t.disabledGamemodes[normalize(p.GameMode)]; ok {
		return false
	}
	return true
}

// Initialize sets the status from the current time after a build. A
// FIXED tournament past its end starts out ENDED without running the
// entry actions; a RANDOM tournament is activated immediately.
func (t *Tournament) Initialize(now time.Time, clearParticipants bool) Transition {
	tr := Transition{From: t.status}
	switch {
	case t.timeline == domain.TimelineRandom:
		t.begin(now, clearParticipants)
	case now.Before(t.start):
		t.status = domain.StatusWaiting
	case now.Before(t.end):
		t.begin(now, clearParticipants)
	default:
		t.status = domain.StatusEnded
	}
	tr.To = t.status
	return tr
}

// Update evaluates time-based transitions and refreshes the ranking
// cache when it is due. Calling it when nothing is due changes nothing.
func (t *Tournament) Update(now time.Time) Transition {
	tr := Transition{From: t.status}

	switch t.status {
	case domain.StatusWaiting:
		if t.timeline == domain.TimelineFixed && !now.Before(t.start) {
			if now.Before(t.end) {
				t.begin(now, false)
			} else {
				tr.Final = t.finish(now)
			}
		}
	case domain.StatusActive:
		if !t.end.IsZero() && !now.Before(t.end) {
			tr.Final = t.finish(now)
		}
	}

	if t.status == domain.StatusActive && t.rankingDue(now) {
		t.RefreshRanking(now)
		tr.Refreshed = true
	}
	if tr.Final != nil {
		tr.Refreshed = true
	}
	tr.To = t.status
	return tr
}

// Start forces the tournament active. ENDED tournaments cannot restart;
// a RANDOM tournament is re-run by building a fresh instance instead.
func (t *Tournament) Start(now time.Time, clearParticipants bool) (Transition, error) {
	tr := Transition{From: t.status}
	switch t.status {
	case domain.StatusActive:
		return tr, domain.ErrAlreadyActive
	case domain.StatusEnded:
		return tr, domain.ErrInvalidTransition
	}
	t.begin(now, clearParticipants)
	tr.To = t.status
	return tr, nil
}

// End forces the tournament to end
func (t *Tournament) End(now time.Time) (Transition, error) {
	tr := Transition{From: t.status}
	if t.status == domain.StatusEnded {
		return tr, domain.ErrAlreadyEnded
	}
	tr.Final = t.finish(now)
	tr.Refreshed = true
	tr.To = t.status
	return tr, nil
}

// Suspend detaches the objective and drops in-memory participants
// without running the end-of-session logic. Used when the process
// shuts down while a RANDOM tournament is still running.
func (t *Tournament) Suspend() {
	t.detach()
	clear(t.participants)
	t.status = domain.StatusEnded
}

// begin is the ACTIVE entry action
func (t *Tournament) begin(now time.Time, clearParticipants bool) {
	if clearParticipants {
		clear(t.participants)
		t.ranked = false
	}
	if t.timeline == domain.TimelineRandom && t.duration > 0 {
		t.start = now
		t.end = now.Add(t.duration)
	}
	t.status = domain.StatusActive
	t.attach()
}

// finish is the ENDED entry action. It takes a final ranking, stops
// serving the objective and hands back every participant's score so
// the caller can persist them before they are cleared from memory.
func (t *Tournament) finish(now time.Time) map[uuid.UUID]int64 {
	t.RefreshRanking(now)
	t.detach()

	final := make(map[uuid.UUID]int64, len(t.participants))
	for id, p := range t.participants {
		final[id] = p.score
	}
	clear(t.participants)
	t.status = domain.StatusEnded
	return final
}

func (t *Tournament) attach() {
	if t.serving || !t.objectiveReady || t.objective == nil {
		return
	}
	t.objective.AddTournament(t)
	t.serving = true
}

func (t *Tournament) detach() {
	if !t.serving {
		return
	}
	t.objective.RemoveTournament(t)
	t.serving = false
}

// Detach stops the objective from serving this tournament
func (t *Tournament) Detach() { t.detach() }

// LoadObjective lets the bound objective read its configuration. On
// failure the tournament keeps running but the objective never serves
// it, so it cannot score.
func (t *Tournament) LoadObjective() error {
	if t.objective == nil {
		return domain.ErrUnknownObjective
	}
	if err := t.objective.LoadTournament(t, t.def); err != nil {
		t.objectiveReady = false
		return err
	}
	t.objectiveReady = true
	return nil
}

// Serving reports whether the objective is currently scoring for this tournament
func (t *Tournament) Serving() bool { return t.serving }

// SetObjectiveConfig stores typed configuration for the named objective
func (t *Tournament) SetObjectiveConfig(objective string, cfg any) {
	if t.objectiveConfig == nil {
		t.objectiveConfig = make(map[string]any)
	}
	t.objectiveConfig[objective] = cfg
}

// ObjectiveConfig returns configuration stored by the named objective
func (t *Tournament) ObjectiveConfig(objective string) (any, bool) {
	cfg, ok := t.objectiveConfig[objective]
	return cfg, ok
}

// ObjectiveConfigKeys lists the objectives that stored configuration
func (t *Tournament) ObjectiveConfigKeys() []string {
	return slices.Sorted(maps.Keys(t.objectiveConfig))
}

// AddScore adds delta to the player's score, enrolling them at zero
// first if needed. It does nothing unless the tournament is active.
func (t *Tournament) AddScore(id uuid.UUID, delta int64) bool {
	if t.status != domain.StatusActive {
		return false
	}
	p, ok := t.participants[id]
	if !ok {
		p = t.enroll(id)
	}
	p.score += delta
	return true
}

// AddParticipant sets the player's score, enrolling them if needed. An
// existing participant keeps their enrollment order.
func (t *Tournament) AddParticipant(id uuid.UUID, score int64) {
	p, ok := t.participants[id]
	if !ok {
		p = t.enroll(id)
	}
	p.score = score
}

func (t *Tournament) enroll(id uuid.UUID) *participant {
	t.nextSeq++
	p := &participant{seq: t.nextSeq}
	t.participants[id] = p
	return p
}

// RemoveParticipant drops the player from memory and returns their score
func (t *Tournament) RemoveParticipant(id uuid.UUID) (int64, bool) {
	p, ok := t.participants[id]
	if !ok {
		return 0, false
	}
	delete(t.participants, id)
	return p.score, true
}

// IsParticipant reports whether the player is enrolled in memory
func (t *Tournament) IsParticipant(id uuid.UUID) bool {
	_, ok := t.participants[id]
	return ok
}

// Score returns the player's in-memory score, zero if not enrolled
func (t *Tournament) Score(id uuid.UUID) int64 {
	if p, ok := t.participants[id]; ok {
		return p.score
	}
	return 0
}

// Participants returns a copy of the in-memory scores
func (t *Tournament) Participants() map[uuid.UUID]int64 {
	out := make(map[uuid.UUID]int64, len(t.participants))
	for id, p := range t.participants {
		out[id] = p.score
	}
	return out
}

// ParticipantCount returns the number of enrolled players in memory
func (t *Tournament) ParticipantCount() int { return len(t.participants) }

// ClearParticipants removes every participant and empties the ranking
func (t *Tournament) ClearParticipants() {
	clear(t.participants)
	t.ranking = nil
	clear(t.positions)
	t.ranked = false
}

// ClearParticipant removes one participant and drops them from the ranking
func (t *Tournament) ClearParticipant(id uuid.UUID) bool {
	_, ok := t.RemoveParticipant(id)
	if _, ranked := t.positions[id]; ranked {
		t.ranked = false
	}
	return ok
}

func (t *Tournament) rankingDue(now time.Time) bool {
	return !t.ranked || t.rankedAt.IsZero() || now.Sub(t.rankedAt) >= t.refreshInterval
}

// RefreshRanking re-sorts participants by score, highest first. Equal
// scores are ordered by enrollment, earliest first.
func (t *Tournament) RefreshRanking(now time.Time) {
	t.rank()
	t.rankedAt = now
}

func (t *Tournament) rank() {
	type row struct {
		id uuid.UUID
		p  *participant
	}
	rows := make([]row, 0, len(t.participants))
	for id, p := range t.participants {
		rows = append(rows, row{id, p})
	}
	slices.SortFunc(rows, func(a, b row) int {
		if c := cmp.Compare(b.p.score, a.p.score); c != 0 {
			return c
		}
		return cmp.Compare(a.p.seq, b.p.seq)
	})

	t.ranking = make([]domain.Standing, len(rows))
	t.positions = make(map[uuid.UUID]int, len(rows))
	for i, r := range rows {
		t.ranking[i] = domain.Standing{Position: i + 1, PlayerID: r.id, Score: r.p.score}
		t.positions[r.id] = i + 1
	}
	t.ranked = true
}

// ensureRanking computes the cache on demand if it was never built
func (t *Tournament) ensureRanking() {
	if !t.ranked {
		t.rank()
	}
}

// Position returns the player's 1-based rank, or 0 if unranked
func (t *Tournament) Position(id uuid.UUID) int {
	t.ensureRanking()
	return t.positions[id]
}

// PlayerAt returns the player holding the given rank
func (t *Tournament) PlayerAt(position int) (uuid.UUID, bool) {
	t.ensureRanking()
	if position < 1 || position > len(t.ranking) {
		return uuid.Nil, false
	}
	return t.ranking[position-1].PlayerID, true
}

// ScoreAt returns the score at the given rank
func (t *Tournament) ScoreAt(position int) (int64, bool) {
	t.ensureRanking()
	if position < 1 || position > len(t.ranking) {
		return 0, false
	}
	return t.ranking[position-1].Score, true
}

// Standings returns up to limit cached entries; limit <= 0 returns all
func (t *Tournament) Standings(limit int) []domain.Standing {
	t.ensureRanking()
	n := len(t.ranking)
	if limit > 0 && limit < n {
		n = limit
	}
	return slices.Clone(t.ranking[:n])
}

// RankedCount returns the number of entries in the ranking cache
func (t *Tournament) RankedCount() int {
	t.ensureRanking()
	return len(t.ranking)
}
