// Package placeholder substitutes {PLACEHOLDER} tokens in player-facing
// text with tournament values.
package placeholder

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tournament-engine/internal/domain"
	"github.com/tournament-engine/internal/tournament"
)

// NoPlayer is rendered for leaderboard positions nobody holds
const NoPlayer = "N/A"

var leaderPattern = regexp.MustCompile(`\{LEADER_(NAME|SCORE_TIME_FORMATTED|SCORE_FORMATTED|SCORE)_(\d+)\}`)

// NameLookup resolves a player's display name
type NameLookup interface {
	PlayerName(id uuid.UUID) (string, bool)
}

// Resolver applies tournament placeholders
type Resolver struct {
	printer *message.Printer
	names   NameLookup
}

// NewResolver creates a resolver using names for leader lookups. Numbers
// are grouped the US way (1,234,567).
func NewResolver(names NameLookup) *Resolver {
	return &Resolver{
		printer: message.NewPrinter(language.AmericanEnglish),
		names:   names,
	}
}

// FormatNumber renders n with thousands separators
func (r *Resolver) FormatNumber(n int64) string {
	return r.printer.Sprintf("%d", n)
}

// Apply replaces every known placeholder in text. Player placeholders
// are only replaced when player is set; tournament placeholders only
// when t is set.
func (r *Resolver) Apply(text string, player *domain.Player, t *tournament.Tournament, now time.Time) string {
	if !strings.Contains(text, "{") {
		return text
	}

	pairs := make([]string, 0, 32)
	if player != nil {
		pairs = append(pairs, "{PLAYER}", player.Name)
	}
	if t != nil {
		loc := t.Location()
		pairs = append(pairs,
			"{TOURNAMENT}", t.Identifier(),
			"{START_DAY}", day(t.StartTime(), loc),
			"{END_DAY}", day(t.EndTime(), loc),
			"{START_MONTH}", month(t.StartTime(), loc),
			"{END_MONTH}", month(t.EndTime(), loc),
			"{START_MONTH_NUMBER}", monthNumber(t.StartTime(), loc),
			"{END_MONTH_NUMBER}", monthNumber(t.EndTime(), loc),
			"{TIME_REMAINING}", r.timeRemaining(t, now),
		)
		if player != nil {
			pos := int64(t.Position(player.ID))
			score := t.Score(player.ID)
			pairs = append(pairs,
				"{PLAYER_POSITION_FORMATTED}", r.FormatNumber(pos),
				"{PLAYER_POSITION}", strconv.FormatInt(pos, 10),
				"{PLAYER_SCORE_TIME_FORMATTED}", tournament.FormatSeconds(score),
				"{PLAYER_SCORE_FORMATTED}", r.FormatNumber(score),
				"{PLAYER_SCORE}", strconv.FormatInt(score, 10),
			)
		}
	}
	text = strings.NewReplacer(pairs...).Replace(text)

	if t == nil {
		return text
	}
	return leaderPattern.ReplaceAllStringFunc(text, func(token string) string {
		m := leaderPattern.FindStringSubmatch(token)
		pos, err := strconv.Atoi(m[2])
		if err != nil {
			return NoPlayer
		}
		return r.leader(t, m[1], pos)
	})
}

// ApplyAll applies placeholders to every line
func (r *Resolver) ApplyAll(lines []string, player *domain.Player, t *tournament.Tournament, now time.Time) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = r.Apply(line, player, t, now)
	}
	return out
}

func (r *Resolver) leader(t *tournament.Tournament, field string, pos int) string {
	if field == "NAME" {
		id, ok := t.PlayerAt(pos)
		if !ok {
			return NoPlayer
		}
		return r.name(id)
	}

	score, ok := t.ScoreAt(pos)
	if !ok {
		return NoPlayer
	}
	switch field {
	case "SCORE_FORMATTED":
		return r.FormatNumber(score)
	case "SCORE_TIME_FORMATTED":
		return tournament.FormatSeconds(score)
	default:
		return strconv.FormatInt(score, 10)
	}
}

func (r *Resolver) name(id uuid.UUID) string {
	if r.names != nil {
		if name, ok := r.names.PlayerName(id); ok {
			return name
		}
	}
	return id.String()
}

func (r *Resolver) timeRemaining(t *tournament.Tournament, now time.Time) string {
	if t.EndTime().IsZero() {
		return NoPlayer
	}
	return tournament.FormatDuration(t.TimeRemaining(now))
}

func day(ts time.Time, loc *time.Location) string {
	if ts.IsZero() {
		return NoPlayer
	}
	return strconv.Itoa(ts.In(loc).Day())
}

func month(ts time.Time, loc *time.Location) string {
	if ts.IsZero() {
		return NoPlayer
	}
	return ts.In(loc).Month().String()
}

func monthNumber(ts time.Time, loc *time.Location) string {
	if ts.IsZero() {
		return NoPlayer
	}
	return strconv.Itoa(int(ts.In(loc).Month()))
}
