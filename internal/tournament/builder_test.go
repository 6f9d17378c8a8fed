package tournament_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tournament-engine/internal/domain"
	"github.com/tournament-engine/internal/tournament"
)

func TestBuildRejectsInvalidDefinitions(t *testing.T) {
	valid := func() *tournament.Definition {
		return fixedDef(base, base.Add(time.Hour))
	}

	cases := []struct {
		name   string
		mutate func(d *tournament.Definition)
		field  string
	}{
		{"unknown objective", func(d *tournament.Definition) { d.Objective = "FISHING" }, "objective"},
		{"missing objective", func(d *tournament.Definition) { d.Objective = "" }, "objective"},
		{"bad timeline", func(d *tournament.Definition) { d.Timeline = "WEEKLY" }, "timeline"},
		{"missing start", func(d *tournament.Definition) { d.Start = "" }, "start"},
		{"unparseable end", func(d *tournament.Definition) { d.End = "next tuesday" }, "end"},
		{"end before start", func(d *tournament.Definition) { d.End = base.Add(-time.Hour).Format(layout) }, "end"},
		{"bad timezone", func(d *tournament.Definition) { d.Timezone = "Mars/Olympus" }, "timezone"},
		{"negative cost", func(d *tournament.Definition) { d.ParticipationCost = -1 }, "participation_cost"},
		{"negative refresh", func(d *tournament.Definition) { d.LeaderboardRefresh = -5 }, "leaderboard_refresh"},
		{"reward position zero", func(d *tournament.Definition) { d.Rewards = map[int][]string{0: {"[MESSAGE] hi"}} }, "rewards"},
	}

	b := tournament.NewBuilder(stubResolver{"BLOCK_BREAK": newStubObjective("BLOCK_BREAK")})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			def := valid()
			tc.mutate(def)

			tour, err := b.Build(def)
			if tour != nil {
				t.Fatal("expected no tournament on failure")
			}
			var buildErr *tournament.BuildError
			if !errors.As(err, &buildErr) {
				t.Fatalf("expected BuildError, got %v", err)
			}
			if buildErr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, buildErr.Field)
			}
			if !errors.Is(err, domain.ErrInvalidDefinition) {
				t.Fatal("expected BuildError to wrap ErrInvalidDefinition")
			}
		})
	}
}

func TestBuildReturnsIndependentInstances(t *testing.T) {
	b := tournament.NewBuilder(stubResolver{"BLOCK_BREAK": newStubObjective("BLOCK_BREAK")})
	def := fixedDef(base.Add(-time.Second), base.Add(time.Hour))
	def.DisabledWorlds = []string{"nether"}

	first, err := b.Build(def)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	second, err := b.Build(def)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct instances")
	}
	if !first.StartTime().Equal(second.StartTime()) || first.Identifier() != second.Identifier() {
		t.Fatal("expected structurally equal instances")
	}

	first.Initialize(base, false)
	if second.Status() != domain.StatusWaiting {
		t.Fatal("expected instances not to share state")
	}

	def.DisabledWorlds[0] = "world"
	if first.Definition().DisabledWorlds[0] != "nether" {
		t.Fatal("expected built tournament to own a copy of its definition")
	}
}

func TestBuildUsesTimezone(t *testing.T) {
	def := fixedDef(base, base.Add(time.Hour))
	def.Timezone = "America/New_York"
	def.Start = "2024-06-01 08:00"

	tour, err := tournament.NewBuilder(stubResolver{"BLOCK_BREAK": newStubObjective("BLOCK_BREAK")}).Build(def)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !tour.StartTime().Equal(base) {
		t.Fatalf("expected 08:00 New York to be 12:00 UTC, got %v", tour.StartTime().UTC())
	}
}

func TestParseDefinition(t *testing.T) {
	data := []byte(`
enabled: true
objective: BLOCK_BREAK
timeline: FIXED
start: "2024-06-01 00:00:00"
end: "2024-06-08 00:00:00"
timezone: Europe/London
disabled_worlds: [world_nether]
automatic_participation: true
participation_cost: 250.5
leaderboard_refresh: 60
participation_actions:
  - "[MESSAGE] Welcome {PLAYER}"
rewards:
  1:
    - "[CONSOLE] give {PLAYER} diamond 5"
  2:
    - "[CONSOLE] give {PLAYER} gold_ingot 5"
block_whitelist:
  - STONE
  - COBBLESTONE
exclude_placed_blocks: true
`)

	def, err := tournament.ParseDefinition("weekly_mining", data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.Identifier != "weekly_mining" || !def.Enabled || def.Objective != "BLOCK_BREAK" {
		t.Fatalf("unexpected definition %+v", def)
	}
	if def.ParticipationCost != 250.5 || def.LeaderboardRefresh != 60 {
		t.Fatalf("unexpected numbers %v %v", def.ParticipationCost, def.LeaderboardRefresh)
	}
	if len(def.Rewards[1]) != 1 || len(def.Rewards[2]) != 1 {
		t.Fatalf("unexpected rewards %v", def.Rewards)
	}
	if !def.Has("block_whitelist") || !def.Bool("exclude_placed_blocks") {
		t.Fatalf("expected objective options to be kept, got %v", def.Options)
	}
	if list := def.StringList("block_whitelist"); len(list) != 2 || list[1] != "COBBLESTONE" {
		t.Fatalf("unexpected whitelist %v", list)
	}
	if def.Has("objective") {
		t.Fatal("expected known keys to stay out of options")
	}
}

func TestParseDefinitionDuration(t *testing.T) {
	def, err := tournament.ParseDefinition("blitz", []byte("timeline: RANDOM\nduration: 15m\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.Duration != 15*time.Minute {
		t.Fatalf("expected 15m, got %v", def.Duration)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"b_crafting.yml": "enabled: true\nobjective: ITEM_CRAFT\n",
		"a_mining.yaml":  "enabled: true\nobjective: BLOCK_BREAK\n",
		"broken.yml":     "enabled: [true\n",
		"notes.txt":      "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	defs, err := tournament.LoadDir(dir)
	if err == nil {
		t.Fatal("expected error for broken file")
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Identifier != "a_mining" || defs[1].Identifier != "b_crafting" {
		t.Fatalf("expected sorted identifiers, got %s %s", defs[0].Identifier, defs[1].Identifier)
	}
}
