package tournament

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Definition is the parsed content of one tournament file. Keys not
// listed here are kept in Options for the bound objective to read.
type Definition struct {
	Identifier              string           `yaml:"-"`
	Enabled                 bool             `yaml:"enabled"`
	Objective               string           `yaml:"objective"`
	Timeline                string           `yaml:"timeline"`
	Start                   string           `yaml:"start"`
	End                     string           `yaml:"end"`
	Timezone                string           `yaml:"timezone"`
	Duration                time.Duration    `yaml:"duration"`
	DisabledWorlds          []string         `yaml:"disabled_worlds"`
	DisabledGamemodes       []string         `yaml:"disabled_gamemodes"`
	AutomaticParticipation  bool             `yaml:"automatic_participation"`
	ParticipationCost       float64          `yaml:"participation_cost"`
	ParticipationPermission string           `yaml:"participation_permission"`
	LeaderboardRefresh      int              `yaml:"leaderboard_refresh"`
	ParticipationActions    []string         `yaml:"participation_actions"`
	StartActions            []string         `yaml:"start_actions"`
	EndActions              []string         `yaml:"end_actions"`
	Rewards                 map[int][]string `yaml:"rewards"`
	Options                 map[string]any   `yaml:",inline"`
}

// ParseDefinition decodes a tournament file
func ParseDefinition(identifier string, data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing tournament %s: %w", identifier, err)
	}
	def.Identifier = identifier
	return &def, nil
}

// LoadDir reads every .yml/.yaml file in dir. Files that fail to parse
// are skipped and reported through the joined error; the remaining
// definitions are still returned.
func LoadDir(dir string) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading tournaments directory: %w", err)
	}

	var defs []*Definition
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yml" && ext != ".yaml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, fmt.Errorf("reading %s: %w", name, err))
			continue
		}
		def, err := ParseDefinition(strings.TrimSuffix(name, filepath.Ext(name)), data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, def)
	}

	slices.SortFunc(defs, func(a, b *Definition) int {
		return strings.Compare(a.Identifier, b.Identifier)
	})
	return defs, errors.Join(errs...)
}

// Clone returns a deep copy so built tournaments never share slices or
// maps with the registry's stored definition.
func (d *Definition) Clone() *Definition {
	c := *d
	c.DisabledWorlds = slices.Clone(d.DisabledWorlds)
	c.DisabledGamemodes = slices.Clone(d.DisabledGamemodes)
	c.ParticipationActions = slices.Clone(d.ParticipationActions)
	c.StartActions = slices.Clone(d.StartActions)
	c.EndActions = slices.Clone(d.EndActions)
	if d.Rewards != nil {
		c.Rewards = make(map[int][]string, len(d.Rewards))
		for pos, actions := range d.Rewards {
			c.Rewards[pos] = slices.Clone(actions)
		}
	}
	c.Options = maps.Clone(d.Options)
	return &c
}

// Has reports whether an objective option is present
func (d *Definition) Has(key string) bool {
	_, ok := d.Options[key]
	return ok
}

// Bool returns an objective option as a bool
func (d *Definition) Bool(key string) bool {
	v, _ := d.Options[key].(bool)
	return v
}

// StringList returns an objective option as a list of strings. A single
// scalar value is treated as a one-element list.
func (d *Definition) StringList(key string) []string {
	switch v := d.Options[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case []string:
		return slices.Clone(v)
	case string:
		return []string{v}
	default:
		return nil
	}
}
