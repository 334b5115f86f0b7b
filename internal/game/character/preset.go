package character

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Preset defines a reusable enemy archetype loaded from YAML.
type Preset struct {
	ID         string  `yaml:"id"`
	Name       string  `yaml:"name"`
	Class      string  `yaml:"class"`
	MaxHP      int     `yaml:"max_hp"`
	MinDmg     int     `yaml:"min_dmg"`
	MaxDmg     int     `yaml:"max_dmg"`
	MinDefense int     `yaml:"min_defense"`
	MaxDefense int     `yaml:"max_defense"`
	HitChance  int     `yaml:"hit_chance"`
	CritChance int     `yaml:"crit_chance"`
	CritMult   float64 `yaml:"crit_mult"`
	GoldReward int     `yaml:"gold_reward"`
	// Boss presets never appear in random spawns.
	Boss bool `yaml:"boss"`
}

// Validate checks that the preset satisfies the combatant invariants.
//
// Postcondition: Returns nil iff every range and percentage is well formed.
func (p *Preset) Validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("preset: id must not be empty")
	case p.Name == "":
		return fmt.Errorf("preset %q: name must not be empty", p.ID)
	case p.MaxHP < 1:
		return fmt.Errorf("preset %q: max_hp must be >= 1", p.ID)
	case p.MinDmg < 0 || p.MaxDmg < p.MinDmg:
		return fmt.Errorf("preset %q: damage range %d-%d is invalid", p.ID, p.MinDmg, p.MaxDmg)
	case p.MinDefense < 0 || p.MaxDefense < p.MinDefense:
		return fmt.Errorf("preset %q: defense range %d-%d is invalid", p.ID, p.MinDefense, p.MaxDefense)
	case p.HitChance < 0 || p.HitChance > 100:
		return fmt.Errorf("preset %q: hit_chance must be in [0,100]", p.ID)
	case p.CritChance < 0 || p.CritChance > 100:
		return fmt.Errorf("preset %q: crit_chance must be in [0,100]", p.ID)
	case p.CritMult != 0 && p.CritMult < 1:
		return fmt.Errorf("preset %q: crit_mult must be >= 1.0", p.ID)
	case p.GoldReward < 0:
		return fmt.Errorf("preset %q: gold_reward must be >= 0", p.ID)
	}
	return nil
}

type presetFile struct {
	Enemies []*Preset `yaml:"enemies"`
}

// LoadPresetsFromBytes parses an enemy catalogue. Order is preserved.
//
// Postcondition: Returns validated presets with unique IDs, or an error.
func LoadPresetsFromBytes(data []byte) ([]*Preset, error) {
	var f presetFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing enemy presets: %w", err)
	}
	if len(f.Enemies) == 0 {
		return nil, fmt.Errorf("enemy presets: at least one enemy is required")
	}
	seen := make(map[string]bool, len(f.Enemies))
	for _, p := range f.Enemies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("preset %q: duplicate id", p.ID)
		}
		seen[p.ID] = true
	}
	return f.Enemies, nil
}

// LoadPresets reads an enemy catalogue from path.
func LoadPresets(path string) ([]*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	presets, err := LoadPresetsFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading %q: %w", path, err)
	}
	return presets, nil
}
