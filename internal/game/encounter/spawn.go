package encounter

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/dicecrawl/internal/game/character"
	"github.com/cory-johannsen/dicecrawl/internal/game/dice"
)

// weightTolerance bounds how far a table's sum may stray from 1.0.
const weightTolerance = 1e-6

// Weight is the spawn probability of one preset.
type Weight struct {
	Preset string  `yaml:"preset"`
	Weight float64 `yaml:"weight"`
}

// SpawnTable is an immutable probability table over preset IDs.
type SpawnTable struct {
	weights []Weight
	index   map[string]float64
}

// NewSpawnTable validates weights and builds a table.
//
// Postcondition: returns an error if any weight is negative, an ID repeats,
// or the weights do not sum to 1.0.
func NewSpawnTable(weights []Weight) (SpawnTable, error) {
	t := SpawnTable{
		weights: append([]Weight(nil), weights...),
		index:   make(map[string]float64, len(weights)),
	}
	sum := 0.0
	for _, w := range weights {
		if w.Preset == "" {
			return SpawnTable{}, fmt.Errorf("spawn table: preset id must not be empty")
		}
		if w.Weight < 0 {
			return SpawnTable{}, fmt.Errorf("spawn table: preset %q has negative weight", w.Preset)
		}
		if _, dup := t.index[w.Preset]; dup {
			return SpawnTable{}, fmt.Errorf("spawn table: preset %q listed twice", w.Preset)
		}
		t.index[w.Preset] = w.Weight
		sum += w.Weight
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return SpawnTable{}, fmt.Errorf("spawn table: weights sum to %.6f, want 1.0", sum)
	}
	return t, nil
}

// DefaultSpawnTable is the standard distribution over the bundled enemies.
func DefaultSpawnTable() SpawnTable {
	t, err := NewSpawnTable([]Weight{
		{Preset: "slime", Weight: 0.35},
		{Preset: "goblin", Weight: 0.25},
		{Preset: "skeleton", Weight: 0.20},
		{Preset: "mage", Weight: 0.15},
		{Preset: "dragon", Weight: 0.05},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Weights returns a copy of the table entries in order.
func (t SpawnTable) Weights() []Weight {
	return append([]Weight(nil), t.weights...)
}

// Select walks the cumulative distribution and returns the first preset whose
// cumulative weight exceeds u. Table entries are walked in table order, then
// pool presets absent from the table, each with a 1/len(pool) share.
//
// Precondition: 0 <= u < 1.
// Postcondition: returns nil only for an empty pool; falls back to pool[0].
func (t SpawnTable) Select(pool []*character.Preset, u float64) *character.Preset {
	if len(pool) == 0 {
		return nil
	}
	byID := make(map[string]*character.Preset, len(pool))
	for _, p := range pool {
		byID[p.ID] = p
	}

	cumulative := 0.0
	for _, w := range t.weights {
		p, ok := byID[w.Preset]
		if !ok {
			continue
		}
		cumulative += w.Weight
		if u < cumulative {
			return p
		}
	}
	fallback := 1.0 / float64(len(pool))
	for _, p := range pool {
		if _, listed := t.index[p.ID]; listed {
			continue
		}
		cumulative += fallback
		if u < cumulative {
			return p
		}
	}
	return pool[0]
}

// Draw selects a preset with one uniform draw from src.
func (t SpawnTable) Draw(pool []*character.Preset, src dice.Source) *character.Preset {
	return t.Select(pool, dice.Unit(src))
}

type spawnFile struct {
	Spawns []Weight `yaml:"spawns"`
}

// LoadSpawnTableFromBytes parses a spawn table document.
func LoadSpawnTableFromBytes(data []byte) (SpawnTable, error) {
	var f spawnFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return SpawnTable{}, fmt.Errorf("parsing spawn table: %w", err)
	}
	return NewSpawnTable(f.Spawns)
}

// LoadSpawnTable reads a spawn table from path.
func LoadSpawnTable(path string) (SpawnTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SpawnTable{}, fmt.Errorf("reading %q: %w", path, err)
	}
	t, err := LoadSpawnTableFromBytes(data)
	if err != nil {
		return SpawnTable{}, fmt.Errorf("loading %q: %w", path, err)
	}
	return t, nil
}
