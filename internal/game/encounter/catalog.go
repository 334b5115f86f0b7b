package encounter

import (
	"fmt"

	"github.com/cory-johannsen/dicecrawl/internal/game/character"
	"github.com/cory-johannsen/dicecrawl/internal/game/dice"
)

// Catalog is the set of enemy presets together with their spawn weights.
type Catalog struct {
	presets []*character.Preset
	byID    map[string]*character.Preset
	spawns  SpawnTable
}

// NewCatalog indexes presets. Order is preserved for random selection.
//
// Precondition: presets must have unique IDs.
func NewCatalog(presets []*character.Preset, spawns SpawnTable) *Catalog {
	c := &Catalog{presets: presets, byID: make(map[string]*character.Preset, len(presets)), spawns: spawns}
	for _, p := range presets {
		c.byID[p.ID] = p
	}
	return c
}

// Get returns the preset with id.
func (c *Catalog) Get(id string) (*character.Preset, error) {
	p, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown enemy %q", id)
	}
	return p, nil
}

// Presets returns every preset in catalogue order.
func (c *Catalog) Presets() []*character.Preset { return c.presets }

// RandomPool returns the presets eligible for random spawns; bosses are excluded.
func (c *Catalog) RandomPool() []*character.Preset {
	pool := make([]*character.Preset, 0, len(c.presets))
	for _, p := range c.presets {
		if !p.Boss {
			pool = append(pool, p)
		}
	}
	return pool
}

// Boss returns the first boss preset.
func (c *Catalog) Boss() (*character.Preset, error) {
	for _, p := range c.presets {
		if p.Boss {
			return p, nil
		}
	}
	return nil, fmt.Errorf("catalogue has no boss")
}

// Random draws a non-boss preset according to the spawn table.
func (c *Catalog) Random(src dice.Source) (*character.Preset, error) {
	p := c.spawns.Draw(c.RandomPool(), src)
	if p == nil {
		return nil, fmt.Errorf("catalogue has no spawnable enemies")
	}
	return p, nil
}
