// Package character defines the combatant model shared by the hero and enemies.
package character

import (
	"strings"

	"github.com/cory-johannsen/dicecrawl/internal/game/status"
)

// Side identifies which half of the encounter a combatant belongs to.
type Side string

const (
	Hero  Side = "hero"
	Enemy Side = "enemy"
)

// ItemKind classifies inventory items.
type ItemKind string

const (
	Consumable ItemKind = "consumable"
	Equipment  ItemKind = "equipment"
)

// Item is one inventory entry.
type Item struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Kind   ItemKind `json:"kind"`
	Rarity string   `json:"rarity,omitempty"`
}

// IsPotion reports whether the item heals by rolling instead of a flat amount.
func (i Item) IsPotion() bool {
	return strings.Contains(strings.ToLower(i.Name), "potion")
}

// Character is one combatant's persistent state.
//
// Invariant: 0 <= HP <= MaxHP; MinDmg <= MaxDmg; MinDefense <= MaxDefense at creation.
type Character struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Class      string          `json:"class"`
	HP         int             `json:"hp"`
	MaxHP      int             `json:"maxHp"`
	MinDmg     int             `json:"minDmg"`
	MaxDmg     int             `json:"maxDmg"`
	MinDefense int             `json:"minDefense"`
	MaxDefense int             `json:"maxDefense"`
	HitChance  int             `json:"hitChance"`
	CritChance int             `json:"critChance"`
	CritMult   float64         `json:"critMult"`
	Statuses   []status.Effect `json:"statuses"`
	Gold       int             `json:"gold"`
	Inventory  []Item          `json:"inventory,omitempty"`
}

// IsDead reports whether the combatant has no hit points left.
func (c *Character) IsDead() bool { return c.HP <= 0 }

// Clone returns a deep copy so snapshots never alias live state.
func (c *Character) Clone() *Character {
	if c == nil {
		return nil
	}
	out := *c
	out.Statuses = status.Clone(c.Statuses)
	if c.Inventory != nil {
		out.Inventory = append([]Item(nil), c.Inventory...)
	}
	return &out
}

// FindItem returns the index of the item with the given ID or name, or -1.
func (c *Character) FindItem(ref string) int {
	for i, it := range c.Inventory {
		if it.ID == ref || strings.EqualFold(it.Name, ref) {
			return i
		}
	}
	return -1
}
