// Package stats derives effective combat statistics from a combatant's base
// values and the modifiers of its active status effects.
package stats

import (
	"github.com/cory-johannsen/dicecrawl/internal/game/character"
	"github.com/cory-johannsen/dicecrawl/internal/game/status"
)

// Effective holds the statistics used by the current roll.
//
// Invariant: every field is >= 0.
type Effective struct {
	HitChance  int
	MinDmg     int
	MaxDmg     int
	MinDefense int
	MaxDefense int
}

// Base extracts the unmodified statistics of c.
func Base(c *character.Character) Effective {
	return Effective{
		HitChance:  c.HitChance,
		MinDmg:     c.MinDmg,
		MaxDmg:     c.MaxDmg,
		MinDefense: c.MinDefense,
		MaxDefense: c.MaxDefense,
	}
}

// Resolve folds every modifier of effects into base by addition, then clamps
// each value at zero. Resolve is pure.
//
// Postcondition: with no effects the result equals base clamped at zero.
func Resolve(base Effective, effects []status.Effect) Effective {
	out := base
	for _, e := range effects {
		for _, m := range e.Modifiers {
			switch m.Stat {
			case status.HitChance:
				out.HitChance += m.Value
			case status.MinDmg:
				out.MinDmg += m.Value
			case status.MaxDmg:
				out.MaxDmg += m.Value
			case status.MinDefense:
				out.MinDefense += m.Value
			case status.MaxDefense:
				out.MaxDefense += m.Value
			}
		}
	}
	out.HitChance = max(0, out.HitChance)
	out.MinDmg = max(0, out.MinDmg)
	out.MaxDmg = max(0, out.MaxDmg)
	out.MinDefense = max(0, out.MinDefense)
	out.MaxDefense = max(0, out.MaxDefense)
	return out
}

// Of resolves the effective statistics of c under its current statuses.
func Of(c *character.Character) Effective {
	return Resolve(Base(c), c.Statuses)
}

// Get returns the value of one stat.
func (e Effective) Get(s status.Stat) int {
	switch s {
	case status.HitChance:
		return e.HitChance
	case status.MinDmg:
		return e.MinDmg
	case status.MaxDmg:
		return e.MaxDmg
	case status.MinDefense:
		return e.MinDefense
	case status.MaxDefense:
		return e.MaxDefense
	}
	return 0
}
