// Package status implements the status-effect lifecycle: applying effects to a
// combatant and ticking them once per resolved action.
package status

import (
	"fmt"

	"github.com/google/uuid"
)

// Infinite is the duration sentinel for effects that never expire.
const Infinite = -1

// Stat names a derived combat statistic that a Modifier can adjust.
type Stat string

const (
	HitChance  Stat = "hitChance"
	MinDmg     Stat = "minDmg"
	MaxDmg     Stat = "maxDmg"
	MinDefense Stat = "minDefense"
	MaxDefense Stat = "maxDefense"
)

// Modifier is an additive adjustment to one Stat.
type Modifier struct {
	Stat  Stat `json:"stat" yaml:"stat"`
	Value int  `json:"value" yaml:"value"`
}

// Effect is one status applied to a combatant.
//
// Invariant: Duration > 0 or Duration == Infinite while the effect is held.
type Effect struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	DamagePerTurn int        `json:"damagePerTurn"`
	Duration      int        `json:"duration"`
	Icon          string     `json:"icon,omitempty"`
	Modifiers     []Modifier `json:"modifiers,omitempty"`
}

// IsInfinite reports whether the effect never expires.
func (e Effect) IsInfinite() bool { return e.Duration == Infinite }

// New builds an Effect with a fresh ID.
//
// Precondition: duration > 0 or duration == Infinite; damagePerTurn >= 0.
func New(name, icon string, damagePerTurn, duration int, mods ...Modifier) Effect {
	return Effect{
		ID:            uuid.NewString(),
		Name:          name,
		DamagePerTurn: damagePerTurn,
		Duration:      duration,
		Icon:          icon,
		Modifiers:     mods,
	}
}

// Apply returns a new list with e appended. Effects stack by appending; their
// modifiers fold additively when stats are resolved.
//
// Postcondition: the input slice is not modified.
func Apply(effects []Effect, e Effect) []Effect {
	out := make([]Effect, 0, len(effects)+1)
	out = append(out, effects...)
	return append(out, e)
}

// Clone returns a deep copy of effects.
func Clone(effects []Effect) []Effect {
	if effects == nil {
		return nil
	}
	out := make([]Effect, len(effects))
	for i, e := range effects {
		out[i] = e
		if e.Modifiers != nil {
			out[i].Modifiers = append([]Modifier(nil), e.Modifiers...)
		}
	}
	return out
}

// TickResult is the outcome of advancing a status list by one turn.
type TickResult struct {
	Statuses    []Effect
	TotalDamage int
	Log         []string
}

// Tick advances every effect by one turn without touching the input.
//
// Postcondition: TotalDamage is the sum of DamagePerTurn over all input effects.
// Infinite effects are kept unchanged, effects with Duration > 1 are kept with
// Duration-1 and all others are dropped with a "has faded" log fragment.
func Tick(effects []Effect) TickResult {
	res := TickResult{Statuses: make([]Effect, 0, len(effects))}
	for _, e := range effects {
		if e.DamagePerTurn > 0 {
			res.TotalDamage += e.DamagePerTurn
			res.Log = append(res.Log, fmt.Sprintf("%s deals %d damage", e.Name, e.DamagePerTurn))
		}
		switch {
		case e.IsInfinite():
			res.Statuses = append(res.Statuses, e)
		case e.Duration > 1:
			e.Duration--
			res.Statuses = append(res.Statuses, e)
		default:
			res.Log = append(res.Log, fmt.Sprintf("%s has faded", e.Name))
		}
	}
	return res
}
