package combat

import (
	"fmt"

	"github.com/cory-johannsen/dicecrawl/internal/game/stats"
	"github.com/cory-johannsen/dicecrawl/internal/game/status"
)

// BodyPart is the zone a targeted attack aims at.
type BodyPart string

const (
	Torso BodyPart = "torso"
	Head  BodyPart = "head"
	Legs  BodyPart = "legs"
	ArmR  BodyPart = "arm_r"
	ArmL  BodyPart = "arm_l"
)

// BodyParts lists every targetable zone in display order.
var BodyParts = []BodyPart{Torso, Head, Legs, ArmR, ArmL}

// Policy is the fixed mechanical effect of aiming at one zone.
type Policy struct {
	Part             BodyPart
	Label            string
	HitModifier      int
	DamageMultiplier float64
	FlatModifier     int
}

var policies = map[BodyPart]Policy{
	Torso: {Part: Torso, Label: "Torso", HitModifier: 0, DamageMultiplier: 1.0},
	Head:  {Part: Head, Label: "Head", HitModifier: -20, DamageMultiplier: 1.5},
	Legs:  {Part: Legs, Label: "Legs", DamageMultiplier: 1.0, FlatModifier: -1},
	ArmR:  {Part: ArmR, Label: "Sword Arm", DamageMultiplier: 1.0, FlatModifier: -1},
	ArmL:  {Part: ArmL, Label: "Shield Arm", DamageMultiplier: 1.0, FlatModifier: -1},
}

// Debuff status names.
const (
	WoundedLeg  = "Wounded Leg"
	WeakenedArm = "Weakened Arm"
	BrokenGuard = "Broken Guard"
)

// ParseBodyPart maps user input to a BodyPart.
func ParseBodyPart(s string) (BodyPart, error) {
	p := BodyPart(s)
	if _, ok := policies[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownBodyPart, s)
	}
	return p, nil
}

// PolicyFor returns the policy of part; unknown parts resolve as torso.
func PolicyFor(part BodyPart) Policy {
	if p, ok := policies[part]; ok {
		return p
	}
	return policies[Torso]
}

// Targeting is the resolved modifier set for one targeted attack.
type Targeting struct {
	Policy
	// Debuff is the status applied to the defender on a hit, if any.
	Debuff      *status.Effect
	DebuffRoll  int
	DebuffSides int
}

// ResolveTarget computes the modifiers of an attack on part against a defender
// with the given effective stats. Legs draw a d10 and arms a d6 before the
// attack's own d100.
//
// Precondition: part must be a known BodyPart; src must be non-nil.
// Postcondition: Debuff is nil whenever applying it would push a stat below zero.
func ResolveTarget(part BodyPart, defender stats.Effective, src Source) (Targeting, error) {
	pol, ok := policies[part]
	if !ok {
		return Targeting{}, fmt.Errorf("%w: %q", ErrUnknownBodyPart, part)
	}
	t := Targeting{Policy: pol}

	switch part {
	case Legs:
		t.DebuffSides = 10
		t.DebuffRoll = src.Intn(10) + 1
		e := status.New(WoundedLeg, "slow", 0, status.Infinite,
			status.Modifier{Stat: status.HitChance, Value: -t.DebuffRoll})
		t.Debuff = &e
	case ArmR:
		t.DebuffSides = 6
		t.DebuffRoll = src.Intn(6) + 1
		if stat, ok := ChooseArmStat(t.DebuffRoll, status.MinDmg, status.MaxDmg, defender.MinDmg, defender.MaxDmg); ok {
			e := status.New(WeakenedArm, "weak", 0, status.Infinite, status.Modifier{Stat: stat, Value: -1})
			t.Debuff = &e
		}
	case ArmL:
		t.DebuffSides = 6
		t.DebuffRoll = src.Intn(6) + 1
		if stat, ok := ChooseArmStat(t.DebuffRoll, status.MinDefense, status.MaxDefense, defender.MinDefense, defender.MaxDefense); ok {
			e := status.New(BrokenGuard, "broken", 0, status.Infinite, status.Modifier{Stat: stat, Value: -1})
			t.Debuff = &e
		}
	}
	return t, nil
}

// ChooseArmStat picks which end of a min/max range an arm hit weakens.
// A roll of 1-3 prefers the min stat and 4-6 the max stat. The preference
// switches when the preferred value is already zero, max falls back to min
// when lowering it would drop below the current min, and nothing is chosen
// when the final pick is still zero.
func ChooseArmStat(roll int, minStat, maxStat status.Stat, curMin, curMax int) (status.Stat, bool) {
	preferMin := roll <= 3
	if preferMin && curMin <= 0 {
		preferMin = false
	} else if !preferMin && curMax <= 0 {
		preferMin = true
	}
	if !preferMin && curMax-1 < curMin {
		preferMin = true
	}
	if preferMin {
		return minStat, curMin > 0
	}
	return maxStat, curMax > 0
}
