// Package dice provides the randomness abstraction, expression rolling and the
// presentation dice shown during a combat reveal.
package dice

import (
	"fmt"
	"strconv"
)

// RollResult holds the full audit trail for a single dice roll evaluation.
//
// Postcondition: Total() == sum(Dice) + Modifier.
type RollResult struct {
	Expression string // original expression string, e.g. "1d50+9"
	Dice       []int  // individual die results before modifier
	Modifier   int    // flat modifier (may be negative)
}

// Total returns the sum of all die results plus the modifier.
func (r RollResult) Total() int {
	total := r.Modifier
	for _, d := range r.Dice {
		total += d
	}
	return total
}

// String returns a human-readable audit string in the format:
//
//	"1d8+2 → [5] +2 = 7"
//
// Precondition: r.Expression is non-empty.
func (r RollResult) String() string {
	if r.Expression == "" {
		panic("dice: RollResult.String() precondition violated: Expression must be non-empty")
	}
	return fmt.Sprintf("%s → %v %+d = %d", r.Expression, r.Dice, r.Modifier, r.Total())
}

// Kind tags what a presentation die stands for.
type Kind string

const (
	KindHit     Kind = "hit"
	KindDamage  Kind = "damage"
	KindDefense Kind = "defense"
	KindDebuff  Kind = "debuff"
	KindTarget  Kind = "target"
	KindFlee    Kind = "flee"
)

// Comparison describes how a die is judged against its target number.
type Comparison string

const (
	Under Comparison = "under" // success when value <= target
	Over  Comparison = "over"  // success when value >= target
)

// Die is one presentation die of a resolved action.
// Values are final when the die is created; a reveal only controls when they are shown.
type Die struct {
	ID            string
	Kind          Kind
	Label         string
	Sides         int
	Value         int
	Target        int
	Compare       Comparison
	Crit          bool
	CritThreshold int
	// Ignored marks a die that was rolled but has no effect (e.g. damage on a miss).
	Ignored bool
}

// Succeeded reports whether the die met its target. Dice without a target always succeed.
func (d Die) Succeeded() bool {
	if d.Target == 0 {
		return true
	}
	if d.Compare == Over {
		return d.Value >= d.Target
	}
	return d.Value <= d.Target
}

// Face returns the value as displayed on the die.
func (d Die) Face() string {
	return strconv.Itoa(d.Value)
}

func itoa(n int) string { return strconv.Itoa(n) }
