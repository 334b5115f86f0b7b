package combat

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Source is the subset of dice.Source used by the resolver.
type Source interface {
	Intn(n int) int
}

// MinHitChance is the floor applied to every effective hit chance.
const MinHitChance = 5

// HitRoll is the outcome of the single d100 draw that decides hit and crit.
type HitRoll struct {
	Roll   int // 1..100
	Target int // effective hit chance after floor
	Hit    bool
	// Crit is true only for a hit whose roll is also within CritChance.
	Crit       bool
	CritChance int
}

// HitTarget returns the effective hit chance used for comparison.
//
// Postcondition: result >= MinHitChance.
func HitTarget(effectiveHit, hitModifier int) int {
	return max(MinHitChance, effectiveHit+hitModifier)
}

// RollToHit draws one d100 and judges both hit and crit against it.
//
// Precondition: src must be non-nil.
// Postcondition: Hit iff Roll <= HitTarget(effectiveHit, hitModifier);
// Crit iff Hit and Roll <= critChance.
func RollToHit(src Source, effectiveHit, hitModifier, critChance int) HitRoll {
	roll := src.Intn(100) + 1
	target := HitTarget(effectiveHit, hitModifier)
	hit := roll <= target
	return HitRoll{
		Roll:       roll,
		Target:     target,
		Hit:        hit,
		Crit:       hit && roll <= critChance,
		CritChance: critChance,
	}
}

// RollRange draws a uniform integer in [lo, hi]. A range with hi < lo yields lo.
func RollRange(src Source, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + src.Intn(hi-lo+1)
}

// Damage records every intermediate of the damage formula.
type Damage struct {
	Base     int
	ZoneMult float64
	Zoned    int // floor(Base * ZoneMult)
	Crit     bool
	CritMult float64
	Critted  int // floor(Zoned * CritMult) when Crit, else Zoned
	Flat     int
	Raw      int // Critted + Flat
	Defense  int
	Final    int // max(0, Raw - Defense)
}

// ComputeDamage applies the zone multiplier, then the crit multiplier, then the
// flat modifier, and finally subtracts defense.
//
// Postcondition: Final == max(0, floor(floor(base*zoneMult)*critMult) + flat - defense)
// with the crit factor omitted when crit is false.
func ComputeDamage(base int, zoneMult float64, crit bool, critMult float64, flat, defense int) Damage {
	d := Damage{Base: base, ZoneMult: zoneMult, Crit: crit, CritMult: critMult, Flat: flat, Defense: defense}
	d.Zoned = int(math.Floor(float64(base) * zoneMult))
	d.Critted = d.Zoned
	if crit {
		d.Critted = int(math.Floor(float64(d.Zoned) * critMult))
	}
	d.Raw = d.Critted + flat
	d.Final = max(0, d.Raw-defense)
	return d
}

// Trace renders the step-by-step math explanation shown in diagnostics.
func (d Damage) Trace(label string) string {
	var b strings.Builder
	if label != "" {
		fmt.Fprintf(&b, "[%s] ", label)
	}
	fmt.Fprintf(&b, "Base: %d", d.Base)
	if d.ZoneMult != 1 {
		fmt.Fprintf(&b, " x %s(Zone) = %d", formatMult(d.ZoneMult), d.Zoned)
	}
	if d.Crit {
		fmt.Fprintf(&b, "\nCritical: %d x %s = %d", d.Zoned, formatMult(d.CritMult), d.Critted)
	}
	if d.Flat != 0 {
		fmt.Fprintf(&b, " %+d(Flat) = %d", d.Flat, d.Raw)
	}
	fmt.Fprintf(&b, "\nDefense: -%d\nTOTAL: %d", d.Defense, d.Final)
	return b.String()
}

func formatMult(m float64) string {
	return strconv.FormatFloat(m, 'f', -1, 64)
}

var breakdownPattern = regexp.MustCompile(`Damage: (-?\d+) - Def: (\d+) = (\d+)`)

// ParseBreakdown reconstructs the final damage from a hit breakdown string.
//
// Postcondition: returns an error if the string carries no damage section or
// if the recorded final value disagrees with max(0, raw - defense).
func ParseBreakdown(s string) (int, error) {
	m := breakdownPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("breakdown %q has no damage section", s)
	}
	raw, _ := strconv.Atoi(m[1])
	def, _ := strconv.Atoi(m[2])
	final, _ := strconv.Atoi(m[3])
	if want := max(0, raw-def); want != final {
		return 0, fmt.Errorf("breakdown %q: final %d does not match %d", s, final, want)
	}
	return final, nil
}
