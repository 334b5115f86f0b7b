package character

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Hero defaults for a fresh run.
const (
	HeroMaxHP      = 40
	HeroMinDmg     = 3
	HeroMaxDmg     = 7
	HeroMinDefense = 1
	HeroMaxDefense = 3
	HeroHitChance  = 65
	HeroCritChance = 10
	HeroCritMult   = 2.0
)

// Enemy defaults applied when a preset omits them.
const (
	DefaultEnemyCritChance = 5
	DefaultEnemyCritMult   = 1.5
)

// NewHero builds a full-health hero carrying one healing potion.
//
// Precondition: name must be non-empty.
// Postcondition: Returns a Character with HP == MaxHP, or an error.
func NewHero(name, class string) (*Character, error) {
	if name == "" {
		return nil, errors.New("hero name must not be empty")
	}
	return &Character{
		ID:         uuid.NewString(),
		Name:       name,
		Class:      class,
		HP:         HeroMaxHP,
		MaxHP:      HeroMaxHP,
		MinDmg:     HeroMinDmg,
		MaxDmg:     HeroMaxDmg,
		MinDefense: HeroMinDefense,
		MaxDefense: HeroMaxDefense,
		HitChance:  HeroHitChance,
		CritChance: HeroCritChance,
		CritMult:   HeroCritMult,
		Inventory: []Item{
			{ID: "potion-1", Name: "Healing Potion", Kind: Consumable, Rarity: "common"},
		},
	}, nil
}

// Spawn creates a fresh enemy from p at full health with no statuses.
//
// Precondition: p must have passed Validate.
func (p *Preset) Spawn() *Character {
	crit := p.CritChance
	if crit == 0 {
		crit = DefaultEnemyCritChance
	}
	mult := p.CritMult
	if mult == 0 {
		mult = DefaultEnemyCritMult
	}
	return &Character{
		ID:         fmt.Sprintf("%s-%s", p.ID, uuid.NewString()[:8]),
		Name:       p.Name,
		Class:      p.Class,
		HP:         p.MaxHP,
		MaxHP:      p.MaxHP,
		MinDmg:     p.MinDmg,
		MaxDmg:     p.MaxDmg,
		MinDefense: p.MinDefense,
		MaxDefense: p.MaxDefense,
		HitChance:  p.HitChance,
		CritChance: crit,
		CritMult:   mult,
		Gold:       p.GoldReward,
	}
}
