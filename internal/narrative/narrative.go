// Package narrative turns a resolved combat action into display text.
//
// Narrators are collaborators: a failing narrator never affects the mechanical
// outcome of an action, it only changes the text shown for it.
package narrative

import "context"

// Action identifies the kind of action being narrated.
type Action string

const (
	ActionAttack      Action = "attack"
	ActionEnemyAttack Action = "enemy_attack"
	ActionFlee        Action = "flee"
	ActionItem        Action = "item"
)

// Category selects the tone of the narration.
type Category string

const (
	CriticalHit Category = "critical_hit"
	Hit         Category = "hit"
	Blocked     Category = "blocked"
	Miss        Category = "miss"
	Kill        Category = "kill"
	FleeSuccess Category = "flee_success"
	FleeFail    Category = "flee_fail"
	ItemUse     Category = "item"
)

// Combatant is the narrator's read-only view of one side.
type Combatant struct {
	Name  string `json:"name"`
	Class string `json:"class"`
	HP    int    `json:"hp"`
	MaxHP int    `json:"maxHp"`
}

// Request is everything a narrator may use to describe an action.
type Request struct {
	Action    Action    `json:"action"`
	Category  Category  `json:"category"`
	Attacker  Combatant `json:"attacker"`
	Defender  Combatant `json:"defender"`
	Context   string    `json:"context"`
	Roll      int       `json:"roll"`
	Breakdown string    `json:"breakdown"`
	Hit       bool      `json:"hit"`
	Crit      bool      `json:"crit"`
	Damage    int       `json:"damage"`
	Defense   int       `json:"defense"`
}

// Narrator produces display text for a resolved action.
type Narrator interface {
	Narrate(ctx context.Context, req Request) (string, error)
}

// NarratorFunc adapts a function to Narrator.
type NarratorFunc func(ctx context.Context, req Request) (string, error)

// Narrate calls f.
func (f NarratorFunc) Narrate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// FallbackText is the fixed text used when every narrator has failed.
func FallbackText(req Request) string {
	switch req.Category {
	case FleeSuccess:
		return "You slip away by a hair's breadth."
	case FleeFail:
		return "You fail to escape; the enemy blocks your path."
	case ItemUse:
		return req.Attacker.Name + " uses the item."
	}
	return "The narrator falters."
}
