package narrative

import (
	"context"
	"strings"

	"github.com/cory-johannsen/dicecrawl/internal/game/dice"
)

// critSuffix is appended to critical attack narration.
const critSuffix = " The impact echoes through the dungeon!"

var templates = map[Category][]string{
	CriticalHit: {
		"BRUTAL! {attacker} finds a gap in {defender}'s guard and lands a devastating blow.",
		"CRITICAL! {attacker}'s strike lands with immense force, staggering {defender}.",
		"A perfect execution! {attacker} pours everything into a blow {defender} will remember, if they survive.",
		"Blood and glory! {attacker}'s weapon flashes as it connects with {defender}.",
	},
	Hit: {
		"{attacker} lashes out and connects with {defender}.",
		"{attacker}'s blow slips past {defender}'s guard.",
		"{defender} tries to dodge, but {attacker} is faster.",
		"A solid impact. {attacker} wears {defender} down.",
		"With practiced skill, {attacker} catches {defender} in the side.",
	},
	Blocked: {
		"{attacker} connects, but {defender}'s armor soaks up most of the blow.",
		"{defender} gets a guard up at the last moment, blunting {attacker}'s attack.",
		"The strike is true, but {defender} is tougher.",
		"Clang! The attack glances harmlessly off {defender}.",
	},
	Miss: {
		"{attacker} swings at empty air as {defender} ducks aside.",
		"{attacker}'s attack is clumsy and {defender} turns it away with ease.",
		"{defender} reads the move and steps back, leaving {attacker} off balance.",
		"{attacker} stumbles and the blow sails wide of {defender}.",
		"Miss! {defender}'s defense holds for now.",
	},
	Kill: {
		"The final blow! {defender} falls before {attacker}.",
		"With a last gasp, {defender} collapses. {attacker} stands victorious.",
		"{attacker} finishes {defender} without mercy. The fight is over.",
		"The light fades from {defender}'s eyes after {attacker}'s strike.",
	},
	FleeSuccess: {
		"A masterful escape! You slip into the shadows while the enemy is distracted.",
		"You run as if there were no tomorrow and leave the enemy behind.",
		"A puff of smoke, or pure speed, and you are out of the fight.",
	},
	FleeFail: {
		"You try to run, but the enemy cuts you off.",
		"No way out! The enemy is too quick and forces you to keep fighting.",
		"You trip while trying to escape and the fight goes on.",
	},
	ItemUse: {
		"{attacker} gulps the draught and feels their wounds knit closed.",
		"A magical glow surrounds {attacker} after using the item.",
		"{attacker} uses the item with surgical precision.",
	},
}

// TemplateNarrator picks a random English template for the request category.
// It never fails for a known category.
type TemplateNarrator struct {
	src dice.Source
}

// NewTemplateNarrator creates a TemplateNarrator drawing template choices from src.
//
// Precondition: src must be non-nil.
func NewTemplateNarrator(src dice.Source) *TemplateNarrator {
	return &TemplateNarrator{src: src}
}

// Narrate implements Narrator.
//
// Postcondition: Returns ErrNoNarration for categories without templates.
func (n *TemplateNarrator) Narrate(_ context.Context, req Request) (string, error) {
	choices := templates[req.Category]
	if len(choices) == 0 {
		return "", ErrNoNarration
	}
	text := strings.NewReplacer(
		"{attacker}", req.Attacker.Name,
		"{defender}", req.Defender.Name,
	).Replace(choices[n.src.Intn(len(choices))])
	if req.Crit && (req.Action == ActionAttack || req.Action == ActionEnemyAttack) {
		text += critSuffix
	}
	return text, nil
}
