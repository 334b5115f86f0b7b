package narrative

import "github.com/cory-johannsen/dicecrawl/internal/game/dice"

// Event is a flavour encounter shown while exploring. Its mechanics are
// descriptive only; the engine never applies them.
type Event struct {
	Title       string
	Description string
	Mechanics   string
}

var dungeonEvents = []Event{
	{"Desecrated Altar", "An ancient altar covered in dark runes hums with uneasy power.", "Touch it: roll 1d6. 1-3 you are hurt, 4-6 you are fully healed."},
	{"Wandering Merchant", "A goblin with an enormous pack waves at you. It seems harmless and wants to trade.", "You may buy a potion for 10 gold."},
	{"Dart Trap", "Click! A loose flagstone shifts underfoot and a mechanism whirs.", "Agility check (d20). On a failure take 1d4 poison damage."},
	{"Fountain of Life", "Crystal water bubbles from the rock wall.", "Drinking restores 5 HP and washes away poison."},
	{"Fallen Adventurer", "The remains of a warrior who was less lucky than you.", "Loot: 1d6 gold and a rusty dagger."},
	{"Cave-in", "The ceiling starts to shake violently.", "Everyone takes 1d4 damage from falling rocks."},
	{"Whispers in the Dark", "Voices call your name, but nobody is there.", "Fear: your next attack has -10% to hit."},
	{"Glowing Mushroom", "A giant mushroom bathes the room in blue light.", "Eating it heals 2 HP but brings hallucinations."},
	{"Giant Rat", "A rat the size of a dog watches you from a corner.", "It will not attack unless approached."},
	{"The False Chest", "You spot a chest... wait, did it just breathe?", "A small mimic. Opening it starts a fight."},
}

// RandomEvent picks a dungeon event using src.
func RandomEvent(src dice.Source) Event {
	return dungeonEvents[src.Intn(len(dungeonEvents))]
}

// Events returns every known dungeon event.
func Events() []Event {
	out := make([]Event, len(dungeonEvents))
	copy(out, dungeonEvents)
	return out
}
