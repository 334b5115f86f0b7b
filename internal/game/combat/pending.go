package combat

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cory-johannsen/dicecrawl/internal/game/character"
	"github.com/cory-johannsen/dicecrawl/internal/game/dice"
	"github.com/cory-johannsen/dicecrawl/internal/game/status"
	"github.com/cory-johannsen/dicecrawl/internal/narrative"
)

var (
	// ErrActionInFlight is returned when an action is requested while another
	// is being computed or awaits commit.
	ErrActionInFlight = errors.New("an action is already in flight")
	// ErrNothingPending is returned by Commit with an empty buffer.
	ErrNothingPending = errors.New("no pending result to commit")
	// ErrItemNotFound is returned by UseItem for an unknown inventory reference.
	ErrItemNotFound = errors.New("item not found")
	// ErrUnknownBodyPart is returned for an unrecognised attack zone.
	ErrUnknownBodyPart = errors.New("unknown body part")
)

// ActionKind names the action that produced a PendingResult.
type ActionKind string

const (
	ActionAttack      ActionKind = "attack"
	ActionEnemyAttack ActionKind = "enemy_attack"
	ActionFlee        ActionKind = "flee"
	ActionItem        ActionKind = "item"
)

// Transition is an encounter change scheduled for commit time.
type Transition string

const (
	NoTransition Transition = ""
	// Escape returns the encounter to exploration after a successful flee.
	Escape Transition = "escape"
)

// SideDamage is status-tick damage per side.
type SideDamage struct {
	Hero  int
	Enemy int
}

// PendingResult is the single in-flight, uncommitted outcome of an action.
//
// Invariant: values are final when staged; nothing here is applied to a
// Character until Buffer.Commit.
type PendingResult struct {
	ID     string
	Action ActionKind
	// Target is the side that HPDelta and NewStatus apply to.
	Target character.Side
	// TargetName is the party slot an enemy attack chose.
	TargetName string
	// AppliesToHero is false when an enemy attack chose a different party member.
	AppliesToHero bool
	HPDelta       int
	StatusDamage  SideDamage
	NewStatus     *status.Effect
	// HeroStatuses and EnemyStatuses are the post-tick lists to install at commit.
	HeroStatuses  []status.Effect
	EnemyStatuses []status.Effect
	Category      narrative.Category
	Transition    Transition
	Dice          []dice.Die
	Breakdown     string
	Trace         string
	TickLog       string
	// Story is the narration request. Narrative holds the narrator's answer
	// once it arrives and is empty until then.
	Story     narrative.Request
	Narrative string
	Roll      int
	Hit       bool
	Crit      bool
	Damage    int
	Defense   int
}

// CommitEvent describes what a commit changed, for the encounter machine.
type CommitEvent struct {
	Action        ActionKind
	HeroHP        int
	EnemyHP       int
	HeroDefeated  bool
	EnemyDefeated bool
	// EnemyGold is read from the enemy record at the moment of commit.
	EnemyGold  int
	Transition Transition
}

// Buffer is the single-slot holder of the in-flight PendingResult and the only
// writer of HP, status lists and gold.
//
// It is safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	pending *PendingResult
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer { return &Buffer{} }

// Stage stores p as the in-flight result.
//
// Precondition: p must be non-nil.
// Postcondition: returns ErrActionInFlight and leaves the slot unchanged when occupied.
func (b *Buffer) Stage(p *PendingResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending != nil {
		return ErrActionInFlight
	}
	b.pending = p
	return nil
}

// Pending returns the staged result, if any.
func (b *Buffer) Pending() (*PendingResult, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending, b.pending != nil
}

// Busy reports whether a result awaits commit.
func (b *Buffer) Busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending != nil
}

// Clear drops any staged result without applying it. Used only on full reset.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.pending = nil
	b.mu.Unlock()
}

// Commit atomically applies the staged result to hero and enemy and empties the slot.
//
// Precondition: hero and enemy must be non-nil.
// Postcondition: both HP values are within [0, MaxHP]; the slot is empty.
func (b *Buffer) Commit(hero, enemy *character.Character) (CommitEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pending
	if p == nil {
		return CommitEvent{}, ErrNothingPending
	}

	hero.Statuses = p.HeroStatuses
	enemy.Statuses = p.EnemyStatuses
	heroDelta := -p.StatusDamage.Hero
	enemyDelta := -p.StatusDamage.Enemy

	switch p.Target {
	case character.Enemy:
		enemyDelta += p.HPDelta
		if p.NewStatus != nil {
			enemy.Statuses = status.Apply(enemy.Statuses, *p.NewStatus)
		}
	case character.Hero:
		if p.AppliesToHero {
			heroDelta += p.HPDelta
			if p.NewStatus != nil {
				hero.Statuses = status.Apply(hero.Statuses, *p.NewStatus)
			}
		}
	}

	hero.HP = clampHP(hero.HP+heroDelta, hero.MaxHP)
	enemy.HP = clampHP(enemy.HP+enemyDelta, enemy.MaxHP)
	b.pending = nil

	return CommitEvent{
		Action:        p.Action,
		HeroHP:        hero.HP,
		EnemyHP:       enemy.HP,
		HeroDefeated:  hero.HP == 0,
		EnemyDefeated: enemy.HP == 0,
		EnemyGold:     enemy.Gold,
		Transition:    p.Transition,
	}, nil
}

// ApplyHeal restores amount HP to c and consumes the inventory item at index.
//
// Precondition: 0 <= index < len(c.Inventory); amount >= 0.
// Postcondition: the item is removed; c.HP <= c.MaxHP.
func (b *Buffer) ApplyHeal(c *character.Character, index, amount int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= len(c.Inventory) {
		return 0, fmt.Errorf("%w: index %d", ErrItemNotFound, index)
	}
	if b.pending != nil {
		return 0, ErrActionInFlight
	}
	c.Inventory = append(c.Inventory[:index:index], c.Inventory[index+1:]...)
	before := c.HP
	c.HP = clampHP(c.HP+amount, c.MaxHP)
	return c.HP - before, nil
}

// ConsumeItem removes the inventory item at index without any other effect.
func (b *Buffer) ConsumeItem(c *character.Character, index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= len(c.Inventory) {
		return fmt.Errorf("%w: index %d", ErrItemNotFound, index)
	}
	c.Inventory = append(c.Inventory[:index:index], c.Inventory[index+1:]...)
	return nil
}

// GrantGold adds amount gold to c.
//
// Precondition: amount >= 0.
func (b *Buffer) GrantGold(c *character.Character, amount int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c.Gold += amount
}

func clampHP(hp, maxHP int) int {
	return min(max(hp, 0), maxHP)
}
