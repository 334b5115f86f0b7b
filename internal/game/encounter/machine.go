// Package encounter owns the top-level encounter mode, turn ownership inside
// combat and the selection of which enemy appears.
package encounter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dicecrawl/internal/game/combat"
	"github.com/cory-johannsen/dicecrawl/internal/game/dice"
)

// Mode is the top-level encounter state.
type Mode string

const (
	Exploration Mode = "exploration"
	Combat      Mode = "combat"
	Chest       Mode = "chest"
	Victory     Mode = "victory"
	Death       Mode = "death"
)

const (
	evEngage        = "engage"
	evDiscoverChest = "discover_chest"
	evResolveChest  = "resolve_chest"
	evEscape        = "escape"
	evWin           = "win"
	evFall          = "fall"
	evCollect       = "collect"
	evReset         = "reset"
)

// Action is a player-facing request whose legality depends on the mode.
type Action string

const (
	ActAttack      Action = "attack"
	ActEnemyAttack Action = "enemy_attack"
	ActFlee        Action = "flee"
	ActUseItem     Action = "use_item"
	ActMove        Action = "move"
	ActResolve     Action = "resolve_chest"
	ActCollect     Action = "collect"
)

// ErrIllegalAction is returned when an action is not allowed in the current mode or turn.
var ErrIllegalAction = errors.New("action not allowed now")

// DefaultChestGold is the chest reward expression, yielding [10,59].
const DefaultChestGold = "1d50+9"

// Machine tracks encounter mode and turn ownership.
//
// It is safe for concurrent use.
type Machine struct {
	mu     sync.Mutex
	fsm    *fsm.FSM
	logger *zap.Logger

	heroSides  int
	turnsTaken int
	goldReward int
	chestGold  dice.Expression
}

// NewMachine creates a Machine in exploration mode.
//
// Precondition: heroSides >= 1; logger must be non-nil.
func NewMachine(heroSides int, logger *zap.Logger) *Machine {
	m := &Machine{
		logger:    logger,
		heroSides: max(heroSides, 1),
		chestGold: dice.MustParse(DefaultChestGold),
	}
	m.fsm = fsm.NewFSM(
		string(Exploration),
		fsm.Events{
			{Name: evEngage, Src: []string{string(Exploration)}, Dst: string(Combat)},
			{Name: evDiscoverChest, Src: []string{string(Exploration)}, Dst: string(Chest)},
			{Name: evResolveChest, Src: []string{string(Chest)}, Dst: string(Exploration)},
			{Name: evEscape, Src: []string{string(Combat)}, Dst: string(Exploration)},
			{Name: evWin, Src: []string{string(Combat)}, Dst: string(Victory)},
			{Name: evFall, Src: []string{string(Combat)}, Dst: string(Death)},
			{Name: evCollect, Src: []string{string(Victory)}, Dst: string(Exploration)},
			{Name: evReset, Src: []string{string(Combat), string(Chest), string(Victory), string(Death)}, Dst: string(Exploration)},
		},
		fsm.Callbacks{
			// Callbacks run while the caller holds m.mu.
			"enter_" + string(Combat): func(_ context.Context, _ *fsm.Event) {
				m.turnsTaken = 0
				m.goldReward = 0
			},
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.logger.Debug("encounter transition",
					zap.String("event", e.Event),
					zap.String("from", e.Src),
					zap.String("to", e.Dst),
				)
			},
		},
	)
	return m
}

// WithChestGold replaces the chest reward expression.
func (m *Machine) WithChestGold(expr dice.Expression) *Machine {
	m.mu.Lock()
	m.chestGold = expr
	m.mu.Unlock()
	return m
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode {
	return Mode(m.fsm.Current())
}

// HeroSides returns the number of hero-side actors per cycle.
func (m *Machine) HeroSides() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heroSides
}

// SetHeroSides changes the party size used for turn ownership.
func (m *Machine) SetHeroSides(n int) {
	m.mu.Lock()
	m.heroSides = max(n, 1)
	m.mu.Unlock()
}

// TurnsTaken returns how many hero-side actions were taken this cycle.
func (m *Machine) TurnsTaken() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.turnsTaken
}

// IsEnemyTurn reports whether the enemy owns the next resolution.
func (m *Machine) IsEnemyTurn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.turnsTaken >= m.heroSides
}

// VictoryGold returns the reward fixed when the enemy fell.
func (m *Machine) VictoryGold() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.goldReward
}

// CheckAction reports whether a is legal now.
//
// Postcondition: returns nil or an error wrapping ErrIllegalAction; never changes state.
func (m *Machine) CheckAction(a Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mode := Mode(m.fsm.Current())
	enemyTurn := m.turnsTaken >= m.heroSides

	ok := false
	switch a {
	case ActAttack, ActFlee:
		ok = mode == Combat && !enemyTurn
	case ActEnemyAttack:
		ok = mode == Combat && enemyTurn
	case ActUseItem:
		ok = mode == Exploration || (mode == Combat && !enemyTurn)
	case ActMove:
		ok = mode == Exploration
	case ActResolve:
		ok = mode == Chest
	case ActCollect:
		ok = mode == Victory
	}
	if ok {
		return nil
	}
	if mode == Combat && (a == ActAttack || a == ActFlee || a == ActUseItem) {
		return fmt.Errorf("%w: it is the enemy's turn", ErrIllegalAction)
	}
	if mode == Combat && a == ActEnemyAttack {
		return fmt.Errorf("%w: the enemy must wait for the heroes to act", ErrIllegalAction)
	}
	return fmt.Errorf("%w: %s during %s", ErrIllegalAction, a, mode)
}

// RecordAction advances turn ownership after an action was staged or applied.
// Hero actions count toward the cycle; an enemy attack resets it.
func (m *Machine) RecordAction(a Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if Mode(m.fsm.Current()) != Combat {
		return
	}
	if a == ActEnemyAttack {
		m.turnsTaken = 0
		return
	}
	m.turnsTaken++
}

// Engage starts combat from exploration.
func (m *Machine) Engage(ctx context.Context) error {
	return m.event(ctx, evEngage)
}

// DiscoverChest enters chest mode from exploration.
func (m *Machine) DiscoverChest(ctx context.Context) error {
	return m.event(ctx, evDiscoverChest)
}

// ResolveChest leaves chest mode. When open is true the one-time gold reward
// is rolled from src and returned; ignoring the chest yields zero.
//
// Postcondition: the returned gold is within the chest expression's range.
func (m *Machine) ResolveChest(ctx context.Context, open bool, src dice.Source) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fire(ctx, evResolveChest); err != nil {
		return 0, err
	}
	if !open {
		return 0, nil
	}
	return m.chestGold.Roll(src).Total(), nil
}

// Apply folds a commit into the mode. A hero at 0 HP enters death; an enemy at
// 0 HP during combat enters victory with the gold reward fixed from ev; a
// scheduled escape returns to exploration.
func (m *Machine) Apply(ctx context.Context, ev combat.CommitEvent) (Mode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if Mode(m.fsm.Current()) != Combat {
		return Mode(m.fsm.Current()), nil
	}
	var err error
	switch {
	case ev.HeroDefeated:
		err = m.fire(ctx, evFall)
	case ev.EnemyDefeated:
		if err = m.fire(ctx, evWin); err == nil {
			m.goldReward = max(ev.EnemyGold, 1)
		}
	case ev.Transition == combat.Escape:
		err = m.fire(ctx, evEscape)
	}
	return Mode(m.fsm.Current()), err
}

// CollectLoot leaves victory and returns the reward fixed at the kill.
func (m *Machine) CollectLoot(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gold := m.goldReward
	if err := m.fire(ctx, evCollect); err != nil {
		return 0, err
	}
	m.goldReward = 0
	return gold, nil
}

// Reset returns to exploration from any mode, including death.
func (m *Machine) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turnsTaken = 0
	m.goldReward = 0
	if Mode(m.fsm.Current()) == Exploration {
		return nil
	}
	return m.fire(ctx, evReset)
}

// Restore forces the mode, used when a remote snapshot overrides local state.
// A change of mode clears turn ownership and the pending reward; restoring
// into victory fixes the reward from enemyGold as a local kill would.
func (m *Machine) Restore(mode Mode, enemyGold int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if Mode(m.fsm.Current()) == mode {
		return
	}
	m.fsm.SetState(string(mode))
	m.turnsTaken = 0
	m.goldReward = 0
	if mode == Victory {
		m.goldReward = max(enemyGold, 1)
	}
}

func (m *Machine) event(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fire(ctx, name)
}

// fire runs an fsm event. Caller must hold m.mu.
func (m *Machine) fire(ctx context.Context, name string) error {
	if !m.fsm.Can(name) {
		return fmt.Errorf("%w: %s during %s", ErrIllegalAction, name, m.fsm.Current())
	}
	if err := m.fsm.Event(ctx, name); err != nil {
		var noTransition fsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return nil
		}
		return fmt.Errorf("encounter %s: %w", name, err)
	}
	return nil
}
