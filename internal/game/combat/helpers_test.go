package combat_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dicecrawl/internal/game/character"
	"github.com/cory-johannsen/dicecrawl/internal/game/combat"
	"github.com/cory-johannsen/dicecrawl/internal/narrative"
)

// scriptedSrc returns queued values in order; it panics when exhausted or
// when a queued value does not fit the requested range.
type scriptedSrc struct {
	mu     sync.Mutex
	values []int
}

func script(values ...int) *scriptedSrc { return &scriptedSrc{values: values} }

func (s *scriptedSrc) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		panic("scriptedSrc exhausted")
	}
	v := s.values[0]
	s.values = s.values[1:]
	if v < 0 || v >= n {
		panic(fmt.Sprintf("scripted value %d out of range [0,%d)", v, n))
	}
	return v
}

func (s *scriptedSrc) remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

type fixedSrc struct{ val int }

func (f fixedSrc) Intn(n int) int {
	if f.val >= n {
		return n - 1
	}
	return f.val
}

func newHero(t *testing.T) *character.Character {
	t.Helper()
	h, err := character.NewHero("Aria", "Warrior")
	require.NoError(t, err)
	return h
}

func newGoblin() *character.Character {
	p := &character.Preset{
		ID: "goblin", Name: "Goblin", MaxHP: 18,
		MinDmg: 2, MaxDmg: 4, MinDefense: 1, MaxDefense: 3,
		HitChance: 65, GoldReward: 2,
	}
	return p.Spawn()
}

func zapNop() *zap.Logger { return zap.NewNop() }

func newEngine(t *testing.T, src combat.Source, n narrative.Narrator) (*combat.Engine, *combat.Buffer) {
	t.Helper()
	buf := combat.NewBuffer()
	eng, err := combat.NewEngine(src, n, buf, zap.NewNop(), combat.DefaultOptions())
	require.NoError(t, err)
	return eng, buf
}
