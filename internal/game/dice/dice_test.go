package dice_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cory-johannsen/dicecrawl/internal/game/dice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

type fixedSrc struct{ val int }

func (f fixedSrc) Intn(n int) int {
	if f.val >= n {
		return n - 1
	}
	return f.val
}

func TestRollResult_String(t *testing.T) {
	r := dice.RollResult{Expression: "1d8+2", Dice: []int{5}, Modifier: 2}
	assert.Equal(t, "1d8+2 → [5] +2 = 7", r.String())
}

func TestRollResult_String_PanicsOnEmptyExpression(t *testing.T) {
	r := dice.RollResult{Dice: []int{4}}
	assert.Panics(t, func() { _ = r.String() })
}

func TestRollResult_Total_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ds := rapid.SliceOf(rapid.IntRange(1, 100)).Draw(rt, "dice")
		mod := rapid.IntRange(-50, 50).Draw(rt, "modifier")
		want := mod
		for _, d := range ds {
			want += d
		}
		assert.Equal(rt, want, dice.RollResult{Expression: "x", Dice: ds, Modifier: mod}.Total())
	})
}

func TestParse_ValidForms(t *testing.T) {
	cases := []struct {
		in              string
		count, sides, m int
	}{
		{"d100", 1, 100, 0},
		{"d20", 1, 20, 0},
		{"1d50+9", 1, 50, 9},
		{"1d8+2", 1, 8, 2},
		{"3D6-1", 3, 6, -1},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			e, err := dice.Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.count, e.Count)
			assert.Equal(t, tc.sides, e.Sides)
			assert.Equal(t, tc.m, e.Modifier)
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, in := range []string{"", "d", "d1", "0d6", "2x6", "d6+", "abc"} {
		_, err := dice.Parse(in)
		assert.Error(t, err, "expected error for %q", in)
	}
}

func TestExpression_RollBounds_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		count := rapid.IntRange(1, 5).Draw(rt, "count")
		sides := rapid.IntRange(2, 100).Draw(rt, "sides")
		mod := rapid.IntRange(-10, 60).Draw(rt, "mod")
		e := dice.MustParse(fmt.Sprintf("%dd%d%+d", count, sides, mod))
		seed := rapid.Uint64().Draw(rt, "seed")
		got := e.Roll(dice.NewSeededSource(seed)).Total()
		assert.GreaterOrEqual(rt, got, e.Min())
		assert.LessOrEqual(rt, got, e.Max())
	})
}

func TestChestExpression_Range(t *testing.T) {
	e := dice.MustParse("1d50+9")
	assert.Equal(t, 10, e.Min())
	assert.Equal(t, 59, e.Max())
	assert.Equal(t, 10, e.Roll(fixedSrc{0}).Total())
	assert.Equal(t, 59, e.Roll(fixedSrc{49}).Total())
}

func TestBetween_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		lo := rapid.IntRange(-5, 20).Draw(rt, "lo")
		hi := rapid.IntRange(-5, 20).Draw(rt, "hi")
		v := dice.Between(dice.NewSeededSource(rapid.Uint64().Draw(rt, "seed")), lo, hi)
		if hi <= lo {
			assert.Equal(rt, lo, v)
			return
		}
		assert.GreaterOrEqual(rt, v, lo)
		assert.LessOrEqual(rt, v, hi)
	})
}

func TestUnit_InRange(t *testing.T) {
	src := dice.NewSeededSource(7)
	for i := 0; i < 1000; i++ {
		u := dice.Unit(src)
		assert.GreaterOrEqual(t, u, 0.0)
		assert.Less(t, u, 1.0)
	}
}

func TestSeededSource_Reproducible(t *testing.T) {
	a, b := dice.NewSeededSource(42), dice.NewSeededSource(42)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Intn(1000), b.Intn(1000))
	}
}

func TestCryptoSource_Intn(t *testing.T) {
	src := dice.NewCryptoSource()
	for i := 0; i < 1000; i++ {
		v := src.Intn(6)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 6)
	}
	assert.Panics(t, func() { src.Intn(0) })
}

func TestRoller_Die(t *testing.T) {
	r := dice.NewLoggedRoller(fixedSrc{val: 19}, zap.NewNop())
	assert.Equal(t, 20, r.Die(20))
	res, err := r.RollExpr("1d8+2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.String(), "1d8+2"))
	assert.Equal(t, 10, res.Total())
}

func TestDie_Succeeded(t *testing.T) {
	assert.True(t, dice.Die{Value: 40, Target: 65, Compare: dice.Under}.Succeeded())
	assert.False(t, dice.Die{Value: 66, Target: 65, Compare: dice.Under}.Succeeded())
	assert.True(t, dice.Die{Value: 6, Target: 6, Compare: dice.Over}.Succeeded())
	assert.False(t, dice.Die{Value: 5, Target: 6, Compare: dice.Over}.Succeeded())
	assert.True(t, dice.Die{Value: 3}.Succeeded())
}
