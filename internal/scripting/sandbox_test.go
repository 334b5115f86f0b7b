package scripting_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/dicecrawl/internal/scripting"
)

func TestNewSandboxedState_StripsUnsafeGlobals(t *testing.T) {
	L, cancel := scripting.NewSandboxedState(0)
	defer cancel()
	defer L.Close()
	for _, name := range []string{"os", "io", "debug", "dofile", "loadfile", "load", "collectgarbage", "require"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_SafeLibsAvailable(t *testing.T) {
	L, cancel := scripting.NewSandboxedState(0)
	defer cancel()
	defer L.Close()
	err := L.DoString(`
		assert(math.floor(2.5) == 2)
		assert(string.format("%d dmg", 7) == "7 dmg")
		local t = {}
		table.insert(t, "x")
		assert(#t == 1)
	`)
	assert.NoError(t, err)
}

func TestNewSandboxedState_InstructionLimitExceeded(t *testing.T) {
	L, cancel := scripting.NewSandboxedState(10)
	defer cancel()
	defer L.Close()
	assert.Error(t, L.DoString(`while true do end`))
}

func TestRearm_RestoresBudgetAfterExhaustion(t *testing.T) {
	L, cancel := scripting.NewSandboxedState(10)
	defer cancel()
	defer L.Close()
	require.Error(t, L.DoString(`while true do end`))

	cancel2 := scripting.Rearm(L, context.Background(), 0)
	defer cancel2()
	assert.NoError(t, L.DoString(`local x = 1 + 1`))
}

func TestRearm_ParentCancellationHaltsVM(t *testing.T) {
	L, cancel := scripting.NewSandboxedState(0)
	defer cancel()
	defer L.Close()
	parent, stop := context.WithCancel(context.Background())
	stop()
	c := scripting.Rearm(L, parent, 0)
	defer c()
	assert.Error(t, L.DoString(`local n = 0 for i = 1, 100 do n = n + i end`))
}

func TestProperty_InstructionLimitAlwaysErrors(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 50).Draw(t, "limit")
		L, cancel := scripting.NewSandboxedState(limit)
		defer cancel()
		defer L.Close()
		if err := L.DoString(`while true do end`); err == nil {
			t.Fatalf("expected error with limit=%d but got nil", limit)
		}
	})
}
