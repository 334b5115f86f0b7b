package scripting_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/dicecrawl/internal/game/dice"
	"github.com/cory-johannsen/dicecrawl/internal/scripting"
)

func newTestManager(t testing.TB) (*scripting.Manager, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	roller := dice.NewLoggedRoller(dice.NewSeededSource(7), logger)
	mgr := scripting.NewManager(roller, logger)
	t.Cleanup(mgr.Close)
	return mgr, logs
}

func writeTempLua(t testing.TB, filename, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(src), 0o644))
	return dir
}

func hasLevel(logs *observer.ObservedLogs, lvl zapcore.Level) bool {
	for _, e := range logs.All() {
		if e.Level == lvl {
			return true
		}
	}
	return false
}

func TestManager_LoadDir_CallsHook(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "hooks.lua", `
		function add(a, b)
			return a + b
		end
	`)
	require.NoError(t, mgr.LoadDir("narrative", dir, 0))
	ret, err := mgr.CallHook(context.Background(), "narrative", "add", 3, 4)
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(7), ret)
}

func TestManager_CallHook_ConvertsTables(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadString("narrative", `
		function describe(req)
			return req.attacker.name .. " hits for " .. req.damage .. " (" .. #req.tags .. ")"
		end
	`, 0))
	req := map[string]any{
		"attacker": map[string]any{"name": "Hero"},
		"damage":   5,
		"tags":     []string{"crit", "head"},
	}
	ret, err := mgr.CallHook(context.Background(), "narrative", "describe", req)
	require.NoError(t, err)
	assert.Equal(t, lua.LString("Hero hits for 5 (2)"), ret)
}

func TestManager_CallHook_MissingHook_NoOp(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadString("narrative", `-- no functions`, 0))
	ret, err := mgr.CallHook(context.Background(), "narrative", "nonexistent")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
}

func TestManager_CallHook_UnknownScope_LogsInfo(t *testing.T) {
	mgr, logs := newTestManager(t)
	ret, err := mgr.CallHook(context.Background(), "nowhere", "hook")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.True(t, hasLevel(logs, zapcore.InfoLevel))
	assert.False(t, mgr.HasScope("nowhere"))
}

func TestManager_CallHook_RuntimeError_WarnLog(t *testing.T) {
	mgr, logs := newTestManager(t)
	require.NoError(t, mgr.LoadString("narrative", `
		function bad_hook()
			error("intentional error")
		end
	`, 0))
	ret, err := mgr.CallHook(context.Background(), "narrative", "bad_hook")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.True(t, hasLevel(logs, zapcore.WarnLevel))
}

func TestManager_CallHook_BudgetIsPerCall(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadString("narrative", `
		function spin() while true do end end
		function ok() return "fine" end
	`, 500))
	ret, err := mgr.CallHook(context.Background(), "narrative", "spin")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)

	ret, err = mgr.CallHook(context.Background(), "narrative", "ok")
	require.NoError(t, err)
	assert.Equal(t, lua.LString("fine"), ret)
}

func TestManager_EngineDice(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadString("narrative", `
		function roll() return engine.dice.roll("1d6+10") end
		function pick() return engine.dice.between(3, 3) end
		function broken()
			local v, err = engine.dice.roll("banana")
			if v == nil then return err end
			return "unexpected"
		end
	`, 0))
	ctx := context.Background()

	ret, err := mgr.CallHook(ctx, "narrative", "roll")
	require.NoError(t, err)
	n, ok := ret.(lua.LNumber)
	require.True(t, ok)
	assert.GreaterOrEqual(t, int(n), 11)
	assert.LessOrEqual(t, int(n), 16)

	ret, err = mgr.CallHook(ctx, "narrative", "pick")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(3), ret)

	ret, err = mgr.CallHook(ctx, "narrative", "broken")
	require.NoError(t, err)
	assert.IsType(t, lua.LString(""), ret)
	assert.NotEqual(t, lua.LString("unexpected"), ret)
}

func TestManager_LoadGlobal_Fallback(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "global.lua", `function answer() return 42 end`)
	require.NoError(t, mgr.LoadGlobal(dir, 0))
	ret, err := mgr.CallHook(context.Background(), "unknown", "answer")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(42), ret)
	assert.True(t, mgr.HasScope("unknown"))
}

func TestManager_LoadString_Replaces(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadString("s", `function v() return 1 end`, 0))
	require.NoError(t, mgr.LoadString("s", `function v() return 2 end`, 0))
	ret, err := mgr.CallHook(context.Background(), "s", "v")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(2), ret)
}

func TestManager_InvalidLua_ReturnsError(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.Error(t, mgr.LoadString("bad", `this is not valid lua @@@@`, 0))
	dir := writeTempLua(t, "bad.lua", `this is not valid lua @@@@`)
	assert.Error(t, mgr.LoadDir("bad", dir, 0))
	assert.Error(t, mgr.LoadFile("bad", filepath.Join(t.TempDir(), "missing.lua"), 0))
	assert.Error(t, mgr.LoadDir("bad", filepath.Join(t.TempDir(), "missing"), 0))
}

func TestManager_ConcurrentCallsSameScope(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadString("s", `function add(a, b) return a + b end`, 0))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ret, err := mgr.CallHook(context.Background(), "s", "add", i, 1)
			assert.NoError(t, err)
			assert.Equal(t, lua.LNumber(i+1), ret)
		}(i)
	}
	wg.Wait()
}

func TestProperty_CallHookMissingScopeNeverPanics(t *testing.T) {
	mgr, _ := newTestManager(t)
	rapid.Check(t, func(rt *rapid.T) {
		scope := rapid.StringMatching(`[a-z]{1,10}`).Draw(rt, "scope")
		hook := rapid.StringMatching(`[a-z]{1,10}`).Draw(rt, "hook")
		ret, err := mgr.CallHook(context.Background(), scope, hook)
		if err != nil || ret != lua.LNil {
			rt.Fatalf("expected (nil, nil), got (%v, %v)", ret, err)
		}
	})
}
