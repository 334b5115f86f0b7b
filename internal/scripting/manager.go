package scripting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dicecrawl/internal/game/dice"
)

// GlobalScope is the reserved key for scripts loaded via LoadGlobal.
// CallHook falls back to this VM when the requested scope has none.
const GlobalScope = "__global__"

type vm struct {
	mu     sync.Mutex
	L      *lua.LState
	limit  int
	cancel context.CancelFunc
}

// Manager owns one sandboxed LState per scope and dispatches hook calls.
//
// Manager is safe for concurrent use. Calls into the same scope are
// serialized; different scopes run concurrently.
type Manager struct {
	mu     sync.RWMutex
	vms    map[string]*vm
	roller *dice.Roller
	logger *zap.Logger
}

// NewManager creates a Manager.
//
// Precondition: roller and logger must be non-nil.
// Postcondition: Returns a Manager with no scopes loaded.
func NewManager(roller *dice.Roller, logger *zap.Logger) *Manager {
	return &Manager{
		vms:    make(map[string]*vm),
		roller: roller,
		logger: logger,
	}
}

// LoadDir creates a VM for scope, registers the engine.* modules, then runs
// every *.lua file in dir in lexicographic order.
//
// Precondition: scope must be non-empty; dir must be a readable directory.
// Postcondition: The scope VM replaces any previous one; returns error on load failure.
func (m *Manager) LoadDir(scope, dir string, instLimit int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scripting: reading script dir %q for %q: %w", dir, scope, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return m.load(scope, files, instLimit)
}

// LoadFile creates a VM for scope from a single script file.
func (m *Manager) LoadFile(scope, path string, instLimit int) error {
	return m.load(scope, []string{path}, instLimit)
}

// LoadGlobal loads the fallback VM consulted by CallHook for unknown scopes.
func (m *Manager) LoadGlobal(dir string, instLimit int) error {
	return m.LoadDir(GlobalScope, dir, instLimit)
}

// LoadString creates a VM for scope from inline source.
func (m *Manager) LoadString(scope, src string, instLimit int) error {
	L, cancel := NewSandboxedState(instLimit)
	m.RegisterModules(L)
	if err := L.DoString(src); err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("scripting: loading inline script for %q: %w", scope, err)
	}
	m.install(scope, &vm{L: L, limit: instLimit, cancel: cancel})
	return nil
}

func (m *Manager) load(scope string, files []string, instLimit int) error {
	L, cancel := NewSandboxedState(instLimit)
	m.RegisterModules(L)
	for _, path := range files {
		if err := L.DoFile(path); err != nil {
			cancel()
			L.Close()
			return fmt.Errorf("scripting: loading %q for %q: %w", path, scope, err)
		}
	}
	m.install(scope, &vm{L: L, limit: instLimit, cancel: cancel})
	return nil
}

func (m *Manager) install(scope string, v *vm) {
	m.mu.Lock()
	old := m.vms[scope]
	m.vms[scope] = v
	m.mu.Unlock()
	if old != nil {
		old.mu.Lock()
		old.cancel()
		old.L.Close()
		old.mu.Unlock()
	}
	m.logger.Debug("scripting: scope loaded", zap.String("scope", scope))
}

// HasScope reports whether scope (or the global fallback) has a VM.
func (m *Manager) HasScope(scope string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.vms[scope]
	if !ok {
		_, ok = m.vms[GlobalScope]
	}
	return ok
}

// Close releases every VM.
func (m *Manager) Close() {
	m.mu.Lock()
	vms := m.vms
	m.vms = make(map[string]*vm)
	m.mu.Unlock()
	for _, v := range vms {
		v.mu.Lock()
		v.cancel()
		v.L.Close()
		v.mu.Unlock()
	}
}

// CallHook calls the named Lua global function in scope's VM, falling back to
// the global VM. Go arguments are converted with ToLua. Each call gets a fresh
// instruction budget bound to ctx. Returns (LNil, nil) if the hook or VM is
// missing. Lua runtime errors are logged at Warn level and never propagated.
//
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(ctx context.Context, scope, hook string, args ...any) (lua.LValue, error) {
	m.mu.RLock()
	v, ok := m.vms[scope]
	if !ok {
		v = m.vms[GlobalScope]
	}
	m.mu.RUnlock()

	if v == nil {
		m.logger.Info("scripting: no VM for scope",
			zap.String("scope", scope),
			zap.String("hook", hook),
		)
		return lua.LNil, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	fn := v.L.GetGlobal(hook)
	if fn == lua.LNil {
		return lua.LNil, nil
	}

	v.cancel()
	v.cancel = Rearm(v.L, ctx, v.limit)

	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		largs[i] = ToLua(v.L, a)
	}

	if err := v.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, largs...); err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("scope", scope),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, nil
	}

	ret := v.L.Get(-1)
	v.L.Pop(1)
	return ret, nil
}

// ToLua converts a Go value into a Lua value owned by L. Maps with string
// keys become tables, slices become arrays, and unsupported types become nil.
func ToLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return x
	case string:
		return lua.LString(x)
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case []string:
		tbl := L.NewTable()
		for _, s := range x {
			tbl.Append(lua.LString(s))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for _, e := range x {
			tbl.Append(ToLua(L, e))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, e := range x {
			tbl.RawSetString(k, ToLua(L, e))
		}
		return tbl
	default:
		return lua.LNil
	}
}
