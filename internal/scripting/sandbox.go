// Package scripting hosts the sandboxed GopherLua VMs that back scripted
// narration. It knows nothing about combat; callers pass plain Go values in
// and read plain Lua values out.
package scripting

import (
	"context"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the opcode budget granted to a single load or
// hook call when no override is configured.
const DefaultInstructionLimit = 100_000

// countingContext cancels itself after Done() has been called limit times.
// GopherLua's main loop calls Done() once per opcode.
type countingContext struct {
	context.Context
	cancel    context.CancelFunc
	remaining *atomic.Int64
}

func (c *countingContext) Done() <-chan struct{} {
	if c.remaining.Add(-1) <= 0 {
		c.cancel()
	}
	return c.Context.Done()
}

func newCountingContext(parent context.Context, limit int) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	base, cancel := context.WithCancel(parent)
	rem := &atomic.Int64{}
	rem.Store(int64(limit))
	return &countingContext{Context: base, cancel: cancel, remaining: rem}, cancel
}

// NewSandboxedState creates a GopherLua LState with only the base, table,
// string and math libraries, with file and code loading globals removed, and
// armed with an initial budget of instLimit opcodes.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: Returns a non-nil LState and the cancel func of its budget.
// The caller owns the LState and must call L.Close() when done.
func NewSandboxedState(instLimit int) (*lua.LState, context.CancelFunc) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage", "require"} {
		L.SetGlobal(name, lua.LNil)
	}

	cancel := Rearm(L, context.Background(), instLimit)
	return L, cancel
}

// Rearm installs a fresh opcode budget on L, derived from parent so that
// cancelling parent also halts the VM.
//
// Precondition: L must not be executing.
// Postcondition: L runs at most instLimit more opcodes before erroring.
func Rearm(L *lua.LState, parent context.Context, instLimit int) context.CancelFunc {
	limit := instLimit
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}
	ctx, cancel := newCountingContext(parent, limit)
	L.SetContext(ctx)
	return cancel
}
