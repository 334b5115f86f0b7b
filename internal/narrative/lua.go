package narrative

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/cory-johannsen/dicecrawl/internal/scripting"
)

// LuaScope is the scripting scope holding the narration script.
const LuaScope = "narrative"

// LuaHook is the global function the narration script must define.
const LuaHook = "narrate"

// LuaNarrator delegates to a narrate(req) function in a sandboxed Lua VM.
type LuaNarrator struct {
	mgr *scripting.Manager
}

// NewLuaNarrator loads scriptPath into the narrative scope of mgr.
//
// Precondition: mgr must be non-nil.
// Postcondition: Returns an error when the script fails to load.
func NewLuaNarrator(mgr *scripting.Manager, scriptPath string, instLimit int) (*LuaNarrator, error) {
	if err := mgr.LoadFile(LuaScope, scriptPath, instLimit); err != nil {
		return nil, fmt.Errorf("loading narrative script: %w", err)
	}
	return &LuaNarrator{mgr: mgr}, nil
}

// Narrate implements Narrator.
func (n *LuaNarrator) Narrate(ctx context.Context, req Request) (string, error) {
	ret, err := n.mgr.CallHook(ctx, LuaScope, LuaHook, requestTable(req))
	if err != nil {
		return "", err
	}
	s, ok := ret.(lua.LString)
	if !ok || s == "" {
		return "", ErrNoNarration
	}
	return string(s), nil
}

func combatantTable(c Combatant) map[string]any {
	return map[string]any{
		"name":   c.Name,
		"class":  c.Class,
		"hp":     c.HP,
		"max_hp": c.MaxHP,
	}
}

func requestTable(req Request) map[string]any {
	return map[string]any{
		"action":    string(req.Action),
		"category":  string(req.Category),
		"attacker":  combatantTable(req.Attacker),
		"defender":  combatantTable(req.Defender),
		"context":   req.Context,
		"roll":      req.Roll,
		"breakdown": req.Breakdown,
		"hit":       req.Hit,
		"crit":      req.Crit,
		"damage":    req.Damage,
		"defense":   req.Defense,
	}
}
