package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules installs the engine table into L:
//
//	engine.dice.roll(expr)      -> total, or nil and an error string
//	engine.dice.between(lo, hi) -> integer in [lo, hi]
//	engine.log.debug(msg), engine.log.warn(msg)
//
// Precondition: L must be from NewSandboxedState.
func (m *Manager) RegisterModules(L *lua.LState) {
	engine := L.NewTable()

	diceTbl := L.NewTable()
	L.SetField(diceTbl, "roll", L.NewFunction(func(L *lua.LState) int {
		res, err := m.roller.RollExpr(L.CheckString(1))
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LNumber(res.Total()))
		return 1
	}))
	L.SetField(diceTbl, "between", L.NewFunction(func(L *lua.LState) int {
		lo, hi := L.CheckInt(1), L.CheckInt(2)
		L.Push(lua.LNumber(m.roller.Between("lua", lo, hi)))
		return 1
	}))
	L.SetField(engine, "dice", diceTbl)

	logTbl := L.NewTable()
	L.SetField(logTbl, "debug", L.NewFunction(func(L *lua.LState) int {
		m.logger.Debug("lua", zap.String("msg", L.CheckString(1)))
		return 0
	}))
	L.SetField(logTbl, "warn", L.NewFunction(func(L *lua.LState) int {
		m.logger.Warn("lua", zap.String("msg", L.CheckString(1)))
		return 0
	}))
	L.SetField(engine, "log", logTbl)

	L.SetGlobal("engine", engine)
}
