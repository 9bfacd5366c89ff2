//go:build !no_automation

package automation

import (
	"strconv"
	"time"

	lua "github.com/yuin/gopher-lua"

	"paradox-go-home/internal/panel"
	"paradox-go-home/internal/state"
)

const maxHandlersPerScript = 100

// registerAlarmModule registers the `alarm` global table in a Lua state.
func registerAlarmModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"on":           func(L *lua.LState) int { return alarmOn(L, vm) },
		"command":      func(L *lua.LState) int { return alarmCommand(L, vm) },
		"get":          func(L *lua.LState) int { return alarmGet(L, e) },
		"log":          func(L *lua.LState) int { return alarmLog(L, vm) },
		"notify":       func(L *lua.LState) int { return alarmNotify(L, vm) },
		"after":        func(L *lua.LState) int { return alarmAfter(L, vm, e) },
		"datetime":     func(L *lua.LState) int { return alarmDatetime(L, e.now()) },
		"time_between": func(L *lua.LState) int { return alarmTimeBetween(L, e.now()) },
	})
	L.SetGlobal("alarm", mod)
}

// alarm.on(kind, [filter], fn)
//
// kind is an entity kind ("zone", "partition", "output", "panel", "trouble",
// "moduletrouble", "lastzoneevent", "user"), "connection" or "*". filter may
// hold id, node and property.
func alarmOn(L *lua.LState, vm *scriptVM) int {
	h := luaEventHandler{kind: L.CheckString(1)}
	if fn, ok := L.Get(2).(*lua.LFunction); ok {
		h.fn = fn
	} else {
		filter := L.CheckTable(2)
		h.fn = L.CheckFunction(3)
		if v, ok := filter.RawGetString("id").(lua.LNumber); ok {
			h.id = int(v)
		}
		if v := filter.RawGetString("node"); v != lua.LNil {
			h.node = v.String()
		}
		if v := filter.RawGetString("property"); v != lua.LNil {
			h.property = v.String()
		}
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if len(vm.handlers) >= maxHandlersPerScript {
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	return 0
}

// alarm.command(kind, id, property, value) -> ok, err
func alarmCommand(L *lua.LState, vm *scriptVM) int {
	cmd := panel.Command{
		Kind:     state.Kind(L.CheckString(1)),
		ID:       L.CheckInt(2),
		Property: L.CheckString(3),
	}
	switch v := L.CheckAny(4).(type) {
	case lua.LBool:
		cmd.Value = strconv.FormatBool(bool(v))
	case lua.LNumber:
		cmd.Value = strconv.FormatFloat(float64(v), 'f', -1, 64)
	case lua.LString:
		cmd.Value = string(v)
	default:
		L.ArgError(4, "value must be a boolean, number or string")
		return 0
	}

	if err := vm.submit(cmd); err != nil {
		vm.log("warn", "command "+cmd.String()+" rejected: "+err.Error())
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// alarm.get(kind, id, property) -> value or nil
func alarmGet(L *lua.LState, e *Engine) int {
	kind := state.Kind(L.CheckString(1))
	id := L.OptInt(2, 0)
	property := L.CheckString(3)

	v, ok := e.source.Snapshot().Value(kind, id, property)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(goToLua(L, v))
	return 1
}

// alarm.log(msg) or alarm.log(level, msg)
func alarmLog(L *lua.LState, vm *scriptVM) int {
	if L.GetTop() >= 2 {
		vm.log(L.CheckString(1), L.CheckString(2))
		return 0
	}
	vm.log("info", L.CheckString(1))
	return 0
}

// alarm.notify(msg)
func alarmNotify(L *lua.LState, vm *scriptVM) int {
	vm.notify(L.CheckString(1))
	return 0
}

// alarm.after(seconds, fn) runs fn later on the script goroutine.
func alarmAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)
	d := time.Duration(float64(seconds) * float64(time.Second))

	if vm.dryRun {
		vm.log("info", "[after "+d.String()+"] skipped")
		return 0
	}

	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		select {
		case vm.commands <- func(L *lua.LState) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				e.logger.Error("after callback error", "script", vm.id, "err", err)
			}
		}:
		default:
			e.logger.Warn("after: script queue full", "script", vm.id)
		}
	}()
	return 0
}

// alarm.datetime(component)
func alarmDatetime(L *lua.LState, now time.Time) int {
	switch component := L.CheckString(1); component {
	case "hour":
		L.Push(lua.LNumber(now.Hour()))
	case "minute":
		L.Push(lua.LNumber(now.Minute()))
	case "second":
		L.Push(lua.LNumber(now.Second()))
	case "weekday":
		L.Push(lua.LNumber(now.Weekday()))
	case "day":
		L.Push(lua.LNumber(now.Day()))
	case "month":
		L.Push(lua.LNumber(now.Month()))
	case "year":
		L.Push(lua.LNumber(now.Year()))
	case "timestamp":
		L.Push(lua.LNumber(now.Unix()))
	case "time_str":
		L.Push(lua.LString(now.Format("15:04:05")))
	case "date_str":
		L.Push(lua.LString(now.Format("2006-01-02")))
	default:
		L.ArgError(1, "unknown component: "+component)
		return 0
	}
	return 1
}

// alarm.time_between(from_hour, to_hour) wraps past midnight when from > to.
func alarmTimeBetween(L *lua.LState, now time.Time) int {
	from := L.CheckInt(1)
	to := L.CheckInt(2)
	hour := now.Hour()

	var in bool
	if from <= to {
		in = hour >= from && hour < to
	} else {
		in = hour >= from || hour < to
	}
	L.Push(lua.LBool(in))
	return 1
}
