//go:build !no_automation

package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"paradox-go-home/internal/panel"
	"paradox-go-home/internal/protocol"
	"paradox-go-home/internal/state"
)

// Commander accepts panel commands; the session's validated queue.
type Commander interface {
	Submit(panel.Command) error
}

// Source provides the current alarm model.
type Source interface {
	Snapshot() state.Snapshot
}

// Subscriber delivers state events.
type Subscriber interface {
	OnAll(handler state.EventHandler) func()
}

// kindConnection selects session state events in alarm.on.
const kindConnection = "connection"

// alarmEvent is the event table handed to Lua handlers.
type alarmEvent struct {
	Type     string
	Kind     string
	ID       int
	Node     string
	Property string
	Value    interface{}
	Time     time.Time
}

// toAlarmEvent converts bus events scripts can react to.
func toAlarmEvent(event state.Event) (alarmEvent, bool) {
	switch event.Type {
	case state.EventChange:
		c, ok := event.Data.(state.Change)
		if !ok {
			return alarmEvent{}, false
		}
		return alarmEvent{
			Type:     event.Type,
			Kind:     string(c.Kind),
			ID:       c.ID,
			Node:     c.Node,
			Property: c.Property,
			Value:    c.Value,
			Time:     c.Time,
		}, true
	case state.EventConnection:
		cs, ok := event.Data.(state.ConnectionState)
		if !ok {
			return alarmEvent{}, false
		}
		return alarmEvent{
			Type:     event.Type,
			Kind:     kindConnection,
			Property: "state",
			Value:    cs.State,
			Time:     cs.Time,
		}, true
	}
	return alarmEvent{}, false
}

// luaEventHandler is a registered Lua callback with its filter.
// Empty fields match anything.
type luaEventHandler struct {
	kind     string
	id       int
	node     string
	property string
	fn       *lua.LFunction
}

// scriptVM is one Lua state. Live VMs run their callbacks on a single
// goroutine fed through commands.
type scriptVM struct {
	id       string
	state    *lua.LState
	commands chan func(*lua.LState)
	handlers []luaEventHandler
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex // protects handlers

	// dryRun VMs have no callback goroutine; alarm.after only logs.
	dryRun bool
	submit func(panel.Command) error
	log    func(level, msg string)
	notify func(msg string)
}

// Engine runs the enabled scripts and feeds them state events.
type Engine struct {
	cmds     Commander
	source   Source
	bus      Subscriber
	manager  *Manager
	notifier *telegram
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	vms   map[string]*scriptVM
	unsub func()
}

// NewEngine creates an automation engine.
func NewEngine(cmds Commander, source Source, bus Subscriber, mgr *Manager, logger *slog.Logger, notifyCfg NotifyConfig) *Engine {
	logger = logger.With("component", "automation")
	return &Engine{
		cmds:     cmds,
		source:   source,
		bus:      bus,
		manager:  mgr,
		notifier: newTelegram(notifyCfg, logger),
		logger:   logger,
		now:      time.Now,
		vms:      make(map[string]*scriptVM),
	}
}

// Start subscribes to state events and loads all enabled scripts.
func (e *Engine) Start() {
	e.unsub = e.bus.OnAll(e.dispatchEvent)

	scripts, err := e.manager.List()
	if err != nil {
		e.logger.Error("load scripts", "err", err)
		return
	}
	for _, s := range scripts {
		if !s.Meta.Enabled {
			continue
		}
		if err := e.startScript(s); err != nil {
			e.logger.Error("start script", "id", s.ID, "err", err)
		}
	}

	e.mu.Lock()
	n := len(e.vms)
	e.mu.Unlock()
	e.logger.Info("automation engine started", "dir", e.manager.Dir(), "scripts", n)
}

// Stop cancels all VMs and unsubscribes from the bus.
func (e *Engine) Stop() {
	if e.unsub != nil {
		e.unsub()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, vm := range e.vms {
		vm.cancel()
		delete(e.vms, id)
	}
	e.logger.Info("automation engine stopped")
}

// Running lists the ids of the running scripts.
func (e *Engine) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.vms))
	for id := range e.vms {
		ids = append(ids, id)
	}
	return ids
}

// Scripts returns the script manager.
func (e *Engine) Scripts() *Manager { return e.manager }

// ReloadScript stops the old VM, if any, and starts the script again
// when it is enabled.
func (e *Engine) ReloadScript(id string) error {
	e.stopScript(id)

	s, err := e.manager.Get(id)
	if err != nil {
		return fmt.Errorf("get script: %w", err)
	}
	if !s.Meta.Enabled {
		return nil
	}
	return e.startScript(s)
}

// StopScript stops a running script VM.
func (e *Engine) StopScript(id string) {
	e.stopScript(id)
}

// RunScript dry-runs a stored script. See RunLuaCode.
func (e *Engine) RunScript(id string) *RunResult {
	start := time.Now()
	s, err := e.manager.Get(id)
	if err != nil {
		return &RunResult{OK: false, Error: err.Error(), Duration: time.Since(start).String()}
	}
	return e.RunLuaCode(s.LuaCode)
}

// RunLuaCode executes code in a throwaway VM with a 5s budget. Each
// registered handler is then called once with a synthetic event. Panel
// commands and notifications are recorded instead of performed.
func (e *Engine) RunLuaCode(code string) *RunResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		logMu    sync.Mutex
		logs     []string
		commands []string
	)
	record := func(dst *[]string, s string) {
		logMu.Lock()
		*dst = append(*dst, s)
		logMu.Unlock()
	}

	vm := e.newVM(ctx, cancel, "dry-run")
	defer vm.state.Close()
	vm.dryRun = true
	vm.submit = func(c panel.Command) error {
		if _, err := panel.ParseCommand(c, e.source.Snapshot().Config()); err != nil {
			return err
		}
		record(&commands, c.String())
		return nil
	}
	vm.log = func(level, msg string) {
		if level == "info" {
			record(&logs, msg)
			return
		}
		record(&logs, "["+level+"] "+msg)
	}
	vm.notify = func(msg string) { record(&logs, "[notify] "+msg) }
	vm.state.SetContext(ctx)

	result := func(err error) *RunResult {
		r := &RunResult{OK: err == nil, Logs: logs, Commands: commands, Duration: time.Since(start).String()}
		if err != nil {
			r.Error = err.Error()
			if strings.Contains(r.Error, "context deadline exceeded") {
				r.Error = "timeout (5s)"
			}
		}
		return r
	}

	if err := vm.state.DoString(code); err != nil {
		return result(err)
	}

	vm.mu.Lock()
	handlers := append([]luaEventHandler(nil), vm.handlers...)
	vm.mu.Unlock()

	for _, h := range handlers {
		ev := syntheticEvent(h, e.now())
		if err := vm.state.CallByParam(lua.P{Fn: h.fn, NRet: 0, Protect: true}, eventTable(vm.state, ev)); err != nil {
			return result(err)
		}
	}
	return result(nil)
}

// syntheticEvent builds the event a handler would match, with value true.
func syntheticEvent(h luaEventHandler, now time.Time) alarmEvent {
	ev := alarmEvent{Type: state.EventChange, Kind: h.kind, ID: h.id, Node: h.node, Property: h.property, Value: true, Time: now}
	if ev.Kind == kindConnection {
		ev.Type = state.EventConnection
		ev.Value = "connected"
	}
	if ev.Node == "" && ev.ID > 0 {
		ev.Node = state.NodeID(state.Kind(ev.Kind), ev.ID)
	}
	return ev
}

func (e *Engine) stopScript(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if vm, ok := e.vms[id]; ok {
		vm.cancel()
		delete(e.vms, id)
		e.logger.Info("script stopped", "id", id)
	}
}

// newVM creates a sandboxed Lua state with the alarm module registered.
func (e *Engine) newVM(ctx context.Context, cancel context.CancelFunc, id string) *scriptVM {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})

	for _, name := range []string{"os", "io", "loadfile", "dofile", "require", "load", "loadstring", "debug", "package"} {
		L.SetGlobal(name, lua.LNil)
	}

	vm := &scriptVM{
		id:       id,
		state:    L,
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
	}
	registerAlarmModule(L, vm, e)
	return vm
}

func (e *Engine) startScript(s *Script) error {
	ctx, cancel := context.WithCancel(context.Background())
	vm := e.newVM(ctx, cancel, s.ID)
	logger := e.logger.With("script", s.ID)

	vm.submit = e.cmds.Submit
	vm.log = func(level, msg string) {
		switch level {
		case "debug":
			logger.Debug("script log", "msg", msg)
		case "warn":
			logger.Warn("script log", "msg", msg)
		case "error":
			logger.Error("script log", "msg", msg)
		default:
			logger.Info("script log", "msg", msg)
		}
	}
	vm.notify = e.notifier.notifyAsync

	if err := vm.state.DoString(s.LuaCode); err != nil {
		cancel()
		vm.state.Close()
		return fmt.Errorf("execute script %s: %w", s.ID, err)
	}

	e.mu.Lock()
	if old, ok := e.vms[s.ID]; ok {
		old.cancel()
	}
	e.vms[s.ID] = vm
	e.mu.Unlock()

	go func() {
		defer vm.state.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-vm.commands:
				fn(vm.state)
			}
		}
	}()

	e.logger.Info("script started", "id", s.ID, "name", s.Meta.Name)
	return nil
}

// dispatchEvent routes a bus event to every matching Lua handler.
// It never blocks the bus: a full VM queue drops the event.
func (e *Engine) dispatchEvent(event state.Event) {
	ev, ok := toAlarmEvent(event)
	if !ok {
		return
	}

	e.mu.Lock()
	vms := make([]*scriptVM, 0, len(e.vms))
	for _, vm := range e.vms {
		vms = append(vms, vm)
	}
	e.mu.Unlock()

	for _, vm := range vms {
		vm.mu.Lock()
		handlers := append([]luaEventHandler(nil), vm.handlers...)
		vm.mu.Unlock()

		for _, h := range handlers {
			if !matchesHandler(h, ev) {
				continue
			}
			fn := h.fn
			if vm.ctx.Err() != nil {
				break
			}
			select {
			case vm.commands <- func(L *lua.LState) { e.callHandler(L, vm, fn, ev) }:
			default:
				e.logger.Warn("script queue full, dropping event", "script", vm.id, "node", ev.Node, "property", ev.Property)
			}
		}
	}
}

func matchesHandler(h luaEventHandler, ev alarmEvent) bool {
	if h.kind != "" && h.kind != "*" && h.kind != ev.Kind {
		return false
	}
	if h.id != 0 && h.id != ev.ID {
		return false
	}
	if h.node != "" && h.node != ev.Node {
		return false
	}
	if h.property != "" && h.property != ev.Property {
		return false
	}
	return true
}

func (e *Engine) callHandler(L *lua.LState, vm *scriptVM, fn *lua.LFunction, ev alarmEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("lua handler panic", "script", vm.id, "err", r)
		}
	}()

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, eventTable(L, ev)); err != nil {
		e.logger.Error("lua handler error", "script", vm.id, "err", err)
	}
}

// eventTable builds the Lua table passed to handlers. time is unix seconds.
func eventTable(L *lua.LState, ev alarmEvent) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("type", lua.LString(ev.Type))
	t.RawSetString("kind", lua.LString(ev.Kind))
	if ev.ID > 0 {
		t.RawSetString("id", lua.LNumber(ev.ID))
	}
	if ev.Node != "" {
		t.RawSetString("node", lua.LString(ev.Node))
	}
	t.RawSetString("property", lua.LString(ev.Property))
	t.RawSetString("value", goToLua(L, ev.Value))
	if !ev.Time.IsZero() {
		t.RawSetString("time", lua.LNumber(ev.Time.Unix()))
	}
	return t
}

// goToLua converts a Go value to a Lua value.
func goToLua(L *lua.LState, v interface{}) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case uint8:
		return lua.LNumber(val)
	case uint16:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case protocol.ArmMode:
		return lua.LNumber(val)
	case time.Time:
		return lua.LString(val.Format(time.RFC3339))
	case state.LastZoneEvent:
		t := L.NewTable()
		t.RawSetString("zone", lua.LString(val.Node))
		t.RawSetString("label", lua.LString(val.Label))
		t.RawSetString("property", lua.LString(val.Property))
		t.RawSetString("state", lua.LBool(val.State))
		t.RawSetString("time", lua.LString(val.Time.Format(time.RFC3339)))
		return t
	case map[string]interface{}:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	case []interface{}:
		t := L.NewTable()
		for i, vv := range val {
			t.RawSetInt(i+1, goToLua(L, vv))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}
