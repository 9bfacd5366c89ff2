//go:build no_automation

package automation

import (
	"errors"
	"log/slog"
	"time"

	"paradox-go-home/internal/panel"
	"paradox-go-home/internal/state"
)

var errDisabled = errors.New("automation disabled")

// ErrScriptNotFound is returned for an unknown script id.
var ErrScriptNotFound = errors.New("automation: script not found")

// ScriptMeta holds user-editable metadata for a script.
type ScriptMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// Script is one automation script.
type Script struct {
	ID       string     `json:"id"`
	Meta     ScriptMeta `json:"meta"`
	LuaCode  string     `json:"lua_code"`
	FilePath string     `json:"-"`
}

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Commands []string `json:"commands,omitempty"`
	Duration string   `json:"duration"`
}

// NotifyConfig configures alarm.notify (stub).
type NotifyConfig struct {
	BotToken string
	ChatIDs  []string
	APIBase  string
	Timeout  time.Duration
}

// Commander accepts panel commands.
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

// Manager is a no-op stub when automation is disabled.
type Manager struct{}

// NewManager returns a nil manager when automation is disabled.
func NewManager(_ string) (*Manager, error) { return nil, nil }

// Dir returns "".
func (m *Manager) Dir() string { return "" }

// List returns nil.
func (m *Manager) List() ([]*Script, error) { return nil, nil }

// Get always fails.
func (m *Manager) Get(_ string) (*Script, error) { return nil, errDisabled }

// Save always fails.
func (m *Manager) Save(_ *Script) (*Script, error) { return nil, errDisabled }

// Delete always fails.
func (m *Manager) Delete(_ string) error { return errDisabled }

// Engine is a no-op stub when automation is disabled.
type Engine struct{}

// NewEngine returns a no-op engine when automation is disabled.
func NewEngine(_ Commander, _ Source, _ Subscriber, _ *Manager, _ *slog.Logger, _ NotifyConfig) *Engine {
	return &Engine{}
}

// Start is a no-op.
func (e *Engine) Start() {}

// Stop is a no-op.
func (e *Engine) Stop() {}

// Running returns nil.
func (e *Engine) Running() []string { return nil }

// Scripts returns nil.
func (e *Engine) Scripts() *Manager { return nil }

// ReloadScript is a no-op.
func (e *Engine) ReloadScript(_ string) error { return nil }

// StopScript is a no-op.
func (e *Engine) StopScript(_ string) {}

// RunScript returns a stub result.
func (e *Engine) RunScript(_ string) *RunResult {
	return &RunResult{OK: false, Error: errDisabled.Error()}
}

// RunLuaCode returns a stub result.
func (e *Engine) RunLuaCode(_ string) *RunResult {
	return &RunResult{OK: false, Error: errDisabled.Error()}
}
