//go:build no_automation

package main

import (
	"log/slog"

	"paradox-go-home/internal/panel"
	"paradox-go-home/internal/state"
	"paradox-go-home/internal/web"
)

type autoStopper struct{}

func (a *autoStopper) Stop() {}

func initAutomation(_ *panel.Session, _ *state.Store, _ *state.EventBus, _ *Config, _ *slog.Logger) (*autoStopper, []web.ServerOption) {
	return &autoStopper{}, nil
}
