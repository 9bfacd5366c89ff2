//go:build !no_automation

package main

import (
	"log/slog"

	"paradox-go-home/internal/automation"
	"paradox-go-home/internal/panel"
	"paradox-go-home/internal/state"
	"paradox-go-home/internal/web"
)

type autoStopper struct {
	engine *automation.Engine
}

func (a *autoStopper) Stop() {
	if a.engine != nil {
		a.engine.Stop()
	}
}

func initAutomation(sess *panel.Session, st *state.Store, bus *state.EventBus, cfg *Config, logger *slog.Logger) (*autoStopper, []web.ServerOption) {
	scriptMgr, err := automation.NewManager(cfg.ScriptsDir)
	if err != nil {
		logger.Error("create script manager", "err", err)
		return &autoStopper{}, nil
	}

	engine := automation.NewEngine(sess, st, bus, scriptMgr, logger, automation.NotifyConfig{
		BotToken: cfg.Telegram.BotToken,
		ChatIDs:  cfg.Telegram.ChatIDs,
		APIBase:  cfg.Telegram.APIBase,
	})
	engine.Start()

	return &autoStopper{engine: engine}, []web.ServerOption{web.WithAutomation(engine)}
}
