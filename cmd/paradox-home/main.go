package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"paradox-go-home/internal/metrics"
	"paradox-go-home/internal/panel"
	"paradox-go-home/internal/protocol"
	"paradox-go-home/internal/state"
	"paradox-go-home/internal/store"
	"paradox-go-home/internal/transport"
	"paradox-go-home/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "paradox-home",
	Short: "Paradox alarm panel to MQTT bridge",
	Long: `paradox-home talks to a Paradox SP/MG alarm panel over its serial
interface and exposes the panel as a Homie device with Home Assistant
discovery, plus a small HTTP API and Lua automations.

Every config key can be overridden with a PARADOX_ environment variable,
for example PARADOX_SERIAL_PORT=/dev/ttyS1.`,
	SilenceUsage: true,
	RunE:         runBridge,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the panel and serve until interrupted",
	RunE:  runBridge,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "paradox-home", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "Path to the YAML config file")
	rootCmd.AddCommand(runCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBridge(_ *cobra.Command, _ []string) error {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		return err
	}
	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		return err
	}
	model, _ := protocol.ParseModel(cfg.Panel.Model)

	logger := newLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	logger.Info("paradox-home starting", "version", version, "model", model.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := state.NewEventBus(logger)
	st := state.NewStore(state.Config{
		Zones:   cfg.Panel.Zones,
		Users:   cfg.Panel.Users,
		Outputs: cfg.Panel.Outputs,
	}, bus, logger)
	bus.OnAll(metrics.NewObserver().Handle)

	// Open store
	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		return err
	}
	defer db.Close()

	if n, err := store.RestoreLabels(db, st); err != nil {
		logger.Warn("restore labels", "err", err)
	} else if n > 0 {
		logger.Info("labels restored from cache", "count", n)
	}
	if last, err := store.LastPanel(db); err != nil {
		logger.Warn("read cached panel identity", "err", err)
	} else if last != nil {
		logger.Info("last seen panel", "name", last.Name, "id", last.PanelID, "seen_at", last.SeenAt)
	}
	identity := store.NewIdentityRecorder(db, st, logger)
	unsubIdentity := bus.OnAll(identity.Handle)
	defer func() {
		unsubIdentity()
		identity.Close()
	}()

	link, err := transport.Open(ctx, transport.Config{
		Port:        cfg.Serial.Port,
		BaudRate:    cfg.Serial.Baud,
		OpenTimeout: cfg.Serial.OpenTimeout,
	}, logger)
	if err != nil {
		logger.Error("open serial port", "err", err)
		return err
	}
	defer link.Close()

	sess := panel.NewSession(panel.Config{
		Model:        model,
		KeepAlive:    cfg.Panel.KeepAlive,
		ReadLabels:   cfg.Panel.ReadLabels,
		PublishAll:   cfg.Homie.PublishAll,
		InitInterval: cfg.Homie.InitInterval,
		OutputPulse:  cfg.Panel.OutputPulse,
		ReplyTimeout: cfg.Panel.ReplyTimeout,
		MaxTries:     cfg.Panel.MaxTries,
		TimeDiff:     cfg.Panel.TimeDiff,
	}, link, st, bus, db, logger)

	// Start automation engine (no-op when built with no_automation tag).
	auto, autoWebOpts := initAutomation(sess, st, bus, cfg, logger)

	webOpts := []web.ServerOption{web.WithVersion(version)}
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, autoWebOpts...)
	webServer := web.NewServer(st, sess, bus, logger, webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
		}
	}()

	// Start MQTT bridge (no-op when built with no_mqtt tag).
	mqtt := initMQTT(ctx, sess, st, bus, cfg, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("panel session", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	auto.Stop()
	mqtt.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()

	logger.Info("goodbye")
	return nil
}
