//go:build !no_automation

package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultTelegramAPI = "https://api.telegram.org"

// NotifyConfig configures alarm.notify. Messages go to a Telegram bot.
type NotifyConfig struct {
	BotToken string
	ChatIDs  []string
	// APIBase overrides the Telegram Bot API endpoint.
	APIBase string
	Timeout time.Duration
}

// telegram sends notifications through the Bot API sendMessage method.
type telegram struct {
	cfg    NotifyConfig
	client *http.Client
	logger *slog.Logger
}

func newTelegram(cfg NotifyConfig, logger *slog.Logger) *telegram {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultTelegramAPI
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &telegram{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (t *telegram) enabled() bool {
	return t.cfg.BotToken != "" && len(t.cfg.ChatIDs) > 0
}

// send delivers text to every configured chat and joins the failures.
func (t *telegram) send(ctx context.Context, text string) error {
	if !t.enabled() {
		return errors.New("telegram: bot_token or chat_ids not configured")
	}
	url := strings.TrimRight(t.cfg.APIBase, "/") + "/bot" + t.cfg.BotToken + "/sendMessage"

	var errs []error
	for _, chatID := range t.cfg.ChatIDs {
		body, err := json.Marshal(map[string]string{"chat_id": chatID, "text": text})
		if err != nil {
			return fmt.Errorf("telegram: encode: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("telegram: request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			errs = append(errs, fmt.Errorf("telegram: chat %s: %w", chatID, err))
			continue
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			errs = append(errs, fmt.Errorf("telegram: chat %s: status %d", chatID, resp.StatusCode))
		}
	}
	return errors.Join(errs...)
}

// notifyAsync is the fire-and-forget form used by scripts.
func (t *telegram) notifyAsync(text string) {
	if !t.enabled() {
		t.logger.Warn("alarm.notify: telegram not configured")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.Timeout)
		defer cancel()
		if err := t.send(ctx, text); err != nil {
			t.logger.Error("notification failed", "err", err)
		}
	}()
}
