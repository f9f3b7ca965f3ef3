package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"rule-engine-service/internal/config"
	"rule-engine-service/internal/models"
)

// telegramConfig holds bot token and chat ID for a Telegram contact point.
type telegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatID   int64  `json:"chat_id"`
}

var (
	telegramLimiter *rate.Limiter
	limiterOnce     sync.Once
)

// TelegramRecipient extracts the chat id from a contact point, as a string
// for the attempt ledger.
func TelegramRecipient(cp models.ContactPoint) string {
	var tCfg telegramConfig
	if err := json.Unmarshal(cp.Configuration, &tCfg); err != nil {
		return ""
	}
	return fmt.Sprintf("%d", tCfg.ChatID)
}

// SendTelegram delivers an alert notification via the Telegram Bot API,
// throttled by a global rate limiter.
func SendTelegram(ctx context.Context, cp models.ContactPoint, subject, body string, cfg config.Config) error {
	limiterOnce.Do(func() {
		r := cfg.Telegram.RatePerSecond
		telegramLimiter = rate.NewLimiter(rate.Limit(float64(r)), r)
	})
	if err := telegramLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit wait failed: %w", err)
	}

	var tCfg telegramConfig
	if err := json.Unmarshal(cp.Configuration, &tCfg); err != nil {
		return fmt.Errorf("invalid Telegram configuration for contact point %s: %w", cp.ID, err)
	}
	if tCfg.BotToken == "" {
		return fmt.Errorf("missing bot_token in Telegram configuration for contact point %s", cp.ID)
	}
	if tCfg.ChatID == 0 {
		return fmt.Errorf("missing chat_id in Telegram configuration for contact point %s", cp.ID)
	}

	b, err := bot.New(tCfg.BotToken)
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram bot for contact point %s: %w", cp.ID, err)
	}

	params := &bot.SendMessageParams{
		ChatID:    tCfg.ChatID,
		Text:      fmt.Sprintf("*%s*\n%s", subject, body),
		ParseMode: "Markdown",
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", tCfg.ChatID, err)
	}
	return nil
}
