package telegram

import (
	"context"
	"fmt"
	"time"

	"sapas/config"
	"sapas/pkg/logger"

	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"
)

// Notifier pushes plain-text notifications to a single operations chat,
// throttled by a global rate limiter so the bot API never rejects us.
type Notifier struct {
	cfg     *config.TelegramConfig
	log     *logger.Logger
	bot     *telebot.Bot
	limiter *rate.Limiter
}

func NewNotifier(cfg *config.TelegramConfig, log *logger.Logger) (*Notifier, error) {
	if !cfg.Enabled {
		return &Notifier{cfg: cfg, log: log}, nil
	}

	// No poller: the bot only sends, it never receives updates.
	bot, err := telebot.NewBot(telebot.Settings{Token: cfg.BotToken})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Notifier{
		cfg:     cfg,
		log:     log,
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(cfg.MaxGlobalRequestPerSecond), cfg.MaxGlobalRequestPerSecond),
	}, nil
}

// Send delivers a message to the configured chat. Disabled notifiers are a
// no-op so callers never need to branch.
func (n *Notifier) Send(ctx context.Context, text string) error {
	if n.bot == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	chat := &telebot.Chat{ID: n.cfg.ChatID}
	if _, err := n.bot.Send(chat, text, telebot.ModeMarkdown); err != nil {
		n.log.WarnContext(ctx, "Failed to send telegram notification", logger.ErrorField(err))
		return err
	}
	return nil
}
