package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/akamgm/arlog/internal/event"
)

// Telegram sends events to one or more chat IDs through a bot.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
}

func NewTelegram(token string, chatIDs []int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatIDs: chatIDs}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(_ context.Context, ev event.Event) error {
	text := title(ev) + "\n" + body(ev)
	var lastErr error
	for _, id := range t.chatIDs {
		if _, err := t.bot.Send(tgbotapi.NewMessage(id, text)); err != nil {
			lastErr = fmt.Errorf("send to chat %d: %w", id, err)
		}
	}
	return lastErr
}
