package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rotisserie/eris"

	"github.com/dealwatch/dealwatch/internal/model"
)

// TelegramNotifier sends alert messages to a Telegram chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier authenticates the bot and returns the notifier.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, eris.Wrap(err, "telegram: authorize bot")
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) Notify(_ context.Context, event model.NotificationEvent) error {
	title := event.ProductTitle
	if title == "" {
		title = event.ProductURL
	}
	text := fmt.Sprintf(
		"Price alert!\n\n%s\nNow: %s (target %s)\n\n%s",
		title,
		event.ObservedPrice,
		event.TargetPrice,
		event.ProductURL,
	)

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = false
	if _, err := t.bot.Send(msg); err != nil {
		return eris.Wrap(err, "telegram: send message")
	}
	return nil
}
