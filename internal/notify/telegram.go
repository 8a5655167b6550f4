package notify

import (
	"context"
	"fmt"
	"html"

	"securecheckout/internal/models"
	"securecheckout/internal/payment"
)

// Messenger sends a text message to a chat.
type Messenger interface {
	SendMessage(chatID string, text string, replyMarkup interface{}) (string, error)
}

// TelegramReporter posts a short report for every placed order to a channel.
type TelegramReporter struct {
	bot    Messenger
	chatID string
}

func NewTelegramReporter(bot Messenger, chatID string) *TelegramReporter {
	return &TelegramReporter{bot: bot, chatID: chatID}
}

func (r *TelegramReporter) OrderPlaced(_ context.Context, order *models.Order) error {
	text := fmt.Sprintf(
		"🛒 New order\n\nNumber: <code>%s</code>\nAmount: %s %s\nItems: %d\nShipping: %s",
		html.EscapeString(order.Number),
		payment.FormatAmount(order.Total, order.Currency),
		html.EscapeString(order.Currency),
		order.NumItems(),
		html.EscapeString(order.ShippingCode),
	)
	if _, err := r.bot.SendMessage(r.chatID, text, nil); err != nil {
		return fmt.Errorf("report order %s: %w", order.Number, err)
	}
	return nil
}
