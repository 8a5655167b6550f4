// Package notify holds the order-placed listeners wired into the checkout hook chain.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"securecheckout/internal/models"
	"securecheckout/internal/payment"
)

// OrderPlacedEvent is the payload published for every new order.
type OrderPlacedEvent struct {
	Number       string    `json:"number"`
	Status       string    `json:"status"`
	Total        string    `json:"total"`
	Currency     string    `json:"currency"`
	Items        int       `json:"items"`
	ShippingCode string    `json:"shipping_code"`
	PlacedAt     time.Time `json:"placed_at"`
}

func newEvent(order *models.Order) OrderPlacedEvent {
	return OrderPlacedEvent{
		Number:       order.Number,
		Status:       order.Status,
		Total:        payment.FormatAmount(order.Total, order.Currency),
		Currency:     order.Currency,
		Items:        order.NumItems(),
		ShippingCode: order.ShippingCode,
		PlacedAt:     order.CreatedAt.UTC(),
	}
}

// LogListener writes one log line per placed order.
type LogListener struct {
	logger *zap.Logger
}

func NewLogListener(logger *zap.Logger) *LogListener {
	return &LogListener{logger: logger}
}

func (l *LogListener) OrderPlaced(_ context.Context, order *models.Order) error {
	l.logger.Info("Order confirmation queued",
		zap.String("order", order.Number),
		zap.String("email", order.Email),
		zap.Int("items", order.NumItems()),
	)
	return nil
}

var (
	_ payment.OrderPlacedListener = (*LogListener)(nil)
	_ payment.OrderPlacedListener = (*TelegramReporter)(nil)
	_ payment.OrderPlacedListener = (*KafkaPublisher)(nil)
)
