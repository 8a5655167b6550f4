package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	SourceTypeSecureAcceptance = "Secure Acceptance"
	TxnTypeAuthorise           = "Authorise"
	EventTypeAuthorise         = "Authorise"
)

// PaymentSource maps to the `payment_sources` table and tracks running totals for one order.
type PaymentSource struct {
	ID              uint            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrderID         uint            `gorm:"column:order_id;index" json:"order_id"`
	SourceType      string          `gorm:"column:source_type;size:64" json:"source_type"`
	Currency        string          `gorm:"column:currency;size:3" json:"currency"`
	AmountAllocated decimal.Decimal `gorm:"column:amount_allocated;type:decimal(12,2)" json:"amount_allocated"`
	AmountDebited   decimal.Decimal `gorm:"column:amount_debited;type:decimal(12,2)" json:"amount_debited"`
	AmountRefunded  decimal.Decimal `gorm:"column:amount_refunded;type:decimal(12,2)" json:"amount_refunded"`
	Reference       string          `gorm:"column:reference;size:128" json:"reference"`
	CreatedAt       time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (PaymentSource) TableName() string {
	return "payment_sources"
}

// ReplyLog maps to the `reply_logs` table and keeps the gateway reply verbatim.
type ReplyLog struct {
	ID        uint           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Data      datatypes.JSON `gorm:"column:data" json:"data"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (ReplyLog) TableName() string {
	return "reply_logs"
}

// NewReplyLog encodes the posted fields.
func NewReplyLog(fields map[string]string) (*ReplyLog, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return &ReplyLog{Data: datatypes.JSON(raw)}, nil
}

// Fields decodes the stored reply.
func (l *ReplyLog) Fields() (map[string]string, error) {
	fields := make(map[string]string)
	if len(l.Data) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(l.Data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Field returns a single reply field, or "" when absent or undecodable.
func (l *ReplyLog) Field(name string) string {
	fields, err := l.Fields()
	if err != nil {
		return ""
	}
	return fields[name]
}

// PaymentToken maps to the `payment_tokens` table. It never holds a full card number.
type PaymentToken struct {
	ID               uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	LogID            uint      `gorm:"column:log_id;index" json:"log_id"`
	Token            string    `gorm:"column:token;size:64" json:"token"`
	MaskedCardNumber string    `gorm:"column:masked_card_number;size:32" json:"masked_card_number"`
	CardType         string    `gorm:"column:card_type;size:8" json:"card_type"`
	Expiry           string    `gorm:"column:expiry;size:16" json:"expiry"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
}

func (PaymentToken) TableName() string {
	return "payment_tokens"
}

// Transaction maps to the `transactions` table. Reference holds the gateway
// transaction id and is unique, which is what keeps reply handling idempotent.
type Transaction struct {
	ID           uint            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrderID      uint            `gorm:"column:order_id;index" json:"order_id"`
	SourceID     uint            `gorm:"column:source_id;index" json:"source_id"`
	TokenID      *uint           `gorm:"column:token_id" json:"token_id,omitempty"`
	LogID        uint            `gorm:"column:log_id" json:"log_id"`
	TxnType      string          `gorm:"column:txn_type;size:32" json:"txn_type"`
	Amount       decimal.Decimal `gorm:"column:amount;type:decimal(12,2)" json:"amount"`
	Reference    string          `gorm:"column:reference;size:128;uniqueIndex" json:"reference"`
	Status       string          `gorm:"column:status;size:32" json:"status"`
	RequestToken string          `gorm:"column:request_token;size:512" json:"request_token"`
	CreatedAt    time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// PaymentEvent maps to the `payment_events` table.
type PaymentEvent struct {
	ID         uint                   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrderID    uint                   `gorm:"column:order_id;index" json:"order_id"`
	EventType  string                 `gorm:"column:event_type;size:32" json:"event_type"`
	Amount     decimal.Decimal        `gorm:"column:amount;type:decimal(12,2)" json:"amount"`
	Reference  string                 `gorm:"column:reference;size:128" json:"reference"`
	CreatedAt  time.Time              `gorm:"column:created_at" json:"created_at"`
	Quantities []PaymentEventQuantity `gorm:"foreignKey:EventID" json:"quantities"`
}

func (PaymentEvent) TableName() string {
	return "payment_events"
}

// PaymentEventQuantity maps to the `payment_event_quantities` table.
type PaymentEventQuantity struct {
	ID       uint `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	EventID  uint `gorm:"column:event_id;index" json:"event_id"`
	LineID   uint `gorm:"column:line_id" json:"line_id"`
	Quantity int  `gorm:"column:quantity" json:"quantity"`
}

func (PaymentEventQuantity) TableName() string {
	return "payment_event_quantities"
}
