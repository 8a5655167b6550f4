package session

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrInvalidID = errors.New("session: empty id")

// PendingAuthorization links a frozen basket to the reference sent to the gateway.
type PendingAuthorization struct {
	BasketID     uint            `json:"basket_id"`
	Reference    string          `json:"reference"`
	ShippingCode string          `json:"shipping_code"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
}

// Session is the checkout state kept per browser.
// Only the request builder and the reply processor write Pending, OrderID and ResolvedReference.
type Session struct {
	ID                string                `json:"-"`
	BasketID          uint                  `json:"basket_id,omitempty"`
	Pending           *PendingAuthorization `json:"pending,omitempty"`
	OrderID           uint                  `json:"order_id,omitempty"`
	ResolvedReference string                `json:"resolved_reference,omitempty"`
}

// Resolve records a placed order and drops the pending authorization.
// The active basket pointer is cleared when it still points at the frozen basket.
func (s *Session) Resolve(orderID uint) {
	if s.Pending != nil {
		if s.BasketID == s.Pending.BasketID {
			s.BasketID = 0
		}
		s.ResolvedReference = s.Pending.Reference
	}
	s.Pending = nil
	s.OrderID = orderID
}

// Store loads and saves sessions by id. Load returns an empty session for unknown ids.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
}
