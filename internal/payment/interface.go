package payment

import (
	"context"

	"securecheckout/internal/models"
	"securecheckout/internal/repository"
	"securecheckout/internal/session"
)

// BasketStore is what the checkout core needs from the basket collaborator.
type BasketStore interface {
	Get(ctx context.Context, id uint) (*models.Basket, error)
	Freeze(ctx context.Context, basket *models.Basket) error
}

// OrderStore persists accepted replies and finds orders by gateway transaction id.
type OrderStore interface {
	PlaceAuthorized(ctx context.Context, p *repository.Placement) (*models.Order, error)
	FindByTransactionReference(ctx context.Context, reference string) (*models.Order, error)
}

// SessionSaver persists session state after the core changes it.
type SessionSaver interface {
	Save(ctx context.Context, s *session.Session) error
}

// Address is a postal address as sent to the gateway.
type Address struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

// BillingInfo is the payer's contact email and, optionally, billing address.
type BillingInfo struct {
	Email   string   `json:"email"`
	Address *Address `json:"address,omitempty"`
}

// ClientContext carries request-scoped details from the payer's browser.
type ClientContext struct {
	IPAddress         string
	DeviceFingerprint string
}
