package payment

import (
	"context"
	"errors"

	"securecheckout/internal/models"
	"securecheckout/internal/repository"
)

// Guard answers whether a gateway transaction id has already produced an order.
// It relies on the unique index on Transaction.Reference; the insert race is
// resolved by the store returning repository.ErrDuplicateTransaction, after which
// the guard is consulted again.
type Guard struct {
	orders OrderStore
}

func NewGuard(orders OrderStore) *Guard {
	return &Guard{orders: orders}
}

// Resolve returns the order recorded for transactionID, or nil when it is unseen.
func (g *Guard) Resolve(ctx context.Context, transactionID string) (*models.Order, error) {
	order, err := g.orders.FindByTransactionReference(ctx, transactionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}
