package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"securecheckout/internal/models"
)

// Placement carries everything needed to turn a frozen basket and an accepted
// gateway reply into an order.
type Placement struct {
	Basket        *models.Basket
	Number        string
	ShippingCode  string
	Email         string
	Currency      string
	Amount        decimal.Decimal
	TransactionID string
	Decision      string
	RequestToken  string
	Reply         map[string]string
	Card          CardDetails
}

// CardDetails is the non-sensitive card description returned by the gateway.
type CardDetails struct {
	Token            string
	MaskedCardNumber string
	CardType         string
	Expiry           string
}

func (c CardDetails) empty() bool {
	return c.Token == "" && c.MaskedCardNumber == ""
}

// OrderRepository handles order and payment provenance database operations.
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// PlaceAuthorized writes the reply log, payment token, order, payment source,
// transaction and payment event in one database transaction and marks the basket submitted.
// When the gateway transaction id is already recorded nothing is written and
// ErrDuplicateTransaction is returned.
func (r *OrderRepository) PlaceAuthorized(ctx context.Context, p *Placement) (*models.Order, error) {
	var order *models.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		log, err := models.NewReplyLog(p.Reply)
		if err != nil {
			return fmt.Errorf("encode reply log: %w", err)
		}
		if err := tx.Create(log).Error; err != nil {
			return err
		}

		var tokenID *uint
		if !p.Card.empty() {
			token := models.PaymentToken{
				LogID:            log.ID,
				Token:            p.Card.Token,
				MaskedCardNumber: p.Card.MaskedCardNumber,
				CardType:         p.Card.CardType,
				Expiry:           p.Card.Expiry,
			}
			if err := tx.Create(&token).Error; err != nil {
				return err
			}
			tokenID = &token.ID
		}

		order = &models.Order{
			Number:       p.Number,
			BasketID:     p.Basket.ID,
			Status:       models.OrderStatusAuthorized,
			Currency:     p.Currency,
			Total:        p.Amount,
			ShippingCode: p.ShippingCode,
			Email:        p.Email,
		}
		for _, line := range p.Basket.Lines {
			order.Lines = append(order.Lines, models.OrderLine{
				ProductID: line.ProductID,
				SKU:       line.SKU,
				Title:     line.Title,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPriceInclTax(),
				LineTotal: line.LineTotal(),
			})
		}
		if err := tx.Create(order).Error; err != nil {
			return err
		}

		source := models.PaymentSource{
			OrderID:         order.ID,
			SourceType:      models.SourceTypeSecureAcceptance,
			Currency:        p.Currency,
			AmountAllocated: p.Amount,
			AmountDebited:   decimal.Zero,
			AmountRefunded:  decimal.Zero,
			Reference:       p.TransactionID,
		}
		if err := tx.Create(&source).Error; err != nil {
			return err
		}

		txn := models.Transaction{
			OrderID:      order.ID,
			SourceID:     source.ID,
			TokenID:      tokenID,
			LogID:        log.ID,
			TxnType:      models.TxnTypeAuthorise,
			Amount:       p.Amount,
			Reference:    p.TransactionID,
			Status:       p.Decision,
			RequestToken: p.RequestToken,
		}
		if err := tx.Create(&txn).Error; err != nil {
			return err
		}

		event := models.PaymentEvent{
			OrderID:   order.ID,
			EventType: models.EventTypeAuthorise,
			Amount:    p.Amount,
			Reference: p.TransactionID,
		}
		for _, line := range order.Lines {
			event.Quantities = append(event.Quantities, models.PaymentEventQuantity{
				LineID:   line.ID,
				Quantity: line.Quantity,
			})
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		return tx.Model(&models.Basket{}).
			Where("id = ?", p.Basket.ID).
			Update("status", models.BasketSubmitted).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateTransaction
		}
		return nil, err
	}
	return order, nil
}

// FindByTransactionReference returns the order whose transaction carries the
// given gateway transaction id.
func (r *OrderRepository) FindByTransactionReference(ctx context.Context, reference string) (*models.Order, error) {
	db := r.db.WithContext(ctx)

	var txn models.Transaction
	if err := db.Where("reference = ?", reference).First(&txn).Error; err != nil {
		return nil, notFound(err)
	}
	return r.FindByID(ctx, txn.OrderID)
}

// FindByID returns an order with its lines.
func (r *OrderRepository) FindByID(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// FindTransaction returns the transaction row for a gateway transaction id.
func (r *OrderRepository) FindTransaction(ctx context.Context, reference string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&txn).Error; err != nil {
		return nil, notFound(err)
	}
	return &txn, nil
}

// CountTransactions returns the number of recorded transactions.
func (r *OrderRepository) CountTransactions(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).Count(&n).Error
	return n, err
}
