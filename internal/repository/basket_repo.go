package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"securecheckout/internal/models"
)

// BasketRepository handles basket database operations.
type BasketRepository struct {
	db *gorm.DB
}

func NewBasketRepository(db *gorm.DB) *BasketRepository {
	return &BasketRepository{db: db}
}

// Create opens an empty basket.
func (r *BasketRepository) Create(ctx context.Context, currency string) (*models.Basket, error) {
	basket := &models.Basket{Status: models.BasketOpen, Currency: currency}
	if err := r.db.WithContext(ctx).Create(basket).Error; err != nil {
		return nil, err
	}
	return basket, nil
}

// Get returns a basket with its lines.
func (r *BasketRepository) Get(ctx context.Context, id uint) (*models.Basket, error) {
	return findBasket(r.db.WithContext(ctx), id)
}

func findBasket(db *gorm.DB, id uint) (*models.Basket, error) {
	var basket models.Basket
	err := db.Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("id = ?", id).
		First(&basket).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &basket, nil
}

// Editable returns the basket when it is still open, otherwise a fresh open basket
// in the same currency. The frozen basket is never touched.
func (r *BasketRepository) Editable(ctx context.Context, id uint, currency string) (*models.Basket, error) {
	if id != 0 {
		basket, err := r.Get(ctx, id)
		switch {
		case err == nil && basket.Editable():
			return basket, nil
		case err == nil:
			currency = basket.Currency
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}
	return r.Create(ctx, currency)
}

// AddProduct adds quantity units of product to an open basket, merging with an existing line.
func (r *BasketRepository) AddProduct(ctx context.Context, basketID uint, product *models.Product, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("invalid quantity %d", quantity)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		basket, err := findBasket(tx, basketID)
		if err != nil {
			return err
		}
		if !basket.Editable() {
			return ErrBasketFrozen
		}
		if basket.Currency != product.Currency {
			return fmt.Errorf("product currency %s does not match basket currency %s", product.Currency, basket.Currency)
		}

		for _, line := range basket.Lines {
			if line.ProductID == product.ID {
				return tx.Model(&models.BasketLine{}).
					Where("id = ?", line.ID).
					Update("quantity", line.Quantity+quantity).Error
			}
		}

		line := models.BasketLine{
			BasketID:  basket.ID,
			ProductID: product.ID,
			SKU:       product.SKU,
			Title:     product.Title,
			Quantity:  quantity,
			UnitPrice: product.Price,
		}
		return tx.Create(&line).Error
	})
}

// Freeze persists the line tax annotations and moves an open basket to Frozen.
// Freezing an already frozen basket is a no-op.
func (r *BasketRepository) Freeze(ctx context.Context, basket *models.Basket) error {
	if basket.Status == models.BasketFrozen {
		return nil
	}
	if basket.Status != models.BasketOpen {
		return ErrBasketFrozen
	}

	now := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, line := range basket.Lines {
			if err := tx.Model(&models.BasketLine{}).
				Where("id = ?", line.ID).
				Update("unit_tax", line.UnitTax).Error; err != nil {
				return err
			}
		}

		res := tx.Model(&models.Basket{}).
			Where("id = ? AND status = ?", basket.ID, models.BasketOpen).
			Updates(map[string]interface{}{"status": models.BasketFrozen, "frozen_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrBasketFrozen
		}
		return nil
	})
	if err != nil {
		return err
	}

	basket.Status = models.BasketFrozen
	basket.FrozenAt = &now
	return nil
}

// CountStaleFrozen counts baskets frozen before the given time that never became an order.
func (r *BasketRepository) CountStaleFrozen(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Basket{}).
		Where("status = ? AND frozen_at < ?", models.BasketFrozen, before).
		Count(&n).Error
	return n, err
}
