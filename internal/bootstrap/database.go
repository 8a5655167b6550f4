package bootstrap

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"securecheckout/internal/models"
)

// Migrate ensures all checkout tables exist.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}

// MigrateAndSeed migrates and, when seedCatalog is set, inserts the sandbox catalog
// into an empty products table.
func MigrateAndSeed(db *gorm.DB, seedCatalog bool, currency string) error {
	if err := Migrate(db); err != nil {
		return err
	}
	if !seedCatalog {
		return nil
	}
	if err := seedProducts(db, currency); err != nil {
		return fmt.Errorf("seed products failed: %w", err)
	}
	return nil
}

func allModels() []interface{} {
	return []interface{}{
		// Catalog and baskets
		&models.Product{},
		&models.Basket{},
		&models.BasketLine{},
		// Orders and payment provenance
		&models.Order{},
		&models.OrderLine{},
		&models.PaymentSource{},
		&models.ReplyLog{},
		&models.PaymentToken{},
		&models.Transaction{},
		&models.PaymentEvent{},
		&models.PaymentEventQuantity{},
	}
}

func seedProducts(db *gorm.DB, currency string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Product{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		rows := []models.Product{
			{SKU: "SBX-WIDGET", Title: "Sandbox Widget", Price: decimal.RequireFromString("10.00"), Currency: currency, NumInStock: 100},
			{SKU: "SBX-SAMPLE", Title: "Free Sample", Price: decimal.Zero, Currency: currency, NumInStock: 100},
		}
		return tx.Create(&rows).Error
	})
}
