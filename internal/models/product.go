package models

import "github.com/shopspring/decimal"

// Product maps to the `products` table.
type Product struct {
	ID         uint            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SKU        string          `gorm:"column:sku;size:128;index" json:"sku"`
	Title      string          `gorm:"column:title;size:255" json:"title"`
	Price      decimal.Decimal `gorm:"column:price;type:decimal(12,2)" json:"price"`
	Currency   string          `gorm:"column:currency;size:3" json:"currency"`
	NumInStock int             `gorm:"column:num_in_stock" json:"num_in_stock"`
}

func (Product) TableName() string {
	return "products"
}
