package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const OrderStatusAuthorized = "Authorized"

// Order maps to the `orders` table. Number is the merchant reference sent to the gateway.
type Order struct {
	ID           uint            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Number       string          `gorm:"column:number;size:64;uniqueIndex" json:"number"`
	BasketID     uint            `gorm:"column:basket_id;index" json:"basket_id"`
	Status       string          `gorm:"column:status;size:32" json:"status"`
	Currency     string          `gorm:"column:currency;size:3" json:"currency"`
	Total        decimal.Decimal `gorm:"column:total;type:decimal(12,2)" json:"total"`
	ShippingCode string          `gorm:"column:shipping_code;size:64" json:"shipping_code"`
	Email        string          `gorm:"column:email;size:255" json:"email"`
	CreatedAt    time.Time       `gorm:"column:created_at" json:"created_at"`
	Lines        []OrderLine     `gorm:"foreignKey:OrderID" json:"lines"`
}

func (Order) TableName() string {
	return "orders"
}

// NumItems returns the sum of line quantities.
func (o *Order) NumItems() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

// OrderLine maps to the `order_lines` table.
type OrderLine struct {
	ID        uint            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrderID   uint            `gorm:"column:order_id;index" json:"order_id"`
	ProductID uint            `gorm:"column:product_id" json:"product_id"`
	SKU       string          `gorm:"column:sku;size:128" json:"sku"`
	Title     string          `gorm:"column:title;size:255" json:"title"`
	Quantity  int             `gorm:"column:quantity" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:decimal(12,2)" json:"unit_price"`
	LineTotal decimal.Decimal `gorm:"column:line_total;type:decimal(12,2)" json:"line_total"`
}

func (OrderLine) TableName() string {
	return "order_lines"
}
