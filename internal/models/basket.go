package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BasketStatus string

const (
	BasketOpen      BasketStatus = "Open"
	BasketFrozen    BasketStatus = "Frozen"
	BasketSubmitted BasketStatus = "Submitted"
)

// Basket maps to the `baskets` table. Only an Open basket accepts new lines;
// a Frozen basket is waiting on a gateway reply and a Submitted one has become an order.
type Basket struct {
	ID        uint         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Status    BasketStatus `gorm:"column:status;size:16;index" json:"status"`
	Currency  string       `gorm:"column:currency;size:3" json:"currency"`
	FrozenAt  *time.Time   `gorm:"column:frozen_at" json:"frozen_at,omitempty"`
	CreatedAt time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time    `gorm:"column:updated_at" json:"updated_at"`
	Lines     []BasketLine `gorm:"foreignKey:BasketID" json:"lines"`
}

func (Basket) TableName() string {
	return "baskets"
}

func (b *Basket) Editable() bool {
	return b.Status == BasketOpen
}

func (b *Basket) IsEmpty() bool {
	return len(b.Lines) == 0
}

// NumItems returns the sum of line quantities.
func (b *Basket) NumItems() int {
	n := 0
	for _, l := range b.Lines {
		n += l.Quantity
	}
	return n
}

// Total returns the sum of line totals including any tax annotations.
func (b *Basket) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.Lines {
		total = total.Add(l.LineTotal())
	}
	return total
}

// BasketLine maps to the `basket_lines` table.
type BasketLine struct {
	ID        uint            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	BasketID  uint            `gorm:"column:basket_id;index" json:"basket_id"`
	ProductID uint            `gorm:"column:product_id" json:"product_id"`
	SKU       string          `gorm:"column:sku;size:128" json:"sku"`
	Title     string          `gorm:"column:title;size:255" json:"title"`
	Quantity  int             `gorm:"column:quantity" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:decimal(12,2)" json:"unit_price"`
	UnitTax   decimal.Decimal `gorm:"column:unit_tax;type:decimal(12,2)" json:"unit_tax"`
}

func (BasketLine) TableName() string {
	return "basket_lines"
}

func (l BasketLine) UnitPriceInclTax() decimal.Decimal {
	return l.UnitPrice.Add(l.UnitTax)
}

func (l BasketLine) LineTotal() decimal.Decimal {
	return l.UnitPriceInclTax().Mul(decimal.NewFromInt(int64(l.Quantity)))
}
