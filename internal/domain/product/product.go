package product

import (
	"context"

	"github.com/shopspring/decimal"
)

type FeeType string

const (
	FeeFixed      FeeType = "fixed"
	FeePercentage FeeType = "percentage"
)

// Product holds the TAC configuration of a credit product.
type Product struct {
	ID       string          `gorm:"column:id;size:32;primaryKey" json:"id"`
	Name     string          `gorm:"column:name;size:120" json:"name"`
	FeeValue decimal.Decimal `gorm:"column:fee_value;type:decimal(18,4)" json:"fee_value"`
	FeeType  FeeType         `gorm:"column:fee_type;size:16" json:"fee_type"`
}

func (Product) TableName() string { return "products" }

type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
}
