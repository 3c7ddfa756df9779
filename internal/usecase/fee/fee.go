package fee

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"loan-proposal-service/internal/domain/product"
	"loan-proposal-service/internal/domain/proposal"
)

// Calculator computes the origination fee (TAC) charged on a new proposal.
type Calculator struct {
	products  product.Repository
	proposals proposal.Repository
	log       zerolog.Logger
}

func NewCalculator(products product.Repository, proposals proposal.Repository, log zerolog.Logger) *Calculator {
	return &Calculator{products: products, proposals: proposals, log: log}
}

// IsRegisteredClient reports whether the tax id already holds a proposal that
// reached approval, signature or settlement.
func (c *Calculator) IsRegisteredClient(ctx context.Context, taxID string) (bool, error) {
	return c.proposals.ExistsWithTaxIDInStatuses(ctx, taxID, proposal.RegisteredClientStatuses)
}

// CalculateFee never fails; lookup problems degrade to a zero fee.
func (c *Calculator) CalculateFee(ctx context.Context, productID string, amount decimal.Decimal, taxID string) decimal.Decimal {
	registered, err := c.IsRegisteredClient(ctx, taxID)
	if err != nil {
		c.log.Warn().Err(err).Str("product_id", productID).Msg("fee: client lookup failed, charging no fee")
		return decimal.Zero
	}
	if registered {
		return decimal.Zero
	}
	if productID == "" {
		return decimal.Zero
	}

	p, err := c.products.GetByID(ctx, productID)
	if err != nil || p == nil {
		c.log.Warn().Err(err).Str("product_id", productID).Msg("fee: product config unavailable, charging no fee")
		return decimal.Zero
	}
	return Apply(p, amount)
}

// Apply evaluates a product's fee rule. Unknown types behave as fixed.
func Apply(p *product.Product, amount decimal.Decimal) decimal.Decimal {
	switch p.FeeType {
	case product.FeePercentage:
		return p.FeeValue.Div(decimal.NewFromInt(100)).Mul(amount).Round(2)
	default:
		return p.FeeValue.Round(2)
	}
}
