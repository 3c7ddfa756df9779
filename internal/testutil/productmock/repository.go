package productmock

import (
	"context"

	"loan-proposal-service/internal/domain/product"
)

var _ product.Repository = (*Repo)(nil)

type Repo struct {
	GetByIDFn func(ctx context.Context, id string) (*product.Product, error)
}

func (m *Repo) GetByID(ctx context.Context, id string) (*product.Product, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, context.Canceled
}
