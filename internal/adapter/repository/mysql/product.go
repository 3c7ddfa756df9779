package mysql

import (
	"context"

	"gorm.io/gorm"

	productDomain "loan-proposal-service/internal/domain/product"
)

type ProductRepository struct{ db *gorm.DB }

func NewProductRepository(db *gorm.DB) *ProductRepository { return &ProductRepository{db: db} }

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*productDomain.Product, error) {
	var out productDomain.Product
	res := r.db.WithContext(ctx).Where("id = ?", id).First(&out)
	if res.Error != nil {
		return nil, mapErr(res.Error, "product", id)
	}
	return &out, nil
}
