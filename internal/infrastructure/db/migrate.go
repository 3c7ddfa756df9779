package db

import (
	"gorm.io/gorm"

	"loan-proposal-service/internal/domain/instrument"
	"loan-proposal-service/internal/domain/outbox"
	"loan-proposal-service/internal/domain/product"
	"loan-proposal-service/internal/domain/proposal"
)

// Models lists every persisted entity in dependency order.
func Models() []any {
	return []any{
		&product.Product{},
		&proposal.Proposal{},
		&proposal.StatusTransition{},
		&instrument.CollectionInstrument{},
		&instrument.ConsolidatedBooklet{},
		&outbox.Task{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
