package mysql

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"loan-proposal-service/internal/domain/errs"
	instrumentDomain "loan-proposal-service/internal/domain/instrument"
)

type InstrumentRepository struct{ db *gorm.DB }

func NewInstrumentRepository(db *gorm.DB) *InstrumentRepository {
	return &InstrumentRepository{db: db}
}

func (r *InstrumentRepository) CreateBatch(ctx context.Context, items []instrumentDomain.CollectionInstrument) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].ActiveSlot = items[i].Slot()
	}
	err := r.db.WithContext(ctx).Create(&items).Error
	if err != nil && isDuplicate(err) {
		return errs.Conflict("proposal "+items[0].ProposalID+" instruments", "installment already has an active instrument")
	}
	return err
}

func (r *InstrumentRepository) ListActiveByProposalID(ctx context.Context, proposalID string) ([]instrumentDomain.CollectionInstrument, error) {
	var out []instrumentDomain.CollectionInstrument
	err := r.db.WithContext(ctx).
		Where("proposal_id = ? AND situacao NOT IN ?", proposalID, instrumentDomain.InactiveSituacoes).
		Order("installment_number ASC, created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *InstrumentRepository) GetByIDs(ctx context.Context, proposalID string, ids []string) ([]instrumentDomain.CollectionInstrument, error) {
	var out []instrumentDomain.CollectionInstrument
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).
		Where("proposal_id = ? AND id IN ?", proposalID, ids).
		Order("installment_number ASC").
		Find(&out).Error
	return out, err
}

func (r *InstrumentRepository) UpdateSituacao(ctx context.Context, id string, s instrumentDomain.Situacao) error {
	var slot any = gorm.Expr("installment_number")
	if !instrumentDomain.IsActiveSituacao(s) {
		slot = nil
	}
	res := r.db.WithContext(ctx).
		Model(&instrumentDomain.CollectionInstrument{}).
		Where("id = ?", id).
		Updates(map[string]any{"situacao": s, "active_slot": slot})
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return errs.Conflict("instrument "+id, "installment already has an active instrument")
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mapErr(gorm.ErrRecordNotFound, "instrument", id)
	}
	return nil
}

func (r *InstrumentRepository) SetStoragePath(ctx context.Context, id, path string) error {
	res := r.db.WithContext(ctx).
		Model(&instrumentDomain.CollectionInstrument{}).
		Where("id = ?", id).
		Update("storage_path", path)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mapErr(gorm.ErrRecordNotFound, "instrument", id)
	}
	return nil
}

type BookletRepository struct{ db *gorm.DB }

func NewBookletRepository(db *gorm.DB) *BookletRepository { return &BookletRepository{db: db} }

func (r *BookletRepository) GetByProposalID(ctx context.Context, proposalID string) (*instrumentDomain.ConsolidatedBooklet, error) {
	var out instrumentDomain.ConsolidatedBooklet
	res := r.db.WithContext(ctx).Where("proposal_id = ?", proposalID).First(&out)
	if res.Error != nil {
		return nil, mapErr(res.Error, "booklet", proposalID)
	}
	return &out, nil
}

func (r *BookletRepository) Upsert(ctx context.Context, b *instrumentDomain.ConsolidatedBooklet) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "proposal_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"storage_path", "total_instruments", "instrument_set_hash", "generated_at"}),
		}).
		Create(b).Error
}
