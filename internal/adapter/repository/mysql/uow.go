package mysql

import (
	"context"

	"gorm.io/gorm"

	"loan-proposal-service/internal/domain/proposal"
	"loan-proposal-service/internal/domain/uow"
)

type GormUoW struct{ db *gorm.DB }

func NewGormUoW(db *gorm.DB) *GormUoW { return &GormUoW{db: db} }

// ReposFor binds every repository to db (a pool or a transaction).
func ReposFor(db *gorm.DB) uow.Repos {
	return uow.Repos{
		Proposals:   &ProposalRepository{db: db},
		Transitions: &TransitionRepository{db: db},
		Instruments: &InstrumentRepository{db: db},
		Booklets:    &BookletRepository{db: db},
		Tasks:       &TaskRepository{db: db},
	}
}

func (u *GormUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ReposFor(tx))
	})
}

func (u *GormUoW) WithinProposalTx(ctx context.Context, proposalID string, fn func(r uow.Repos, p *proposal.Proposal) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := ReposFor(tx)
		// lock the proposal row up-front to serialize transitions
		p, err := r.Proposals.GetByPublicIDForUpdate(ctx, proposalID)
		if err != nil {
			return err
		}
		return fn(r, p)
	})
}
