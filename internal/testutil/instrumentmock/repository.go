package instrumentmock

import (
	"context"

	domain "loan-proposal-service/internal/domain/instrument"
)

var _ domain.Repository = (*Repo)(nil)
var _ domain.BookletRepository = (*BookletRepo)(nil)

type Repo struct {
	CreateBatchFn            func(ctx context.Context, items []domain.CollectionInstrument) error
	ListActiveByProposalIDFn func(ctx context.Context, proposalID string) ([]domain.CollectionInstrument, error)
	GetByIDsFn               func(ctx context.Context, proposalID string, ids []string) ([]domain.CollectionInstrument, error)
	UpdateSituacaoFn         func(ctx context.Context, id string, s domain.Situacao) error
	SetStoragePathFn         func(ctx context.Context, id, path string) error
}

func (m *Repo) CreateBatch(ctx context.Context, items []domain.CollectionInstrument) error {
	if m.CreateBatchFn != nil {
		return m.CreateBatchFn(ctx, items)
	}
	return nil
}

func (m *Repo) ListActiveByProposalID(ctx context.Context, proposalID string) ([]domain.CollectionInstrument, error) {
	if m.ListActiveByProposalIDFn != nil {
		return m.ListActiveByProposalIDFn(ctx, proposalID)
	}
	return nil, nil
}

func (m *Repo) GetByIDs(ctx context.Context, proposalID string, ids []string) ([]domain.CollectionInstrument, error) {
	if m.GetByIDsFn != nil {
		return m.GetByIDsFn(ctx, proposalID, ids)
	}
	return nil, context.Canceled
}

func (m *Repo) UpdateSituacao(ctx context.Context, id string, s domain.Situacao) error {
	if m.UpdateSituacaoFn != nil {
		return m.UpdateSituacaoFn(ctx, id, s)
	}
	return nil
}

func (m *Repo) SetStoragePath(ctx context.Context, id, path string) error {
	if m.SetStoragePathFn != nil {
		return m.SetStoragePathFn(ctx, id, path)
	}
	return nil
}

type BookletRepo struct {
	GetByProposalIDFn func(ctx context.Context, proposalID string) (*domain.ConsolidatedBooklet, error)
	UpsertFn          func(ctx context.Context, b *domain.ConsolidatedBooklet) error
}

func (m *BookletRepo) GetByProposalID(ctx context.Context, proposalID string) (*domain.ConsolidatedBooklet, error) {
	if m.GetByProposalIDFn != nil {
		return m.GetByProposalIDFn(ctx, proposalID)
	}
	return nil, context.Canceled
}

func (m *BookletRepo) Upsert(ctx context.Context, b *domain.ConsolidatedBooklet) error {
	if m.UpsertFn != nil {
		return m.UpsertFn(ctx, b)
	}
	return nil
}
