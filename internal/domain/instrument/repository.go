package instrument

import "context"

type Repository interface {
	// CreateBatch inserts all items or none. It fails with errs.ErrConflict when
	// an item would be a second active instrument for its installment number.
	CreateBatch(ctx context.Context, items []CollectionInstrument) error
	ListActiveByProposalID(ctx context.Context, proposalID string) ([]CollectionInstrument, error)
	GetByIDs(ctx context.Context, proposalID string, ids []string) ([]CollectionInstrument, error)
	UpdateSituacao(ctx context.Context, id string, s Situacao) error
	SetStoragePath(ctx context.Context, id, path string) error
}

type BookletRepository interface {
	GetByProposalID(ctx context.Context, proposalID string) (*ConsolidatedBooklet, error)
	// Upsert replaces the current booklet of the proposal.
	Upsert(ctx context.Context, b *ConsolidatedBooklet) error
}
