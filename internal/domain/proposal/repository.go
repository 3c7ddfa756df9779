package proposal

import "context"

type Repository interface {
	Create(ctx context.Context, p *Proposal) error
	GetByPublicID(ctx context.Context, proposalID string) (*Proposal, error)
	// GetByPublicIDForUpdate locks the row until the surrounding transaction ends.
	GetByPublicIDForUpdate(ctx context.Context, proposalID string) (*Proposal, error)
	GetByEnvelopeID(ctx context.Context, envelopeID string) (*Proposal, error)
	// UpdateStatus persists status-related fields when the stored version equals
	// p.Version, then bumps it. Returns errs.ErrConflict when the version moved.
	UpdateStatus(ctx context.Context, p *Proposal) error
	// UpdateFormalization persists document/signature references only.
	UpdateFormalization(ctx context.Context, p *Proposal) error
	ExistsWithTaxIDInStatuses(ctx context.Context, taxID string, statuses []Status) (bool, error)
}

type TransitionRepository interface {
	Append(ctx context.Context, t *StatusTransition) error
	ListByProposalID(ctx context.Context, proposalID string) ([]StatusTransition, error)
}
