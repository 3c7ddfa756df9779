package proposalmock

import (
	"context"

	domain "loan-proposal-service/internal/domain/proposal"
)

var _ domain.Repository = (*Repo)(nil)
var _ domain.TransitionRepository = (*TransitionRepo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
// Writes default to no-op; reads default to context.Canceled.
type Repo struct {
	CreateFn                    func(ctx context.Context, p *domain.Proposal) error
	GetByPublicIDFn             func(ctx context.Context, proposalID string) (*domain.Proposal, error)
	GetByPublicIDForUpdateFn    func(ctx context.Context, proposalID string) (*domain.Proposal, error)
	GetByEnvelopeIDFn           func(ctx context.Context, envelopeID string) (*domain.Proposal, error)
	UpdateStatusFn              func(ctx context.Context, p *domain.Proposal) error
	UpdateFormalizationFn       func(ctx context.Context, p *domain.Proposal) error
	ExistsWithTaxIDInStatusesFn func(ctx context.Context, taxID string, statuses []domain.Status) (bool, error)
}

func (m *Repo) Create(ctx context.Context, p *domain.Proposal) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, p)
	}
	return nil
}

func (m *Repo) GetByPublicID(ctx context.Context, proposalID string) (*domain.Proposal, error) {
	if m.GetByPublicIDFn != nil {
		return m.GetByPublicIDFn(ctx, proposalID)
	}
	return nil, context.Canceled
}

func (m *Repo) GetByPublicIDForUpdate(ctx context.Context, proposalID string) (*domain.Proposal, error) {
	if m.GetByPublicIDForUpdateFn != nil {
		return m.GetByPublicIDForUpdateFn(ctx, proposalID)
	}
	return nil, context.Canceled
}

func (m *Repo) GetByEnvelopeID(ctx context.Context, envelopeID string) (*domain.Proposal, error) {
	if m.GetByEnvelopeIDFn != nil {
		return m.GetByEnvelopeIDFn(ctx, envelopeID)
	}
	return nil, context.Canceled
}

func (m *Repo) UpdateStatus(ctx context.Context, p *domain.Proposal) error {
	if m.UpdateStatusFn != nil {
		return m.UpdateStatusFn(ctx, p)
	}
	return nil
}

func (m *Repo) UpdateFormalization(ctx context.Context, p *domain.Proposal) error {
	if m.UpdateFormalizationFn != nil {
		return m.UpdateFormalizationFn(ctx, p)
	}
	return nil
}

func (m *Repo) ExistsWithTaxIDInStatuses(ctx context.Context, taxID string, statuses []domain.Status) (bool, error) {
	if m.ExistsWithTaxIDInStatusesFn != nil {
		return m.ExistsWithTaxIDInStatusesFn(ctx, taxID, statuses)
	}
	return false, nil
}

type TransitionRepo struct {
	AppendFn           func(ctx context.Context, t *domain.StatusTransition) error
	ListByProposalIDFn func(ctx context.Context, proposalID string) ([]domain.StatusTransition, error)
}

func (m *TransitionRepo) Append(ctx context.Context, t *domain.StatusTransition) error {
	if m.AppendFn != nil {
		return m.AppendFn(ctx, t)
	}
	return nil
}

func (m *TransitionRepo) ListByProposalID(ctx context.Context, proposalID string) ([]domain.StatusTransition, error) {
	if m.ListByProposalIDFn != nil {
		return m.ListByProposalIDFn(ctx, proposalID)
	}
	return nil, nil
}
