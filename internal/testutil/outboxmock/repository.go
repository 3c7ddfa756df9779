package outboxmock

import (
	"context"

	"loan-proposal-service/internal/domain/outbox"
)

var _ outbox.Repository = (*Repo)(nil)

type Repo struct {
	CreateFn           func(ctx context.Context, t *outbox.Task) error
	GetByIDFn          func(ctx context.Context, id string) (*outbox.Task, error)
	MarkResultFn       func(ctx context.Context, id string, errMsg string) error
	ListByProposalIDFn func(ctx context.Context, proposalID string) ([]outbox.Task, error)
}

func (m *Repo) Create(ctx context.Context, t *outbox.Task) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, t)
	}
	return nil
}

func (m *Repo) GetByID(ctx context.Context, id string) (*outbox.Task, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, context.Canceled
}

func (m *Repo) MarkResult(ctx context.Context, id string, errMsg string) error {
	if m.MarkResultFn != nil {
		return m.MarkResultFn(ctx, id, errMsg)
	}
	return nil
}

func (m *Repo) ListByProposalID(ctx context.Context, proposalID string) ([]outbox.Task, error) {
	if m.ListByProposalIDFn != nil {
		return m.ListByProposalIDFn(ctx, proposalID)
	}
	return nil, nil
}
