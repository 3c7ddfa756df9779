package uow

import (
	"context"

	"loan-proposal-service/internal/domain/instrument"
	"loan-proposal-service/internal/domain/outbox"
	"loan-proposal-service/internal/domain/proposal"
)

// domain/uow/uow.go
type Repos struct {
	Proposals   proposal.Repository
	Transitions proposal.TransitionRepository
	Instruments instrument.Repository
	Booklets    instrument.BookletRepository
	Tasks       outbox.Repository
}

type UnitOfWork interface {
	// plain tx
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// convenience: lock proposal first, then pass it in
	WithinProposalTx(ctx context.Context, proposalID string, fn func(r Repos, p *proposal.Proposal) error) error
}
