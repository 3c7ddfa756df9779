package proposal

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"loan-proposal-service/internal/domain/outbox"
	domain "loan-proposal-service/internal/domain/proposal"
	"loan-proposal-service/internal/domain/uow"
	"loan-proposal-service/internal/testutil/outboxmock"
	"loan-proposal-service/internal/testutil/proposalmock"
	"loan-proposal-service/internal/testutil/uowmock"
)

func TestTransition_TaskWriteFailureAbortsEverything(t *testing.T) {
	current := &domain.Proposal{PublicID: "p1", Status: domain.StatusInAnalysis}
	var appended []*domain.StatusTransition
	load := func(context.Context, string) (*domain.Proposal, error) {
		cp := *current
		return &cp, nil
	}
	props := &proposalmock.Repo{GetByPublicIDFn: load, GetByPublicIDForUpdateFn: load}
	trans := &proposalmock.TransitionRepo{
		AppendFn: func(_ context.Context, tr *domain.StatusTransition) error {
			appended = append(appended, tr)
			return nil
		},
	}
	tasks := &outboxmock.Repo{
		CreateFn: func(context.Context, *outbox.Task) error { return errors.New("insert outbox_tasks: deadlock") },
	}
	tx := uowmock.Passthrough(uow.Repos{Proposals: props, Transitions: trans, Tasks: tasks})

	uc := NewUsecase(props, trans, tx, nil, zerolog.Nop())
	d := &recordingDispatcher{}
	uc.AttachDispatcher(d)

	_, err := uc.TransitionStatus(context.Background(), TransitionInput{
		ProposalID: "p1", Target: "aprovado", ActorID: "an", ActorRole: domain.RoleAnalyst,
	})
	if err == nil {
		t.Fatalf("expected the task write error")
	}
	if len(d.calls) != 0 {
		t.Fatalf("no side effect may run when the transaction failed, got %v", d.calls)
	}
	// Passthrough has no rollback; a real unit of work discards these rows.
	if len(appended) != 1 {
		t.Fatalf("appended=%d", len(appended))
	}
}

func TestCreate_TxErrorIsReturned(t *testing.T) {
	tx := uowmock.New().WithWithinTx(func(context.Context, func(uow.Repos) error) error {
		return errors.New("connection reset")
	})
	uc := NewUsecase(&proposalmock.Repo{}, &proposalmock.TransitionRepo{}, tx, nil, zerolog.Nop())

	res, err := uc.Create(context.Background(), validCreate())
	if err == nil || res != nil {
		t.Fatalf("want error and no result, got %+v %v", res, err)
	}
}
