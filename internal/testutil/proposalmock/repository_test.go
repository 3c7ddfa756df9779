package proposalmock

import (
	"context"
	"errors"
	"testing"

	domain "loan-proposal-service/internal/domain/proposal"
)

func TestRepo_Defaults(t *testing.T) {
	ctx := context.Background()
	m := &Repo{}
	if err := m.Create(ctx, &domain.Proposal{}); err != nil {
		t.Fatalf("Create default: want nil, got %v", err)
	}
	if _, err := m.GetByPublicID(ctx, "x"); err != context.Canceled {
		t.Fatalf("GetByPublicID default: want context.Canceled, got %v", err)
	}
	if ok, err := m.ExistsWithTaxIDInStatuses(ctx, "1", nil); ok || err != nil {
		t.Fatalf("Exists default: got %v %v", ok, err)
	}
}

func TestRepo_UsesFn(t *testing.T) {
	ctx := context.Background()
	wantErr := errors.New("boom")
	called := false
	m := &Repo{
		UpdateStatusFn: func(gotCtx context.Context, p *domain.Proposal) error {
			called = true
			if p.PublicID != "P-1" {
				t.Fatalf("UpdateStatus arg mismatch: %s", p.PublicID)
			}
			return wantErr
		},
	}
	if err := m.UpdateStatus(ctx, &domain.Proposal{PublicID: "P-1"}); !errors.Is(err, wantErr) {
		t.Fatalf("UpdateStatus: want %v, got %v", wantErr, err)
	}
	if !called {
		t.Fatalf("UpdateStatusFn not called")
	}
}

func TestTransitionRepo_Append(t *testing.T) {
	var got []string
	m := &TransitionRepo{AppendFn: func(_ context.Context, tr *domain.StatusTransition) error {
		got = append(got, tr.ID)
		return nil
	}}
	_ = m.Append(context.Background(), &domain.StatusTransition{ID: "T-1"})
	if len(got) != 1 || got[0] != "T-1" {
		t.Fatalf("appended=%v", got)
	}
}
