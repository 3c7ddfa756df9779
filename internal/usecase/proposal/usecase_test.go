package proposal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"loan-proposal-service/internal/domain/errs"
	"loan-proposal-service/internal/domain/outbox"
	domain "loan-proposal-service/internal/domain/proposal"
	"loan-proposal-service/internal/domain/uow"
	"loan-proposal-service/internal/testutil/memstore"
	"loan-proposal-service/pkg/id"
)

type fixedFee decimal.Decimal

func (f fixedFee) CalculateFee(context.Context, string, decimal.Decimal, string) decimal.Decimal {
	return decimal.Decimal(f)
}

type recordingDispatcher struct {
	calls []string
	err   error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, taskID string) error {
	d.calls = append(d.calls, taskID)
	return d.err
}

func newUC(store *memstore.Store) *Usecase {
	r := store.Repos()
	return NewUsecase(r.Proposals, r.Transitions, store, fixedFee(decimal.NewFromInt(150)), zerolog.Nop())
}

func seed(store *memstore.Store, s domain.Status) string {
	pid := id.NewID32()
	store.PutProposal(domain.Proposal{
		PublicID:        pid,
		Status:          s,
		ClientName:      "Carlos Lima",
		ClientTaxID:     "98765432100",
		RequestedAmount: decimal.NewFromInt(10000),
		TermMonths:      12,
	})
	return pid
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func validCreate() CreateInput {
	return CreateInput{
		ClientName:    "Ana Pereira",
		ClientTaxID:   "123.456.789-01",
		ClientEmail:   "ana@example.com",
		MonthlyIncome: dec("10000"),
		MonthlyDebt:   dec("500"),
		Amount:        decimal.NewFromInt(10000),
		TermMonths:    24,
		MonthlyRate:   decimal.RequireFromString("2.5"),
		ProductID:     "p1",
		ActorID:       "op-1",
		ActorRole:     domain.RoleOperator,
	}
}

func TestCreate_InitialStatusFromPreApproval(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(in *CreateInput)
		want   domain.Status
	}{
		{"within limit", func(*CreateInput) {}, domain.StatusAwaitingAnalysis},
		{"over limit", func(in *CreateInput) { in.MonthlyDebt = dec("2500") }, domain.StatusRejected},
		{"missing income", func(in *CreateInput) { in.MonthlyIncome = nil }, domain.StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := memstore.New()
			uc := newUC(store)
			in := validCreate()
			tc.mutate(&in)

			res, err := uc.Create(context.Background(), in)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if res.InitialStatus != tc.want {
				t.Fatalf("status=%s want %s", res.InitialStatus, tc.want)
			}
			p := store.Proposal(res.ProposalID)
			if p.ClientTaxID != "12345678901" {
				t.Fatalf("tax id not normalized: %q", p.ClientTaxID)
			}
			if !p.OriginationFee.Equal(decimal.NewFromInt(150)) || !res.Fee.Equal(decimal.NewFromInt(150)) {
				t.Fatalf("fee=%s", p.OriginationFee)
			}
			log := store.Transitions(res.ProposalID)
			if len(log) != 1 || log[0].FromStatus != "" || log[0].ToStatus != tc.want {
				t.Fatalf("initial transition=%+v", log)
			}
		})
	}
}

func TestCreate_Validation(t *testing.T) {
	cases := map[string]func(in *CreateInput){
		"name":   func(in *CreateInput) { in.ClientName = " " },
		"tax id": func(in *CreateInput) { in.ClientTaxID = "123" },
		"amount": func(in *CreateInput) { in.Amount = decimal.Zero },
		"term":   func(in *CreateInput) { in.TermMonths = 0 },
		"rate":   func(in *CreateInput) { in.MonthlyRate = decimal.NewFromInt(-1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			store := memstore.New()
			in := validCreate()
			mutate(&in)
			if _, err := newUC(store).Create(context.Background(), in); !errors.Is(err, errs.ErrValidation) {
				t.Fatalf("want ErrValidation, got %v", err)
			}
		})
	}
}

func TestTransition_InvalidEdgesLeaveStateUntouched(t *testing.T) {
	for _, from := range domain.AllStatuses() {
		for _, to := range domain.AllStatuses() {
			if domain.CanTransition(from, to) {
				continue
			}
			store := memstore.New()
			uc := newUC(store)
			pid := seed(store, from)

			_, err := uc.TransitionStatus(context.Background(), TransitionInput{
				ProposalID: pid, Target: string(to), ActorID: "adm", ActorRole: domain.RoleAdmin,
			})
			if !errors.Is(err, errs.ErrInvalidTransition) {
				t.Fatalf("%s -> %s: want ErrInvalidTransition, got %v", from, to, err)
			}
			if got := store.Proposal(pid); got.Status != from || got.Version != 0 {
				t.Fatalf("%s -> %s: proposal mutated to %s v%d", from, to, got.Status, got.Version)
			}
			if n := len(store.Transitions(pid)); n != 0 {
				t.Fatalf("%s -> %s: %d transitions logged", from, to, n)
			}
		}
	}
}

func TestTransition_RoleMatrix(t *testing.T) {
	cases := []struct {
		from    domain.Status
		to      domain.Status
		role    domain.Role
		wantErr error
	}{
		{domain.StatusAwaitingAnalysis, domain.StatusInAnalysis, domain.RoleOperator, errs.ErrUnauthorizedTransition},
		{domain.StatusInAnalysis, domain.StatusApproved, domain.RoleOperator, errs.ErrUnauthorizedTransition},
		{domain.StatusAwaitingSignature, domain.StatusCanceled, domain.RoleOperator, nil},
		{domain.StatusPending, domain.StatusAwaitingAnalysis, domain.RoleOperator, nil},
		{domain.StatusAwaitingAnalysis, domain.StatusInAnalysis, domain.RoleAnalyst, nil},
		{domain.StatusInAnalysis, domain.StatusRejected, domain.RoleAdmin, nil},
	}
	for _, tc := range cases {
		store := memstore.New()
		uc := newUC(store)
		pid := seed(store, tc.from)

		_, err := uc.TransitionStatus(context.Background(), TransitionInput{
			ProposalID: pid, Target: string(tc.to), ActorID: "u1", ActorRole: tc.role,
		})
		if tc.wantErr == nil {
			if err != nil {
				t.Fatalf("%s %s->%s: %v", tc.role, tc.from, tc.to, err)
			}
			if got := store.Proposal(pid); got.Status != tc.to || got.Version != 1 {
				t.Fatalf("status=%s version=%d", got.Status, got.Version)
			}
			continue
		}
		if !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s %s->%s: want %v, got %v", tc.role, tc.from, tc.to, tc.wantErr, err)
		}
		if got := store.Proposal(pid); got.Status != tc.from {
			t.Fatalf("rejected transition changed status to %s", got.Status)
		}
	}
}

func TestTransition_PendingRequiresObservation(t *testing.T) {
	store := memstore.New()
	uc := newUC(store)
	pid := seed(store, domain.StatusInAnalysis)
	ctx := context.Background()

	_, err := uc.TransitionStatus(ctx, TransitionInput{ProposalID: pid, Target: "pendente", ActorID: "an", ActorRole: domain.RoleAnalyst})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}

	res, err := uc.TransitionStatus(ctx, TransitionInput{
		ProposalID: pid, Target: "pendente", Observation: "  missing payslip ", ActorID: "an", ActorRole: domain.RoleAnalyst,
		Metadata: map[string]any{"checklist": "income"},
	})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if res.PreviousStatus != domain.StatusInAnalysis || res.NewStatus != domain.StatusPending {
		t.Fatalf("result=%+v", res)
	}
	log := store.Transitions(pid)
	if len(log) != 1 || log[0].Observation == nil || *log[0].Observation != "missing payslip" || log[0].Metadata["checklist"] != "income" {
		t.Fatalf("log=%+v", log)
	}
}

func TestTransition_PendingFromTerminalIsAnInvalidEdge(t *testing.T) {
	for _, from := range []domain.Status{domain.StatusApproved, domain.StatusRejected, domain.StatusPaymentConfirmed} {
		store := memstore.New()
		uc := newUC(store)
		pid := seed(store, from)

		_, err := uc.TransitionStatus(context.Background(), TransitionInput{
			ProposalID: pid, Target: "pendente", ActorID: "adm", ActorRole: domain.RoleAdmin,
		})
		if !errors.Is(err, errs.ErrInvalidTransition) {
			t.Fatalf("%s -> pendente without observation: want ErrInvalidTransition, got %v", from, err)
		}
		if errors.Is(err, errs.ErrValidation) {
			t.Fatalf("%s -> pendente: edge error reported as validation: %v", from, err)
		}
	}
}

// barrierUoW holds each caller until every expected caller has arrived, so all
// of them have read the proposal before any commits.
type barrierUoW struct {
	*memstore.Store
	wg *sync.WaitGroup
}

func (b barrierUoW) WithinProposalTx(ctx context.Context, id string, fn func(uow.Repos, *domain.Proposal) error) error {
	b.wg.Done()
	b.wg.Wait()
	return b.Store.WithinProposalTx(ctx, id, fn)
}

func TestTransition_ConcurrentLoserGetsConflict(t *testing.T) {
	store := memstore.New()
	pid := seed(store, domain.StatusAwaitingAnalysis)
	var wg sync.WaitGroup
	wg.Add(2)
	r := store.Repos()
	uc := NewUsecase(r.Proposals, r.Transitions, barrierUoW{Store: store, wg: &wg}, fixedFee(decimal.Zero), zerolog.Nop())

	targets := []string{"em_analise", "rejeitado"}
	results := make([]error, len(targets))
	var done sync.WaitGroup
	for i, target := range targets {
		done.Add(1)
		go func(i int, target string) {
			defer done.Done()
			_, results[i] = uc.TransitionStatus(context.Background(), TransitionInput{
				ProposalID: pid, Target: target, Observation: "analysis", ActorID: "an", ActorRole: domain.RoleAnalyst,
			})
		}(i, target)
	}
	done.Wait()

	winner := -1
	for i, err := range results {
		switch {
		case err == nil:
			if winner != -1 {
				t.Fatalf("both requests committed")
			}
			winner = i
		case !errors.Is(err, errs.ErrConflict):
			t.Fatalf("%s: want ErrConflict, got %v", targets[i], err)
		}
	}
	if winner == -1 {
		t.Fatalf("no request committed: %v", results)
	}
	got := store.Proposal(pid)
	if string(got.Status) != targets[winner] || got.Version != 1 {
		t.Fatalf("status=%s version=%d, winner %s", got.Status, got.Version, targets[winner])
	}
	if n := len(store.Transitions(pid)); n != 1 {
		t.Fatalf("transitions=%d", n)
	}
}

func TestTransition_StaleReadIsAConflict(t *testing.T) {
	store := memstore.New()
	pid := seed(store, domain.StatusAwaitingAnalysis)
	r := store.Repos()
	var bumped bool
	tx := uowFunc(func(ctx context.Context, id string, fn func(uow.Repos, *domain.Proposal) error) error {
		if !bumped {
			bumped = true
			p := store.Proposal(id)
			p.Status = domain.StatusInAnalysis
			p.Version++
			store.PutProposal(p)
		}
		return store.WithinProposalTx(ctx, id, fn)
	})
	uc := NewUsecase(r.Proposals, r.Transitions, hookedUoW{store, tx}, fixedFee(decimal.Zero), zerolog.Nop())

	_, err := uc.TransitionStatus(context.Background(), TransitionInput{
		ProposalID: pid, Target: "aprovado", ActorID: "adm", ActorRole: domain.RoleAdmin,
	})
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
	if got := store.Proposal(pid); got.Status != domain.StatusInAnalysis {
		t.Fatalf("status=%s", got.Status)
	}

	// a fresh request sees the new state and goes through
	if _, err := uc.TransitionStatus(context.Background(), TransitionInput{
		ProposalID: pid, Target: "aprovado", ActorID: "adm", ActorRole: domain.RoleAdmin,
	}); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

type uowFunc func(context.Context, string, func(uow.Repos, *domain.Proposal) error) error

type hookedUoW struct {
	*memstore.Store
	fn uowFunc
}

func (b hookedUoW) WithinProposalTx(ctx context.Context, id string, fn func(uow.Repos, *domain.Proposal) error) error {
	return b.fn(ctx, id, fn)
}

func TestTransition_UnknownTargetAndProposal(t *testing.T) {
	store := memstore.New()
	uc := newUC(store)
	pid := seed(store, domain.StatusInAnalysis)
	ctx := context.Background()

	if _, err := uc.TransitionStatus(ctx, TransitionInput{ProposalID: pid, Target: "approved", ActorRole: domain.RoleAdmin}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("unknown status: want ErrValidation, got %v", err)
	}
	if _, err := uc.TransitionStatus(ctx, TransitionInput{ProposalID: "nope", Target: "aprovado", ActorRole: domain.RoleAdmin}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("unknown proposal: want ErrNotFound, got %v", err)
	}
}

func TestTransition_ExpectedStatusConflict(t *testing.T) {
	store := memstore.New()
	uc := newUC(store)
	pid := seed(store, domain.StatusInAnalysis)

	_, err := uc.TransitionStatus(context.Background(), TransitionInput{
		ProposalID: pid, Target: "aprovado", ExpectedStatus: "aguardando_analise", ActorID: "an", ActorRole: domain.RoleAnalyst,
	})
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
	if got := store.Proposal(pid); got.Status != domain.StatusInAnalysis {
		t.Fatalf("status=%s", got.Status)
	}
}

func TestTransition_ApprovalCreatesTaskAndStampsAmount(t *testing.T) {
	store := memstore.New()
	uc := newUC(store)
	pid := seed(store, domain.StatusInAnalysis)

	res, err := uc.TransitionStatus(context.Background(), TransitionInput{
		ProposalID: pid, Target: "aprovado", ApprovedAmount: dec("8000"), ActorID: "an", ActorRole: domain.RoleAnalyst,
	})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if len(res.SideEffects) != 1 || res.SideEffects[0].Status != outbox.StatusPending {
		t.Fatalf("without a dispatcher the task stays pending: %+v", res.SideEffects)
	}
	tasks := store.Tasks(pid)
	if len(tasks) != 1 || tasks[0].Kind != outbox.KindGenerateCCB || tasks[0].TransitionID != res.TransitionID {
		t.Fatalf("tasks=%+v", tasks)
	}
	p := store.Proposal(pid)
	if p.ApprovedAt == nil || p.ApprovedAmount == nil || !p.ApprovedAmount.Equal(decimal.NewFromInt(8000)) {
		t.Fatalf("approval not stamped: %+v", p)
	}

	if _, err := uc.TransitionStatus(context.Background(), TransitionInput{
		ProposalID: seed(store, domain.StatusInAnalysis), Target: "aprovado", ApprovedAmount: dec("0"), ActorRole: domain.RoleAnalyst,
	}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("zero approved amount: want ErrValidation, got %v", err)
	}
}

func TestTransition_SideEffectFailureIsReportedNotRolledBack(t *testing.T) {
	store := memstore.New()
	uc := newUC(store)
	d := &recordingDispatcher{err: errors.New("document service down")}
	uc.AttachDispatcher(d)
	pid := seed(store, domain.StatusInAnalysis)

	res, err := uc.TransitionStatus(context.Background(), TransitionInput{
		ProposalID: pid, Target: "aprovado", ActorID: "an", ActorRole: domain.RoleAnalyst,
	})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if len(d.calls) != 1 || d.calls[0] != res.SideEffects[0].TaskID {
		t.Fatalf("dispatch calls=%v", d.calls)
	}
	if res.SideEffects[0].Status != outbox.StatusFailed || res.SideEffects[0].Error == "" {
		t.Fatalf("side effect=%+v", res.SideEffects[0])
	}
	if got := store.Proposal(pid); got.Status != domain.StatusApproved {
		t.Fatalf("status=%s", got.Status)
	}
}

func TestTransition_NoSideEffectForUnboundStatus(t *testing.T) {
	store := memstore.New()
	uc := newUC(store)
	d := &recordingDispatcher{}
	uc.AttachDispatcher(d)
	pid := seed(store, domain.StatusAwaitingAnalysis)

	res, err := uc.TransitionStatus(context.Background(), TransitionInput{ProposalID: pid, Target: "em_analise", ActorID: "an", ActorRole: domain.RoleAnalyst})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if len(res.SideEffects) != 0 || len(d.calls) != 0 || len(store.Tasks(pid)) != 0 {
		t.Fatalf("unexpected side effects: %+v", res.SideEffects)
	}
}

func TestGetAndHistory(t *testing.T) {
	store := memstore.New()
	uc := newUC(store)
	ctx := context.Background()
	pid := seed(store, domain.StatusAwaitingAnalysis)

	view, err := uc.Get(ctx, pid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(view.NextStatuses) != 4 {
		t.Fatalf("next=%v", view.NextStatuses)
	}

	if _, err := uc.TransitionStatus(ctx, TransitionInput{ProposalID: pid, Target: "em_analise", ActorID: "an", ActorRole: domain.RoleAnalyst}); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, err := uc.AddObservation(ctx, pid, "an", domain.RoleAnalyst, "called the client"); err != nil {
		t.Fatalf("AddObservation: %v", err)
	}
	if _, err := uc.AddObservation(ctx, pid, "an", domain.RoleAnalyst, " "); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("blank observation: want ErrValidation, got %v", err)
	}

	log, err := uc.ListTransitions(ctx, pid)
	if err != nil {
		t.Fatalf("ListTransitions: %v", err)
	}
	if len(log) != 2 || log[1].Kind != domain.KindObservation || log[1].ToStatus != domain.StatusInAnalysis {
		t.Fatalf("log=%+v", log)
	}
	if got := store.Proposal(pid); got.Status != domain.StatusInAnalysis {
		t.Fatalf("observation changed status: %s", got.Status)
	}

	if _, err := uc.ListTransitions(ctx, "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
