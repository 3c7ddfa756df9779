package proposal

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"loan-proposal-service/internal/domain/errs"
	"loan-proposal-service/internal/domain/outbox"
	domain "loan-proposal-service/internal/domain/proposal"
	"loan-proposal-service/internal/domain/uow"
	"loan-proposal-service/internal/observability"
	"loan-proposal-service/internal/usecase/preapproval"
	"loan-proposal-service/pkg/id"
)

type FeeCalculator interface {
	CalculateFee(ctx context.Context, productID string, amount decimal.Decimal, taxID string) decimal.Decimal
}

// Dispatcher executes a committed outbox task.
type Dispatcher interface {
	Dispatch(ctx context.Context, taskID string) error
}

type Usecase struct {
	proposals   domain.Repository
	transitions domain.TransitionRepository
	uow         uow.UnitOfWork
	fees        FeeCalculator
	dispatcher  Dispatcher
	log         zerolog.Logger
	now         func() time.Time
}

func NewUsecase(proposals domain.Repository, transitions domain.TransitionRepository, tx uow.UnitOfWork, fees FeeCalculator, log zerolog.Logger) *Usecase {
	return &Usecase{
		proposals:   proposals,
		transitions: transitions,
		uow:         tx,
		fees:        fees,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// AttachDispatcher wires the side-effect orchestrator. Without one, tasks stay pending.
func (u *Usecase) AttachDispatcher(d Dispatcher) { u.dispatcher = d }

func (u *Usecase) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	taxID := digitsOnly(in.ClientTaxID)
	switch {
	case strings.TrimSpace(in.ClientName) == "":
		return nil, errs.Validation("client_name", "is required")
	case len(taxID) != 11 && len(taxID) != 14:
		return nil, errs.Validation("client_tax_id", "must have 11 or 14 digits")
	case !in.Amount.IsPositive():
		return nil, errs.Validation("amount", "must be greater than zero")
	case in.TermMonths < 1 || in.TermMonths > 120:
		return nil, errs.Validation("term_months", "must be between 1 and 120")
	case in.MonthlyRate.IsNegative():
		return nil, errs.Validation("monthly_rate", "must not be negative")
	}
	if _, ok := domain.ParseRole(string(in.ActorRole)); !ok {
		return nil, &errs.UnauthorizedTransitionError{Role: string(in.ActorRole), To: "new proposal"}
	}

	pre := preapproval.Evaluate(preapproval.Input{
		MonthlyIncome: in.MonthlyIncome,
		MonthlyDebt:   in.MonthlyDebt,
		Amount:        in.Amount,
		TermMonths:    in.TermMonths,
		MonthlyRate:   in.MonthlyRate,
	})
	fee := decimal.Zero
	if u.fees != nil {
		fee = u.fees.CalculateFee(ctx, in.ProductID, in.Amount, taxID)
	}

	now := u.now()
	p := &domain.Proposal{
		PublicID:           id.NewID32(),
		Status:             pre.Status,
		ClientName:         strings.TrimSpace(in.ClientName),
		ClientTaxID:        taxID,
		ClientEmail:        strings.TrimSpace(in.ClientEmail),
		ClientPhone:        strings.TrimSpace(in.ClientPhone),
		MonthlyIncome:      in.MonthlyIncome,
		MonthlyDebt:        in.MonthlyDebt,
		RequestedAmount:    in.Amount,
		TermMonths:         in.TermMonths,
		MonthlyRate:        in.MonthlyRate,
		OriginationFee:     fee,
		PreApprovalOutcome: pre.Outcome,
		PreApprovalReason:  pre.Reason,
		StoreID:            in.StoreID,
		ProductID:          in.ProductID,
		CommercialTableID:  in.CommercialTableID,
		CreatedBy:          in.ActorID,
		StatusUpdatedAt:    now,
	}

	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		if err := r.Proposals.Create(ctx, p); err != nil {
			return err
		}
		return r.Transitions.Append(ctx, &domain.StatusTransition{
			ID:         uuid.NewString(),
			ProposalID: p.PublicID,
			Kind:       domain.KindStatusChange,
			ToStatus:   p.Status,
			ActorID:    in.ActorID,
			ActorRole:  in.ActorRole,
			Metadata: datatypes.JSONMap{
				"preapproval_outcome": string(pre.Outcome),
				"ratio":               pre.Ratio.StringFixed(4),
				"fee":                 fee.StringFixed(2),
			},
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	u.log.Info().Str("proposal_id", p.PublicID).Str("status", string(p.Status)).
		Str("preapproval", string(pre.Outcome)).Msg("proposal created")

	return &CreateResult{ProposalID: p.PublicID, InitialStatus: p.Status, Fee: fee, PreApproval: pre}, nil
}

func (u *Usecase) Get(ctx context.Context, proposalID string) (*ProposalView, error) {
	p, err := u.proposals.GetByPublicID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	return &ProposalView{Proposal: p, NextStatuses: domain.NextStatuses(p.Status)}, nil
}

// TransitionStatus is the only path that mutates a proposal's status.
func (u *Usecase) TransitionStatus(ctx context.Context, in TransitionInput) (*TransitionResult, error) {
	target, ok := domain.ParseStatus(strings.TrimSpace(in.Target))
	if !ok {
		return nil, errs.Validation("status", fmt.Sprintf("unknown status %q", in.Target))
	}
	obs := strings.TrimSpace(in.Observation)

	// seen is the state this request decided on; without an explicit expected
	// status, anything committed after it makes the request stale
	seen, err := u.proposals.GetByPublicID(ctx, in.ProposalID)
	if err != nil {
		return nil, err
	}

	var (
		res  *TransitionResult
		task *outbox.Task
		from = seen.Status
	)
	err = u.uow.WithinProposalTx(ctx, in.ProposalID, func(r uow.Repos, p *domain.Proposal) error {
		from = p.Status
		if in.ExpectedStatus != "" && domain.Status(in.ExpectedStatus) != p.Status {
			return errs.Conflict("proposal "+p.PublicID,
				fmt.Sprintf("expected status %s but found %s", in.ExpectedStatus, p.Status))
		}
		if in.ExpectedStatus == "" && p.Version != seen.Version {
			return errs.Conflict("proposal "+p.PublicID,
				fmt.Sprintf("changed to %s while the request was in flight", p.Status))
		}
		if err := domain.CheckTransition(in.ActorRole, p.Status, target); err != nil {
			return err
		}
		if domain.RequiresObservation(target) && obs == "" {
			return errs.Validation("observation", "is required when moving to "+string(target))
		}
		if target == domain.StatusApproved && in.ApprovedAmount != nil && !in.ApprovedAmount.IsPositive() {
			return errs.Validation("approved_amount", "must be greater than zero")
		}

		now := u.now()
		p.Status = target
		p.StatusUpdatedAt = now
		switch target {
		case domain.StatusApproved:
			p.ApprovedAt = &now
			if in.ApprovedAmount != nil {
				amt := *in.ApprovedAmount
				p.ApprovedAmount = &amt
			}
		case domain.StatusSignatureDone:
			p.SignedAt = &now
		case domain.StatusPaymentConfirmed:
			p.PaidAt = &now
		}
		if err := r.Proposals.UpdateStatus(ctx, p); err != nil {
			return err
		}

		tr := &domain.StatusTransition{
			ID:         uuid.NewString(),
			ProposalID: p.PublicID,
			Kind:       domain.KindStatusChange,
			FromStatus: from,
			ToStatus:   target,
			ActorID:    in.ActorID,
			ActorRole:  in.ActorRole,
			CreatedAt:  now,
		}
		if obs != "" {
			tr.Observation = &obs
		}
		if len(in.Metadata) > 0 {
			tr.Metadata = datatypes.JSONMap(in.Metadata)
		}
		if err := r.Transitions.Append(ctx, tr); err != nil {
			return err
		}

		if kind, bound := outbox.KindForEntered(target); bound {
			task = &outbox.Task{
				ID:           uuid.NewString(),
				ProposalID:   p.PublicID,
				TransitionID: tr.ID,
				Kind:         kind,
				Status:       outbox.StatusPending,
			}
			if err := r.Tasks.Create(ctx, task); err != nil {
				return err
			}
		}

		res = &TransitionResult{
			ProposalID:     p.PublicID,
			TransitionID:   tr.ID,
			PreviousStatus: from,
			NewStatus:      target,
			SideEffects:    []SideEffectResult{},
		}
		return nil
	})
	if err != nil {
		observability.RecordTransition(string(from), string(target), err)
		return nil, err
	}
	observability.RecordTransition(string(from), string(target), nil)
	u.log.Info().Str("proposal_id", res.ProposalID).Str("from", string(from)).Str("to", string(target)).
		Str("actor_id", in.ActorID).Str("role", string(in.ActorRole)).Msg("proposal transitioned")

	if task != nil {
		res.SideEffects = append(res.SideEffects, u.runSideEffect(ctx, task))
	}
	return res, nil
}

// runSideEffect executes a committed task best effort. Its failure never
// undoes the transition; the task stays retryable.
func (u *Usecase) runSideEffect(ctx context.Context, t *outbox.Task) SideEffectResult {
	out := SideEffectResult{TaskID: t.ID, Kind: t.Kind, Status: outbox.StatusPending}
	if u.dispatcher == nil {
		return out
	}
	if err := u.dispatcher.Dispatch(context.WithoutCancel(ctx), t.ID); err != nil {
		u.log.Error().Err(err).Str("proposal_id", t.ProposalID).Str("task_id", t.ID).
			Str("kind", string(t.Kind)).Msg("side effect failed")
		out.Status = outbox.StatusFailed
		out.Error = err.Error()
		return out
	}
	out.Status = outbox.StatusDone
	return out
}

func (u *Usecase) ListTransitions(ctx context.Context, proposalID string) ([]domain.StatusTransition, error) {
	if _, err := u.proposals.GetByPublicID(ctx, proposalID); err != nil {
		return nil, err
	}
	return u.transitions.ListByProposalID(ctx, proposalID)
}

// AddObservation records a free-text note without changing status.
func (u *Usecase) AddObservation(ctx context.Context, proposalID, actorID string, role domain.Role, text string) (*domain.StatusTransition, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errs.Validation("observation", "is required")
	}
	if _, ok := domain.ParseRole(string(role)); !ok {
		return nil, &errs.UnauthorizedTransitionError{Role: string(role)}
	}

	var tr *domain.StatusTransition
	err := u.uow.WithinProposalTx(ctx, proposalID, func(r uow.Repos, p *domain.Proposal) error {
		tr = &domain.StatusTransition{
			ID:          uuid.NewString(),
			ProposalID:  p.PublicID,
			Kind:        domain.KindObservation,
			FromStatus:  p.Status,
			ToStatus:    p.Status,
			ActorID:     actorID,
			ActorRole:   role,
			Observation: &text,
			CreatedAt:   u.now(),
		}
		return r.Transitions.Append(ctx, tr)
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
