package formalization

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"loan-proposal-service/internal/domain/errs"
	"loan-proposal-service/internal/domain/instrument"
	"loan-proposal-service/internal/domain/outbox"
	"loan-proposal-service/internal/domain/ports"
	domain "loan-proposal-service/internal/domain/proposal"
	"loan-proposal-service/internal/observability"
	proposaluc "loan-proposal-service/internal/usecase/proposal"
)

const systemActor = "formalization-orchestrator"

// Transitioner is the FSM engine as seen by the orchestrator.
type Transitioner interface {
	TransitionStatus(ctx context.Context, in proposaluc.TransitionInput) (*proposaluc.TransitionResult, error)
}

type Deps struct {
	Proposals   domain.Repository
	Instruments instrument.Repository
	Tasks       outbox.Repository
	Docs        ports.DocumentGenerator
	Signer      ports.SignatureProvider
	Bank        ports.CollectionsBank
	Locker      ports.Locker
	Engine      Transitioner
	Log         zerolog.Logger
	LockTTL     time.Duration
}

// Usecase executes the side effects bound to status entry and the
// collection-instrument operations.
type Usecase struct {
	proposals   domain.Repository
	instruments instrument.Repository
	tasks       outbox.Repository
	docs        ports.DocumentGenerator
	signer      ports.SignatureProvider
	bank        ports.CollectionsBank
	locker      ports.Locker
	engine      Transitioner
	log         zerolog.Logger
	lockTTL     time.Duration
	now         func() time.Time
}

func NewUsecase(d Deps) *Usecase {
	ttl := d.LockTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Usecase{
		proposals:   d.Proposals,
		instruments: d.Instruments,
		tasks:       d.Tasks,
		docs:        d.Docs,
		signer:      d.Signer,
		bank:        d.Bank,
		locker:      d.Locker,
		engine:      d.Engine,
		log:         d.Log,
		lockTTL:     ttl,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch runs one outbox task and records the attempt. Done tasks are skipped.
func (u *Usecase) Dispatch(ctx context.Context, taskID string) error {
	t, err := u.tasks.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status == outbox.StatusDone {
		return nil
	}

	runErr := u.run(ctx, t)
	observability.RecordSideEffect(string(t.Kind), runErr)

	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	if err := u.tasks.MarkResult(ctx, t.ID, msg); err != nil {
		u.log.Error().Err(err).Str("task_id", t.ID).Msg("outbox: recording task result failed")
	}
	if runErr != nil {
		return fmt.Errorf("%s for proposal %s: %w", t.Kind, t.ProposalID, runErr)
	}
	u.log.Info().Str("task_id", t.ID).Str("kind", string(t.Kind)).Str("proposal_id", t.ProposalID).Msg("outbox: task done")
	return nil
}

// RetryTask re-runs a task that has not completed.
func (u *Usecase) RetryTask(ctx context.Context, taskID string) (*outbox.Task, error) {
	t, err := u.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status == outbox.StatusDone {
		return nil, errs.Validation("task", "already completed")
	}
	runErr := u.Dispatch(ctx, taskID)
	refreshed, err := u.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return refreshed, runErr
}

func (u *Usecase) run(ctx context.Context, t *outbox.Task) error {
	switch t.Kind {
	case outbox.KindGenerateCCB:
		return u.generateCCB(ctx, t.ProposalID)
	case outbox.KindDispatchSignature:
		_, err := u.dispatchSignature(ctx, t.ProposalID, false)
		return err
	case outbox.KindIssueInstruments:
		_, err := u.IssueCollectionInstruments(ctx, t.ProposalID)
		return err
	default:
		return fmt.Errorf("unknown task kind %q", t.Kind)
	}
}

func (u *Usecase) generateCCB(ctx context.Context, proposalID string) error {
	p, err := u.proposals.GetByPublicID(ctx, proposalID)
	if err != nil {
		return err
	}
	if p.CCBDocumentPath != "" {
		return nil
	}

	start := time.Now()
	path, err := u.docs.GenerateCCB(ctx, snapshotOf(p))
	observability.RecordExternalCall("document-generator", "generate_ccb", time.Since(start), err)
	if err != nil {
		return errs.External("document-generator", "generate_ccb", err)
	}
	p.CCBDocumentPath = path
	return u.proposals.UpdateFormalization(ctx, p)
}

// dispatchSignature creates a signing envelope for the CCB and, when the
// proposal still sits in ccb_gerada, moves it to aguardando_assinatura.
func (u *Usecase) dispatchSignature(ctx context.Context, proposalID string, force bool) (*SignatureLink, error) {
	p, err := u.proposals.GetByPublicID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.StatusCCBGenerated && p.Status != domain.StatusAwaitingSignature {
		return nil, errs.Validation("status", fmt.Sprintf("signature is not available while %s", p.Status))
	}
	if p.CCBDocumentPath == "" {
		return nil, errs.Validation("ccb_document_path", "CCB has not been generated yet")
	}

	if force || p.SignatureEnvelopeID == "" {
		start := time.Now()
		env, err := u.signer.CreateEnvelope(ctx, ports.EnvelopeRequest{
			ProposalID:   p.PublicID,
			DocumentPath: p.CCBDocumentPath,
			SignerName:   p.ClientName,
			SignerEmail:  p.ClientEmail,
			SignerTaxID:  p.ClientTaxID,
		})
		observability.RecordExternalCall("e-signature", "create_envelope", time.Since(start), err)
		if err != nil {
			return nil, errs.External("e-signature", "create_envelope", err)
		}
		p.SignatureEnvelopeID = env.ID
		p.SignerURL = env.SignerURL
		if err := u.proposals.UpdateFormalization(ctx, p); err != nil {
			return nil, err
		}
	}

	status := p.Status
	if p.Status == domain.StatusCCBGenerated {
		res, err := u.systemTransition(ctx, p.PublicID, domain.StatusCCBGenerated, domain.StatusAwaitingSignature)
		if err != nil {
			return nil, err
		}
		status = res.NewStatus
	}
	return &SignatureLink{ProposalID: p.PublicID, EnvelopeID: p.SignatureEnvelopeID, SignerURL: p.SignerURL, Status: status}, nil
}

// RegenerateSignatureLink issues a fresh envelope on demand.
func (u *Usecase) RegenerateSignatureLink(ctx context.Context, proposalID string) (*SignatureLink, error) {
	return u.dispatchSignature(ctx, proposalID, true)
}

// HandleSignatureWebhook applies a verified provider callback. Repeated or
// unrelated events are acknowledged without effect.
func (u *Usecase) HandleSignatureWebhook(ctx context.Context, ev SignatureEvent) (*WebhookResult, error) {
	if ev.EnvelopeID == "" {
		return nil, errs.Validation("envelope_id", "is required")
	}
	p, err := u.proposals.GetByEnvelopeID(ctx, ev.EnvelopeID)
	if err != nil {
		return nil, err
	}
	out := &WebhookResult{ProposalID: p.PublicID, Status: p.Status}
	if !isCompletionEvent(ev.Event) || p.Status != domain.StatusAwaitingSignature {
		u.log.Info().Str("proposal_id", p.PublicID).Str("event", ev.Event).Str("status", string(p.Status)).
			Msg("signature webhook ignored")
		return out, nil
	}

	res, err := u.systemTransition(ctx, p.PublicID, domain.StatusAwaitingSignature, domain.StatusSignatureDone)
	if err != nil {
		return nil, err
	}
	out.Status = res.NewStatus
	out.Applied = true
	return out, nil
}

func isCompletionEvent(e string) bool {
	switch e {
	case "envelope.completed", "completed", "signed":
		return true
	}
	return false
}

func (u *Usecase) systemTransition(ctx context.Context, proposalID string, from, to domain.Status) (*proposaluc.TransitionResult, error) {
	return u.engine.TransitionStatus(ctx, proposaluc.TransitionInput{
		ProposalID:     proposalID,
		Target:         string(to),
		ExpectedStatus: string(from),
		ActorID:        systemActor,
		ActorRole:      domain.RoleSystem,
	})
}

func snapshotOf(p *domain.Proposal) ports.ProposalSnapshot {
	amount := p.RequestedAmount
	if p.ApprovedAmount != nil {
		amount = *p.ApprovedAmount
	}
	return ports.ProposalSnapshot{
		ProposalID:     p.PublicID,
		ClientName:     p.ClientName,
		ClientTaxID:    p.ClientTaxID,
		ClientEmail:    p.ClientEmail,
		Amount:         amount,
		OriginationFee: p.OriginationFee,
		TermMonths:     p.TermMonths,
		MonthlyRate:    p.MonthlyRate,
	}
}

func (u *Usecase) lock(ctx context.Context, proposalID string) (func(), error) {
	return ports.LockInstruments(ctx, u.locker, proposalID, u.lockTTL)
}

