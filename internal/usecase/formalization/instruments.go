package formalization

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loan-proposal-service/internal/domain/errs"
	"loan-proposal-service/internal/domain/instrument"
	"loan-proposal-service/internal/domain/ports"
	domain "loan-proposal-service/internal/domain/proposal"
	"loan-proposal-service/internal/observability"
	"loan-proposal-service/internal/usecase/preapproval"
)

const bankService = "collections-bank"

// Schedule is the price-table plan of a proposal: equal installments on the
// financed amount, first due 30 days after issuedAt, then monthly.
func Schedule(p *domain.Proposal, issuedAt time.Time) ([]PlannedInstallment, error) {
	amount, err := preapproval.Installment(p.FinancedAmount(), p.MonthlyRate, p.TermMonths)
	if err != nil {
		return nil, errs.Validation("terms", err.Error())
	}
	day := time.Date(issuedAt.Year(), issuedAt.Month(), issuedAt.Day(), 0, 0, 0, 0, time.UTC)
	first := day.AddDate(0, 0, 30)
	out := make([]PlannedInstallment, 0, p.TermMonths)
	for i := 0; i < p.TermMonths; i++ {
		out = append(out, PlannedInstallment{Number: i + 1, Amount: amount, DueDate: first.AddDate(0, i, 0)})
	}
	return out, nil
}

// IssueCollectionInstruments issues whatever installments are still missing.
// Calling it again after a partial failure only issues the gaps.
func (u *Usecase) IssueCollectionInstruments(ctx context.Context, proposalID string) ([]instrument.CollectionInstrument, error) {
	release, err := u.lock(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := u.proposals.GetByPublicID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case domain.StatusSignatureDone:
	case domain.StatusInstrumentsIssued, domain.StatusPaymentPending, domain.StatusPaymentPartial, domain.StatusPaymentConfirmed:
		return u.instruments.ListActiveByProposalID(ctx, proposalID)
	default:
		return nil, errs.Validation("status", fmt.Sprintf("instruments are issued after signature, proposal is %s", p.Status))
	}

	active, err := u.instruments.ListActiveByProposalID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	have := make(map[int]bool, len(active))
	for _, it := range active {
		have[it.InstallmentNumber] = true
	}

	plan, err := Schedule(p, u.now())
	if err != nil {
		return nil, err
	}
	var failures []error
	for _, line := range plan {
		if have[line.Number] {
			continue
		}
		// another holder may have filled this gap if our lock lapsed
		taken, err := u.installmentTaken(ctx, proposalID, line.Number)
		if err != nil {
			return nil, err
		}
		if taken {
			continue
		}
		if _, err := u.issueOne(ctx, p, line, nil); err != nil {
			if errors.Is(err, errs.ErrConflict) {
				continue
			}
			failures = append(failures, fmt.Errorf("installment %d: %w", line.Number, err))
		}
	}

	all, err := u.instruments.ListActiveByProposalID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if len(failures) > 0 {
		u.log.Warn().Str("proposal_id", proposalID).Int("failed", len(failures)).Int("active", len(all)).
			Msg("instrument issuance incomplete")
		return all, errs.Joined(bankService, "issue_instrument", failures)
	}

	cur, err := u.proposals.GetByPublicID(ctx, proposalID)
	if err != nil {
		return all, err
	}
	if cur.Status != domain.StatusSignatureDone {
		// another caller completed the set and moved the proposal
		return all, nil
	}
	if _, err := u.systemTransition(ctx, proposalID, domain.StatusSignatureDone, domain.StatusInstrumentsIssued); err != nil {
		return all, err
	}
	return all, nil
}

func (u *Usecase) installmentTaken(ctx context.Context, proposalID string, number int) (bool, error) {
	active, err := u.instruments.ListActiveByProposalID(ctx, proposalID)
	if err != nil {
		return false, err
	}
	for _, it := range active {
		if it.InstallmentNumber == number {
			return true, nil
		}
	}
	return false, nil
}

// issueOne calls the bank and records the new instrument right away, so a
// later failure never loses a boleto the bank already created.
func (u *Usecase) issueOne(ctx context.Context, p *domain.Proposal, line PlannedInstallment, replaces *string) (*instrument.CollectionInstrument, error) {
	start := time.Now()
	iss, err := u.bank.IssueInstrument(ctx, ports.IssueRequest{
		ProposalID:        p.PublicID,
		InstallmentNumber: line.Number,
		Amount:            line.Amount,
		DueDate:           line.DueDate,
		Debtor:            ports.Debtor{Name: p.ClientName, TaxID: p.ClientTaxID, Email: p.ClientEmail},
	})
	observability.RecordExternalCall(bankService, "issue_instrument", time.Since(start), err)
	if err != nil {
		return nil, errs.External(bankService, "issue_instrument", err)
	}

	situacao := iss.Situacao
	if situacao == "" {
		situacao = instrument.SituacaoToBeReceived
	}
	it := instrument.CollectionInstrument{
		ID:                uuid.NewString(),
		ProposalID:        p.PublicID,
		InstallmentNumber: line.Number,
		Amount:            line.Amount,
		DueDate:           line.DueDate,
		ExternalRef:       iss.ExternalRef,
		Situacao:          situacao,
		PixPayload:        iss.PixPayload,
		BarcodeLine:       iss.BarcodeLine,
		ReplacesID:        replaces,
	}
	if err := u.instruments.CreateBatch(ctx, []instrument.CollectionInstrument{it}); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			u.voidDuplicate(ctx, p.PublicID, line.Number, iss.ExternalRef)
		}
		return nil, err
	}
	return &it, nil
}

// voidDuplicate cancels a boleto the bank issued for an installment that
// already has an active instrument.
func (u *Usecase) voidDuplicate(ctx context.Context, proposalID string, number int, ref string) {
	start := time.Now()
	err := u.bank.CancelInstrument(ctx, ref)
	observability.RecordExternalCall(bankService, "cancel_instrument", time.Since(start), err)
	ev := u.log.Warn()
	if err != nil {
		ev = u.log.Error().Err(err)
	}
	ev.Str("proposal_id", proposalID).Int("installment", number).Str("external_ref", ref).
		Msg("voiding duplicate boleto")
}

func (u *Usecase) cancelOne(ctx context.Context, it instrument.CollectionInstrument) error {
	start := time.Now()
	err := u.bank.CancelInstrument(ctx, it.ExternalRef)
	observability.RecordExternalCall(bankService, "cancel_instrument", time.Since(start), err)
	if err != nil {
		return errs.External(bankService, "cancel_instrument", err)
	}
	return u.instruments.UpdateSituacao(ctx, it.ID, instrument.SituacaoCanceled)
}

// ExtendDueDates cancels each selected open instrument and reissues it with
// newDueDate. The reissued ones are returned even when others failed.
func (u *Usecase) ExtendDueDates(ctx context.Context, proposalID string, instrumentIDs []string, newDueDate time.Time) ([]instrument.CollectionInstrument, error) {
	ids := uniqueIDs(instrumentIDs)
	if len(ids) == 0 {
		return nil, errs.Validation("instrument_ids", "at least one instrument is required")
	}
	due := time.Date(newDueDate.Year(), newDueDate.Month(), newDueDate.Day(), 0, 0, 0, 0, time.UTC)
	if !due.After(u.now()) {
		return nil, errs.Validation("new_due_date", "must be in the future")
	}

	release, err := u.lock(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := u.proposals.GetByPublicID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	items, err := u.instruments.GetByIDs(ctx, proposalID, ids)
	if err != nil {
		return nil, err
	}
	if len(items) != len(ids) {
		return nil, errs.Validation("instrument_ids", "unknown instrument for this proposal")
	}
	for _, it := range items {
		if !it.Open() {
			return nil, errs.Validation("instrument_ids", fmt.Sprintf("instrument %s is %s and cannot be extended", it.ID, it.Situacao))
		}
	}

	var (
		reissued []instrument.CollectionInstrument
		failures []error
	)
	for _, it := range items {
		if err := u.cancelOne(ctx, it); err != nil {
			failures = append(failures, fmt.Errorf("installment %d cancel: %w", it.InstallmentNumber, err))
			continue
		}
		old := it.ID
		created, err := u.issueOne(ctx, p, PlannedInstallment{Number: it.InstallmentNumber, Amount: it.Amount, DueDate: due}, &old)
		if err != nil {
			failures = append(failures, fmt.Errorf("installment %d reissue: %w", it.InstallmentNumber, err))
			continue
		}
		reissued = append(reissued, *created)
	}
	return reissued, errs.Joined(bankService, "extend_due_date", failures)
}

func (u *Usecase) GetSettlementQuote(ctx context.Context, proposalID string) (*SettlementQuote, error) {
	if _, err := u.proposals.GetByPublicID(ctx, proposalID); err != nil {
		return nil, err
	}
	open, total, err := u.openInstruments(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	return &SettlementQuote{ProposalID: proposalID, OutstandingTotal: total, Instruments: open}, nil
}

func (u *Usecase) openInstruments(ctx context.Context, proposalID string) ([]instrument.CollectionInstrument, decimal.Decimal, error) {
	active, err := u.instruments.ListActiveByProposalID(ctx, proposalID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	open := make([]instrument.CollectionInstrument, 0, len(active))
	total := decimal.Zero
	for _, it := range active {
		if it.Open() {
			open = append(open, it)
			total = total.Add(it.Amount)
		}
	}
	return open, total, nil
}

// ApplySettlementDiscount replaces every open instrument with a discounted
// set. Without Confirm it only validates.
func (u *Usecase) ApplySettlementDiscount(ctx context.Context, in SettlementInput) ([]instrument.CollectionInstrument, error) {
	release, err := u.lock(ctx, in.ProposalID)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := u.proposals.GetByPublicID(ctx, in.ProposalID)
	if err != nil {
		return nil, err
	}
	open, outstanding, err := u.openInstruments(ctx, in.ProposalID)
	if err != nil {
		return nil, err
	}
	if err := u.validateDiscount(in, open, outstanding); err != nil {
		return nil, err
	}
	if !in.Confirm {
		return nil, errs.Validation("confirm", "discount must be explicitly confirmed")
	}

	var failures []error
	for _, it := range open {
		if err := u.cancelOne(ctx, it); err != nil {
			failures = append(failures, fmt.Errorf("installment %d cancel: %w", it.InstallmentNumber, err))
		}
	}
	if len(failures) > 0 {
		// the new set is not issued over instruments that are still payable
		return nil, errs.Joined(bankService, "settlement_cancel", failures)
	}

	// numbering continues after installments that stay active (already paid)
	base, err := u.lastSettledNumber(ctx, in.ProposalID)
	if err != nil {
		return nil, err
	}
	plan := append([]PlannedInstallment(nil), in.Installments...)
	sort.SliceStable(plan, func(i, j int) bool { return plan[i].DueDate.Before(plan[j].DueDate) })

	var issued []instrument.CollectionInstrument
	for i, line := range plan {
		line.Number = base + i + 1
		var replaces *string
		if i < len(open) {
			id := open[i].ID
			replaces = &id
		}
		created, err := u.issueOne(ctx, p, line, replaces)
		if err != nil {
			failures = append(failures, fmt.Errorf("installment %d issue: %w", line.Number, err))
			continue
		}
		issued = append(issued, *created)
	}
	u.log.Info().Str("proposal_id", in.ProposalID).Str("outstanding", outstanding.StringFixed(2)).
		Str("new_total", in.NewTotal.StringFixed(2)).Int("issued", len(issued)).Msg("settlement discount applied")
	return issued, errs.Joined(bankService, "settlement_issue", failures)
}

func (u *Usecase) lastSettledNumber(ctx context.Context, proposalID string) (int, error) {
	active, err := u.instruments.ListActiveByProposalID(ctx, proposalID)
	if err != nil {
		return 0, err
	}
	last := 0
	for _, it := range active {
		if !it.Open() && it.InstallmentNumber > last {
			last = it.InstallmentNumber
		}
	}
	return last, nil
}

func (u *Usecase) validateDiscount(in SettlementInput, open []instrument.CollectionInstrument, outstanding decimal.Decimal) error {
	if len(open) == 0 {
		return errs.Validation("instruments", "no open instruments to settle")
	}
	if !in.NewTotal.IsPositive() {
		return errs.Validation("new_total", "must be greater than zero")
	}
	if in.NewTotal.GreaterThan(outstanding) {
		return errs.Validation("new_total", fmt.Sprintf("must not exceed the outstanding %s", outstanding.StringFixed(2)))
	}
	if len(in.Installments) == 0 {
		return errs.Validation("installments", "at least one installment is required")
	}
	sum := decimal.Zero
	today := u.now()
	for i, line := range in.Installments {
		if !line.Amount.IsPositive() {
			return errs.Validation("installments", fmt.Sprintf("installment %d amount must be greater than zero", i+1))
		}
		if !line.DueDate.After(today) {
			return errs.Validation("installments", fmt.Sprintf("installment %d due date must be in the future", i+1))
		}
		sum = sum.Add(line.Amount)
	}
	if !sum.Equal(in.NewTotal) {
		return errs.Validation("installments", fmt.Sprintf("sum %s does not match new_total %s", sum.StringFixed(2), in.NewTotal.StringFixed(2)))
	}
	return nil
}

// RefreshPaymentSituation pulls each instrument's situacao from the bank and
// advances a proposal in boletos_emitidos to the matching payment status.
func (u *Usecase) RefreshPaymentSituation(ctx context.Context, proposalID string) (*PaymentSituation, error) {
	release, err := u.lock(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := u.proposals.GetByPublicID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	active, err := u.instruments.ListActiveByProposalID(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	var failures []error
	for _, it := range active {
		if it.ExternalRef == "" {
			continue
		}
		start := time.Now()
		got, err := u.bank.GetInstrument(ctx, it.ExternalRef)
		observability.RecordExternalCall(bankService, "get_instrument", time.Since(start), err)
		if err != nil {
			failures = append(failures, fmt.Errorf("installment %d: %w", it.InstallmentNumber, err))
			continue
		}
		if got.Situacao != "" && got.Situacao != it.Situacao {
			if err := u.instruments.UpdateSituacao(ctx, it.ID, got.Situacao); err != nil {
				return nil, err
			}
		}
	}

	current, err := u.instruments.ListActiveByProposalID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	out := &PaymentSituation{ProposalID: proposalID, PreviousStatus: p.Status, ProposalStatus: p.Status, Instruments: current}
	if len(failures) > 0 {
		return out, errs.Joined(bankService, "get_instrument", failures)
	}

	if target, ok := PaymentStatusFor(current); ok && p.Status == domain.StatusInstrumentsIssued {
		res, err := u.systemTransition(ctx, proposalID, domain.StatusInstrumentsIssued, target)
		if err != nil {
			return out, err
		}
		out.ProposalStatus = res.NewStatus
	}
	return out, nil
}

// PaymentStatusFor derives the payment status an active set implies.
func PaymentStatusFor(active []instrument.CollectionInstrument) (domain.Status, bool) {
	if len(active) == 0 {
		return "", false
	}
	received, overdue := 0, 0
	for _, it := range active {
		switch it.Situacao {
		case instrument.SituacaoReceived:
			received++
		case instrument.SituacaoOverdue:
			overdue++
		}
	}
	switch {
	case received == len(active):
		return domain.StatusPaymentConfirmed, true
	case received > 0:
		return domain.StatusPaymentPartial, true
	case overdue > 0:
		return domain.StatusPaymentPending, true
	}
	return "", false
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
