package formalization

import (
	"time"

	"github.com/shopspring/decimal"

	"loan-proposal-service/internal/domain/instrument"
	domain "loan-proposal-service/internal/domain/proposal"
)

// PlannedInstallment is one line of an issuance plan.
type PlannedInstallment struct {
	Number  int             `json:"number"`
	Amount  decimal.Decimal `json:"amount"`
	DueDate time.Time       `json:"due_date"`
}

type SettlementQuote struct {
	ProposalID       string                            `json:"proposal_id"`
	OutstandingTotal decimal.Decimal                   `json:"outstanding_total"`
	Instruments      []instrument.CollectionInstrument `json:"instruments"`
}

type SettlementInput struct {
	ProposalID   string
	NewTotal     decimal.Decimal
	Installments []PlannedInstallment
	Confirm      bool
}

type PaymentSituation struct {
	ProposalID     string                            `json:"proposal_id"`
	PreviousStatus domain.Status                     `json:"previous_status"`
	ProposalStatus domain.Status                     `json:"proposal_status"`
	Instruments    []instrument.CollectionInstrument `json:"instruments"`
}

type SignatureLink struct {
	ProposalID string        `json:"proposal_id"`
	EnvelopeID string        `json:"envelope_id"`
	SignerURL  string        `json:"signer_url"`
	Status     domain.Status `json:"status"`
}

// SignatureEvent is the e-signature provider's callback payload.
type SignatureEvent struct {
	EnvelopeID string `json:"envelope_id"`
	Event      string `json:"event"`
}

type WebhookResult struct {
	ProposalID string        `json:"proposal_id"`
	Status     domain.Status `json:"status"`
	Applied    bool          `json:"applied"`
}
