package proposal

import (
	"github.com/shopspring/decimal"

	"loan-proposal-service/internal/domain/outbox"
	domain "loan-proposal-service/internal/domain/proposal"
	"loan-proposal-service/internal/usecase/preapproval"
)

type CreateInput struct {
	ClientName        string           `json:"client_name"`
	ClientTaxID       string           `json:"client_tax_id"`
	ClientEmail       string           `json:"client_email"`
	ClientPhone       string           `json:"client_phone"`
	MonthlyIncome     *decimal.Decimal `json:"monthly_income"`
	MonthlyDebt       *decimal.Decimal `json:"monthly_debt"`
	Amount            decimal.Decimal  `json:"amount"`
	TermMonths        int              `json:"term_months"`
	MonthlyRate       decimal.Decimal  `json:"monthly_rate"`
	StoreID           string           `json:"store_id,omitempty"`
	ProductID         string           `json:"product_id,omitempty"`
	CommercialTableID string           `json:"commercial_table_id,omitempty"`

	ActorID   string      `json:"-"`
	ActorRole domain.Role `json:"-"`
}

type CreateResult struct {
	ProposalID    string             `json:"proposal_id"`
	InitialStatus domain.Status      `json:"initial_status"`
	Fee           decimal.Decimal    `json:"fee"`
	PreApproval   preapproval.Result `json:"pre_approval"`
}

type TransitionInput struct {
	ProposalID  string `json:"-"`
	Target      string `json:"status"`
	Observation string `json:"observation,omitempty"`
	// ApprovedAmount is only read when entering aprovado.
	ApprovedAmount *decimal.Decimal `json:"approved_amount,omitempty"`
	// ExpectedStatus guards against acting on a stale view of the proposal.
	ExpectedStatus string         `json:"expected_status,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`

	ActorID   string      `json:"-"`
	ActorRole domain.Role `json:"-"`
}

type SideEffectResult struct {
	TaskID string        `json:"task_id"`
	Kind   outbox.Kind   `json:"kind"`
	Status outbox.Status `json:"status"`
	Error  string        `json:"error,omitempty"`
}

type TransitionResult struct {
	ProposalID     string             `json:"proposal_id"`
	TransitionID   string             `json:"transition_id"`
	PreviousStatus domain.Status      `json:"previous_status"`
	NewStatus      domain.Status      `json:"new_status"`
	SideEffects    []SideEffectResult `json:"side_effects"`
}

type ProposalView struct {
	*domain.Proposal
	NextStatuses []domain.Status `json:"next_statuses"`
}
