package proposal

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusDraft             Status = "rascunho"
	StatusAwaitingAnalysis  Status = "aguardando_analise"
	StatusInAnalysis        Status = "em_analise"
	StatusPending           Status = "pendente"
	StatusApproved          Status = "aprovado"
	StatusRejected          Status = "rejeitado"
	StatusCanceled          Status = "cancelado"
	StatusCCBGenerated      Status = "ccb_gerada"
	StatusAwaitingSignature Status = "aguardando_assinatura"
	StatusSignatureDone     Status = "assinatura_concluida"
	StatusInstrumentsIssued Status = "boletos_emitidos"
	StatusPaymentPending    Status = "pagamento_pendente"
	StatusPaymentPartial    Status = "pagamento_parcial"
	StatusPaymentConfirmed  Status = "pagamento_confirmado"
)

var allStatuses = []Status{
	StatusDraft, StatusAwaitingAnalysis, StatusInAnalysis, StatusPending,
	StatusApproved, StatusRejected, StatusCanceled, StatusCCBGenerated,
	StatusAwaitingSignature, StatusSignatureDone, StatusInstrumentsIssued,
	StatusPaymentPending, StatusPaymentPartial, StatusPaymentConfirmed,
}

// AllStatuses returns the closed status set in declaration order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

func ParseStatus(s string) (Status, bool) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// RegisteredClientStatuses mark a tax id as an existing client (TAC exemption).
// pagamento_confirmado stands for a settled contract.
var RegisteredClientStatuses = []Status{StatusApproved, StatusSignatureDone, StatusPaymentConfirmed}

type PreApprovalOutcome string

const (
	OutcomeApproved    PreApprovalOutcome = "APPROVED"
	OutcomeRejected    PreApprovalOutcome = "REJECTED"
	OutcomePendingData PreApprovalOutcome = "PENDING_DATA"
	OutcomeError       PreApprovalOutcome = "ERROR"
)

type Proposal struct {
	ID       uint64 `gorm:"primaryKey;column:id" json:"-"`
	PublicID string `gorm:"column:proposal_id;size:32;uniqueIndex:ux_proposals_proposal_id" json:"proposal_id"`
	Status   Status `gorm:"column:status;size:32;index:idx_proposals_status" json:"status"`
	Version  int64  `gorm:"column:version;not null;default:0" json:"version"`

	// Client snapshot taken at intake.
	ClientName    string           `gorm:"column:client_name;size:160" json:"client_name"`
	ClientTaxID   string           `gorm:"column:client_tax_id;size:14;index:idx_proposals_tax_id" json:"client_tax_id"`
	ClientEmail   string           `gorm:"column:client_email;size:160" json:"client_email"`
	ClientPhone   string           `gorm:"column:client_phone;size:32" json:"client_phone"`
	MonthlyIncome *decimal.Decimal `gorm:"column:monthly_income;type:decimal(18,2)" json:"monthly_income"`
	MonthlyDebt   *decimal.Decimal `gorm:"column:monthly_debt;type:decimal(18,2)" json:"monthly_debt"`

	// Loan terms.
	RequestedAmount decimal.Decimal  `gorm:"column:requested_amount;type:decimal(18,2)" json:"requested_amount"`
	ApprovedAmount  *decimal.Decimal `gorm:"column:approved_amount;type:decimal(18,2)" json:"approved_amount,omitempty"`
	TermMonths      int              `gorm:"column:term_months" json:"term_months"`
	MonthlyRate     decimal.Decimal  `gorm:"column:monthly_rate;type:decimal(8,4)" json:"monthly_rate"`
	OriginationFee  decimal.Decimal  `gorm:"column:origination_fee;type:decimal(18,2)" json:"origination_fee"`

	PreApprovalOutcome PreApprovalOutcome `gorm:"column:preapproval_outcome;size:16" json:"preapproval_outcome"`
	PreApprovalReason  string             `gorm:"column:preapproval_reason;type:text" json:"preapproval_reason"`

	StoreID           string `gorm:"column:store_id;size:32" json:"store_id,omitempty"`
	ProductID         string `gorm:"column:product_id;size:32" json:"product_id,omitempty"`
	CommercialTableID string `gorm:"column:commercial_table_id;size:32" json:"commercial_table_id,omitempty"`

	CCBDocumentPath     string `gorm:"column:ccb_document_path;type:text" json:"ccb_document_path,omitempty"`
	SignatureEnvelopeID string `gorm:"column:signature_envelope_id;size:64;index" json:"signature_envelope_id,omitempty"`
	SignerURL           string `gorm:"column:signer_url;type:text" json:"signer_url,omitempty"`

	CreatedBy       string     `gorm:"column:created_by;size:64" json:"created_by"`
	ApprovedAt      *time.Time `gorm:"column:approved_at" json:"approved_at,omitempty"`
	SignedAt        *time.Time `gorm:"column:signed_at" json:"signed_at,omitempty"`
	PaidAt          *time.Time `gorm:"column:paid_at" json:"paid_at,omitempty"`
	StatusUpdatedAt time.Time  `gorm:"column:status_updated_at" json:"status_updated_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Proposal) TableName() string { return "proposals" }

// FinancedAmount is the principal that instruments are computed on.
func (p *Proposal) FinancedAmount() decimal.Decimal {
	base := p.RequestedAmount
	if p.ApprovedAmount != nil && p.ApprovedAmount.IsPositive() {
		base = *p.ApprovedAmount
	}
	return base.Add(p.OriginationFee)
}

type TransitionKind string

const (
	KindStatusChange TransitionKind = "status_change"
	KindObservation  TransitionKind = "observation"
)

// StatusTransition is the append-only audit record of a proposal.
type StatusTransition struct {
	ID          string            `gorm:"column:id;size:36;primaryKey" json:"id"`
	ProposalID  string            `gorm:"column:proposal_id;size:32;index:idx_transitions_proposal;uniqueIndex:ux_transitions_seq,priority:1" json:"proposal_id"`
	// Seq orders a proposal's history; timestamps may tie.
	Seq         int64             `gorm:"column:seq;uniqueIndex:ux_transitions_seq,priority:2" json:"seq"`
	Kind        TransitionKind    `gorm:"column:kind;size:16" json:"kind"`
	FromStatus  Status            `gorm:"column:from_status;size:32" json:"from_status"`
	ToStatus    Status            `gorm:"column:to_status;size:32" json:"to_status"`
	ActorID     string            `gorm:"column:actor_id;size:64" json:"actor_id"`
	ActorRole   Role              `gorm:"column:actor_role;size:16" json:"actor_role"`
	Observation *string           `gorm:"column:observation;type:text" json:"observation,omitempty"`
	Metadata    datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"column:created_at;index:idx_transitions_proposal" json:"created_at"`
}

func (StatusTransition) TableName() string { return "status_transitions" }
