package instrument

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Situacao mirrors the bank's lifecycle of a boleto.
type Situacao string

const (
	SituacaoToBeReceived Situacao = "a_receber"
	SituacaoProcessing   Situacao = "processando"
	SituacaoIssued       Situacao = "emitido"
	SituacaoReceived     Situacao = "recebido"
	SituacaoOverdue      Situacao = "atrasado"
	SituacaoCanceled     Situacao = "cancelado"
	SituacaoFailed       Situacao = "falha"
)

// InactiveSituacoes never count toward the active set of a proposal.
var InactiveSituacoes = []Situacao{SituacaoCanceled, SituacaoFailed}

// CollectionInstrument is one boleto (installment) of a proposal.
type CollectionInstrument struct {
	ID                string          `gorm:"column:id;size:36;primaryKey" json:"id"`
	ProposalID        string          `gorm:"column:proposal_id;size:32;index:idx_instruments_proposal;uniqueIndex:ux_instruments_active_slot,priority:1" json:"proposal_id"`
	InstallmentNumber int             `gorm:"column:installment_number" json:"installment_number"`
	// ActiveSlot holds InstallmentNumber while the instrument is active and
	// NULL otherwise, so a proposal has at most one active boleto per number.
	ActiveSlot        *int            `gorm:"column:active_slot;uniqueIndex:ux_instruments_active_slot,priority:2" json:"-"`
	Amount            decimal.Decimal `gorm:"column:amount;type:decimal(18,2)" json:"amount"`
	DueDate           time.Time       `gorm:"column:due_date;type:date" json:"due_date"`
	ExternalRef       string          `gorm:"column:external_ref;size:64;index" json:"external_ref"`
	Situacao          Situacao        `gorm:"column:situacao;size:16;index:idx_instruments_proposal" json:"situacao"`
	PixPayload        string          `gorm:"column:pix_payload;type:text" json:"pix_payload,omitempty"`
	BarcodeLine       string          `gorm:"column:barcode_line;size:64" json:"barcode_line,omitempty"`
	StoragePath       *string         `gorm:"column:storage_path;type:text" json:"storage_path,omitempty"`
	ReplacesID        *string         `gorm:"column:replaces_id;size:36" json:"replaces_id,omitempty"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (CollectionInstrument) TableName() string { return "collection_instruments" }

func (c *CollectionInstrument) Active() bool { return IsActiveSituacao(c.Situacao) }

// Slot is the ActiveSlot value the instrument's situacao implies.
func (c *CollectionInstrument) Slot() *int {
	if !c.Active() {
		return nil
	}
	n := c.InstallmentNumber
	return &n
}

func IsActiveSituacao(s Situacao) bool {
	return s != SituacaoCanceled && s != SituacaoFailed
}

// Open instruments can still be canceled or reissued at the bank.
func (c *CollectionInstrument) Open() bool {
	return c.Active() && c.Situacao != SituacaoReceived
}

// ConsolidatedBooklet (carnê) is the merged PDF of every active instrument.
type ConsolidatedBooklet struct {
	ID                uint64    `gorm:"column:id;primaryKey" json:"-"`
	ProposalID        string    `gorm:"column:proposal_id;size:32;uniqueIndex:ux_booklets_proposal" json:"proposal_id"`
	StoragePath       string    `gorm:"column:storage_path;type:text" json:"storage_path"`
	TotalInstruments  int       `gorm:"column:total_instruments" json:"total_instruments"`
	InstrumentSetHash string    `gorm:"column:instrument_set_hash;size:64" json:"instrument_set_hash"`
	GeneratedAt       time.Time `gorm:"column:generated_at" json:"generated_at"`
}

func (ConsolidatedBooklet) TableName() string { return "consolidated_booklets" }

// SetHash fingerprints an instrument set independent of order.
func SetHash(items []CollectionInstrument) string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:])
}

// Path conventions in blob storage.
func ProposalPrefix(proposalID string) string {
	return "propostas/" + proposalID + "/boletos/"
}

func InstrumentPath(proposalID string, installment int, externalRef string) string {
	return fmt.Sprintf("%sparcela-%02d_%s.pdf", ProposalPrefix(proposalID), installment, externalRef)
}

func BookletPath(proposalID, setHash string) string {
	h := setHash
	if len(h) > 12 {
		h = h[:12]
	}
	return "propostas/" + proposalID + "/carne/carne-" + h + ".pdf"
}
