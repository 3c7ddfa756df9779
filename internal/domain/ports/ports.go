// Package ports declares the collaborators the lifecycle core consumes.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"loan-proposal-service/internal/domain/errs"
	"loan-proposal-service/internal/domain/instrument"
)

// ProposalSnapshot is what the document engine needs to render a CCB.
type ProposalSnapshot struct {
	ProposalID     string          `json:"proposal_id"`
	ClientName     string          `json:"client_name"`
	ClientTaxID    string          `json:"client_tax_id"`
	ClientEmail    string          `json:"client_email"`
	Amount         decimal.Decimal `json:"amount"`
	OriginationFee decimal.Decimal `json:"origination_fee"`
	TermMonths     int             `json:"term_months"`
	MonthlyRate    decimal.Decimal `json:"monthly_rate"`
}

type DocumentGenerator interface {
	GenerateCCB(ctx context.Context, snap ProposalSnapshot) (string, error)
	MergeBooklet(ctx context.Context, proposalID string, sources []string, target string) (string, error)
}

type EnvelopeRequest struct {
	ProposalID   string
	DocumentPath string
	SignerName   string
	SignerEmail  string
	SignerTaxID  string
}

type Envelope struct {
	ID        string
	SignerURL string
}

type SignatureProvider interface {
	CreateEnvelope(ctx context.Context, req EnvelopeRequest) (Envelope, error)
}

type Debtor struct {
	Name  string
	TaxID string
	Email string
}

type IssueRequest struct {
	ProposalID        string
	InstallmentNumber int
	Amount            decimal.Decimal
	DueDate           time.Time
	Debtor            Debtor
}

// IssuedInstrument is the bank's view of one boleto.
type IssuedInstrument struct {
	ExternalRef string
	Situacao    instrument.Situacao
	PixPayload  string
	BarcodeLine string
}

type CollectionsBank interface {
	IssueInstrument(ctx context.Context, req IssueRequest) (IssuedInstrument, error)
	CancelInstrument(ctx context.Context, externalRef string) error
	GetInstrument(ctx context.Context, externalRef string) (IssuedInstrument, error)
	FetchInstrumentPDF(ctx context.Context, externalRef string) ([]byte, error)
}

type BlobStore interface {
	Exists(ctx context.Context, path string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Put(ctx context.Context, path string, body []byte, contentType string) error
	Delete(ctx context.Context, path string) error
}

// ErrLockHeld is returned by Locker.Acquire when another holder owns the key.
var ErrLockHeld = errors.New("lock held by another request")

type Locker interface {
	// Acquire returns a release func; it fails with ErrLockHeld without waiting.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// InstrumentsLockKey scopes every instrument operation of one proposal.
func InstrumentsLockKey(proposalID string) string {
	return "lock:proposal:" + proposalID + ":instruments"
}

// LockInstruments takes the per-proposal instrument lock. A held lock is a
// conflict; any other failure is the lock backend's.
func LockInstruments(ctx context.Context, l Locker, proposalID string, ttl time.Duration) (func(), error) {
	release, err := l.Acquire(ctx, InstrumentsLockKey(proposalID), ttl)
	switch {
	case errors.Is(err, ErrLockHeld):
		return nil, errs.Conflict("proposal "+proposalID+" instruments", "another instrument operation is in progress")
	case err != nil:
		return nil, errs.External("redis", "acquire lock", err)
	}
	return release, nil
}
