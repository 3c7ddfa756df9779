package portsmock

import (
	"context"
	"errors"
	"time"

	"loan-proposal-service/internal/domain/ports"
)

var (
	_ ports.DocumentGenerator = (*DocGen)(nil)
	_ ports.SignatureProvider = (*Signer)(nil)
	_ ports.CollectionsBank   = (*Bank)(nil)
	_ ports.BlobStore         = (*Blobs)(nil)
	_ ports.Locker            = (*Locker)(nil)
)

var errUnimplemented = errors.New("portsmock: method not implemented")

type DocGen struct {
	GenerateCCBFn  func(ctx context.Context, snap ports.ProposalSnapshot) (string, error)
	MergeBookletFn func(ctx context.Context, proposalID string, sources []string, target string) (string, error)
}

func (m *DocGen) GenerateCCB(ctx context.Context, snap ports.ProposalSnapshot) (string, error) {
	if m.GenerateCCBFn != nil {
		return m.GenerateCCBFn(ctx, snap)
	}
	return "", errUnimplemented
}

func (m *DocGen) MergeBooklet(ctx context.Context, proposalID string, sources []string, target string) (string, error) {
	if m.MergeBookletFn != nil {
		return m.MergeBookletFn(ctx, proposalID, sources, target)
	}
	return "", errUnimplemented
}

type Signer struct {
	CreateEnvelopeFn func(ctx context.Context, req ports.EnvelopeRequest) (ports.Envelope, error)
}

func (m *Signer) CreateEnvelope(ctx context.Context, req ports.EnvelopeRequest) (ports.Envelope, error) {
	if m.CreateEnvelopeFn != nil {
		return m.CreateEnvelopeFn(ctx, req)
	}
	return ports.Envelope{}, errUnimplemented
}

type Bank struct {
	IssueInstrumentFn    func(ctx context.Context, req ports.IssueRequest) (ports.IssuedInstrument, error)
	CancelInstrumentFn   func(ctx context.Context, externalRef string) error
	GetInstrumentFn      func(ctx context.Context, externalRef string) (ports.IssuedInstrument, error)
	FetchInstrumentPDFFn func(ctx context.Context, externalRef string) ([]byte, error)
}

func (m *Bank) IssueInstrument(ctx context.Context, req ports.IssueRequest) (ports.IssuedInstrument, error) {
	if m.IssueInstrumentFn != nil {
		return m.IssueInstrumentFn(ctx, req)
	}
	return ports.IssuedInstrument{}, errUnimplemented
}

func (m *Bank) CancelInstrument(ctx context.Context, externalRef string) error {
	if m.CancelInstrumentFn != nil {
		return m.CancelInstrumentFn(ctx, externalRef)
	}
	return errUnimplemented
}

func (m *Bank) GetInstrument(ctx context.Context, externalRef string) (ports.IssuedInstrument, error) {
	if m.GetInstrumentFn != nil {
		return m.GetInstrumentFn(ctx, externalRef)
	}
	return ports.IssuedInstrument{}, errUnimplemented
}

func (m *Bank) FetchInstrumentPDF(ctx context.Context, externalRef string) ([]byte, error) {
	if m.FetchInstrumentPDFFn != nil {
		return m.FetchInstrumentPDFFn(ctx, externalRef)
	}
	return nil, errUnimplemented
}

type Blobs struct {
	ExistsFn func(ctx context.Context, path string) (bool, error)
	ListFn   func(ctx context.Context, prefix string) ([]string, error)
	PutFn    func(ctx context.Context, path string, body []byte, contentType string) error
	DeleteFn func(ctx context.Context, path string) error
}

func (m *Blobs) Exists(ctx context.Context, path string) (bool, error) {
	if m.ExistsFn != nil {
		return m.ExistsFn(ctx, path)
	}
	return false, errUnimplemented
}

func (m *Blobs) List(ctx context.Context, prefix string) ([]string, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, prefix)
	}
	return nil, errUnimplemented
}

func (m *Blobs) Put(ctx context.Context, path string, body []byte, contentType string) error {
	if m.PutFn != nil {
		return m.PutFn(ctx, path, body, contentType)
	}
	return errUnimplemented
}

func (m *Blobs) Delete(ctx context.Context, path string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, path)
	}
	return errUnimplemented
}

// Locker grants every lock unless AcquireFn says otherwise.
type Locker struct {
	AcquireFn func(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

func (m *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if m.AcquireFn != nil {
		return m.AcquireFn(ctx, key, ttl)
	}
	return func() {}, nil
}
