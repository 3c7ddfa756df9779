package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"loan-proposal-service/internal/domain/instrument"
	"loan-proposal-service/internal/domain/ports"
)

var ErrInjected = errors.New("injected failure")

// Bank issues sequential references and remembers every call.
type Bank struct {
	mu        sync.Mutex
	seq       int
	Issued    []ports.IssueRequest
	Canceled  []string
	Situacoes map[string]instrument.Situacao
	// FailIssue makes IssueInstrument fail for the listed installment numbers.
	FailIssue map[int]bool
	// FailCancel makes CancelInstrument fail for the listed refs.
	FailCancel map[string]bool
	FailFetch  bool
}

var _ ports.CollectionsBank = (*Bank)(nil)

func NewBank() *Bank {
	return &Bank{Situacoes: map[string]instrument.Situacao{}, FailIssue: map[int]bool{}, FailCancel: map[string]bool{}}
}

func (b *Bank) IssueInstrument(_ context.Context, req ports.IssueRequest) (ports.IssuedInstrument, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailIssue[req.InstallmentNumber] {
		return ports.IssuedInstrument{}, ErrInjected
	}
	b.seq++
	ref := fmt.Sprintf("BOL%04d", b.seq)
	b.Issued = append(b.Issued, req)
	b.Situacoes[ref] = instrument.SituacaoToBeReceived
	return ports.IssuedInstrument{
		ExternalRef: ref,
		Situacao:    instrument.SituacaoToBeReceived,
		PixPayload:  "pix-" + ref,
		BarcodeLine: "34191" + ref,
	}, nil
}

func (b *Bank) CancelInstrument(_ context.Context, ref string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailCancel[ref] {
		return ErrInjected
	}
	b.Canceled = append(b.Canceled, ref)
	b.Situacoes[ref] = instrument.SituacaoCanceled
	return nil
}

func (b *Bank) GetInstrument(_ context.Context, ref string) (ports.IssuedInstrument, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.Situacoes[ref]
	if !ok {
		return ports.IssuedInstrument{}, fmt.Errorf("unknown ref %s", ref)
	}
	return ports.IssuedInstrument{ExternalRef: ref, Situacao: s}, nil
}

func (b *Bank) FetchInstrumentPDF(_ context.Context, ref string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailFetch {
		return nil, ErrInjected
	}
	return []byte("%PDF-1.4 " + ref), nil
}

func (b *Bank) SetSituacao(ref string, s instrument.Situacao) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Situacoes[ref] = s
}

func (b *Bank) IssuedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Issued)
}

// Blobs is a map-backed blob store.
type Blobs struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

var _ ports.BlobStore = (*Blobs)(nil)

func NewBlobs() *Blobs { return &Blobs{Objects: map[string][]byte{}} }

func (b *Blobs) Exists(_ context.Context, path string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.Objects[path]
	return ok, nil
}

func (b *Blobs) List(_ context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for k := range b.Objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (b *Blobs) Put(_ context.Context, path string, body []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Objects[path] = append([]byte(nil), body...)
	return nil
}

func (b *Blobs) Delete(_ context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.Objects, path)
	return nil
}

// Purge drops every object under prefix.
func (b *Blobs) Purge(prefix string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range b.Objects {
		if strings.HasPrefix(k, prefix) {
			delete(b.Objects, k)
		}
	}
}

// DocGen renders into Blobs so merged booklets are observable.
type DocGen struct {
	Blobs   *Blobs
	Fail    bool
	Renders int
}

var _ ports.DocumentGenerator = (*DocGen)(nil)

func (d *DocGen) GenerateCCB(ctx context.Context, snap ports.ProposalSnapshot) (string, error) {
	if d.Fail {
		return "", ErrInjected
	}
	d.Renders++
	path := "propostas/" + snap.ProposalID + "/ccb/ccb.pdf"
	if d.Blobs != nil {
		_ = d.Blobs.Put(ctx, path, []byte("%PDF ccb"), "application/pdf")
	}
	return path, nil
}

func (d *DocGen) MergeBooklet(ctx context.Context, _ string, sources []string, target string) (string, error) {
	if d.Fail {
		return "", ErrInjected
	}
	if d.Blobs != nil {
		_ = d.Blobs.Put(ctx, target, []byte(strings.Join(sources, "|")), "application/pdf")
	}
	return target, nil
}

type Signer struct {
	Fail  bool
	Calls int
}

var _ ports.SignatureProvider = (*Signer)(nil)

func (s *Signer) CreateEnvelope(_ context.Context, req ports.EnvelopeRequest) (ports.Envelope, error) {
	if s.Fail {
		return ports.Envelope{}, ErrInjected
	}
	s.Calls++
	env := fmt.Sprintf("env-%s-%d", req.ProposalID, s.Calls)
	return ports.Envelope{ID: env, SignerURL: "https://sign.example/" + env}, nil
}
