// Package memstore is an in-memory, concurrency-safe implementation of the
// repositories and unit of work, for use case tests that need real state.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"loan-proposal-service/internal/domain/errs"
	"loan-proposal-service/internal/domain/instrument"
	"loan-proposal-service/internal/domain/outbox"
	"loan-proposal-service/internal/domain/product"
	"loan-proposal-service/internal/domain/proposal"
	"loan-proposal-service/internal/domain/uow"
)

type Store struct {
	txMu sync.Mutex // serializes transactions like a row lock would
	mu   sync.Mutex

	nextID      uint64
	proposals   map[string]proposal.Proposal
	transitions []proposal.StatusTransition
	instruments map[string]instrument.CollectionInstrument
	booklets    map[string]instrument.ConsolidatedBooklet
	products    map[string]product.Product
	tasks       map[string]outbox.Task
}

func New() *Store {
	return &Store{
		proposals:   map[string]proposal.Proposal{},
		instruments: map[string]instrument.CollectionInstrument{},
		booklets:    map[string]instrument.ConsolidatedBooklet{},
		products:    map[string]product.Product{},
		tasks:       map[string]outbox.Task{},
	}
}

var _ uow.UnitOfWork = (*Store)(nil)

func (s *Store) Repos() uow.Repos {
	return uow.Repos{
		Proposals:   (*proposalRepo)(s),
		Transitions: (*transitionRepo)(s),
		Instruments: (*instrumentRepo)(s),
		Booklets:    (*bookletRepo)(s),
		Tasks:       (*taskRepo)(s),
	}
}

func (s *Store) Products() product.Repository { return (*productRepo)(s) }

// Seed helpers.

func (s *Store) PutProposal(p proposal.Proposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextID++
		p.ID = s.nextID
	}
	s.proposals[p.PublicID] = p
}

func (s *Store) PutProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) PutInstrument(c instrument.CollectionInstrument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instruments[c.ID] = c
}

// Inspection helpers.

func (s *Store) Proposal(id string) proposal.Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proposals[id]
}

func (s *Store) Transitions(proposalID string) []proposal.StatusTransition {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []proposal.StatusTransition
	for _, t := range s.transitions {
		if t.ProposalID == proposalID {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) AllInstruments(proposalID string) []instrument.CollectionInstrument {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []instrument.CollectionInstrument
	for _, c := range s.instruments {
		if c.ProposalID == proposalID {
			out = append(out, c)
		}
	}
	sortInstruments(out)
	return out
}

func (s *Store) Tasks(proposalID string) []outbox.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []outbox.Task
	for _, t := range s.tasks {
		if t.ProposalID == proposalID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(s.Repos()); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) WithinProposalTx(ctx context.Context, proposalID string, fn func(r uow.Repos, p *proposal.Proposal) error) error {
	return s.WithinTx(ctx, func(r uow.Repos) error {
		p, err := r.Proposals.GetByPublicIDForUpdate(ctx, proposalID)
		if err != nil {
			return err
		}
		return fn(r, p)
	})
}

type snapshot struct {
	proposals   map[string]proposal.Proposal
	transitions []proposal.StatusTransition
	instruments map[string]instrument.CollectionInstrument
	booklets    map[string]instrument.ConsolidatedBooklet
	tasks       map[string]outbox.Task
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		proposals:   cloneMap(s.proposals),
		transitions: append([]proposal.StatusTransition(nil), s.transitions...),
		instruments: cloneMap(s.instruments),
		booklets:    cloneMap(s.booklets),
		tasks:       cloneMap(s.tasks),
	}
}

func (s *Store) restore(sn snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals = sn.proposals
	s.transitions = sn.transitions
	s.instruments = sn.instruments
	s.booklets = sn.booklets
	s.tasks = sn.tasks
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortInstruments(items []instrument.CollectionInstrument) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].InstallmentNumber != items[j].InstallmentNumber {
			return items[i].InstallmentNumber < items[j].InstallmentNumber
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, errs.ErrNotFound)
}

// ---- proposals ----

type proposalRepo Store

func (r *proposalRepo) Create(_ context.Context, p *proposal.Proposal) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.proposals[p.PublicID]; dup {
		return errs.Conflict("proposal "+p.PublicID, "already exists")
	}
	s.nextID++
	p.ID = s.nextID
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.proposals[p.PublicID] = *p
	return nil
}

func (r *proposalRepo) GetByPublicID(_ context.Context, id string) (*proposal.Proposal, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, notFound("proposal", id)
	}
	return &p, nil
}

func (r *proposalRepo) GetByPublicIDForUpdate(ctx context.Context, id string) (*proposal.Proposal, error) {
	return r.GetByPublicID(ctx, id)
}

func (r *proposalRepo) GetByEnvelopeID(_ context.Context, envelopeID string) (*proposal.Proposal, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.proposals {
		if p.SignatureEnvelopeID == envelopeID {
			return &p, nil
		}
	}
	return nil, notFound("envelope", envelopeID)
}

func (r *proposalRepo) UpdateStatus(_ context.Context, p *proposal.Proposal) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.proposals[p.PublicID]
	if !ok {
		return notFound("proposal", p.PublicID)
	}
	if cur.Version != p.Version {
		return errs.Conflict("proposal "+p.PublicID, "version changed")
	}
	p.Version++
	cur.Status = p.Status
	cur.Version = p.Version
	cur.StatusUpdatedAt = p.StatusUpdatedAt
	cur.ApprovedAmount = p.ApprovedAmount
	cur.ApprovedAt = p.ApprovedAt
	cur.SignedAt = p.SignedAt
	cur.PaidAt = p.PaidAt
	s.proposals[p.PublicID] = cur
	return nil
}

func (r *proposalRepo) UpdateFormalization(_ context.Context, p *proposal.Proposal) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.proposals[p.PublicID]
	if !ok {
		return notFound("proposal", p.PublicID)
	}
	cur.CCBDocumentPath = p.CCBDocumentPath
	cur.SignatureEnvelopeID = p.SignatureEnvelopeID
	cur.SignerURL = p.SignerURL
	s.proposals[p.PublicID] = cur
	return nil
}

func (r *proposalRepo) ExistsWithTaxIDInStatuses(_ context.Context, taxID string, statuses []proposal.Status) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.proposals {
		if p.ClientTaxID != taxID {
			continue
		}
		for _, st := range statuses {
			if p.Status == st {
				return true, nil
			}
		}
	}
	return false, nil
}

// ---- transitions ----

type transitionRepo Store

func (r *transitionRepo) Append(_ context.Context, t *proposal.StatusTransition) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.Seq = 1
	for _, prev := range s.transitions {
		if prev.ProposalID == t.ProposalID && prev.Seq >= t.Seq {
			t.Seq = prev.Seq + 1
		}
	}
	s.transitions = append(s.transitions, *t)
	return nil
}

func (r *transitionRepo) ListByProposalID(_ context.Context, proposalID string) ([]proposal.StatusTransition, error) {
	return (*Store)(r).Transitions(proposalID), nil
}

// ---- instruments ----

type instrumentRepo Store

func (r *instrumentRepo) CreateBatch(_ context.Context, items []instrument.CollectionInstrument) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	taken := map[string]bool{}
	for _, c := range s.instruments {
		if c.Active() {
			taken[slotKey(c)] = true
		}
	}
	for _, it := range items {
		if !it.Active() {
			continue
		}
		if taken[slotKey(it)] {
			return errs.Conflict("proposal "+it.ProposalID+" instruments", "installment already has an active instrument")
		}
		taken[slotKey(it)] = true
	}
	now := time.Now().UTC()
	for _, it := range items {
		it.ActiveSlot = it.Slot()
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now
		}
		it.UpdatedAt = now
		s.instruments[it.ID] = it
	}
	return nil
}

func (r *instrumentRepo) ListActiveByProposalID(_ context.Context, proposalID string) ([]instrument.CollectionInstrument, error) {
	var out []instrument.CollectionInstrument
	for _, c := range (*Store)(r).AllInstruments(proposalID) {
		if c.Active() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *instrumentRepo) GetByIDs(_ context.Context, proposalID string, ids []string) ([]instrument.CollectionInstrument, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]instrument.CollectionInstrument, 0, len(ids))
	for _, id := range ids {
		c, ok := s.instruments[id]
		if !ok || c.ProposalID != proposalID {
			continue
		}
		out = append(out, c)
	}
	sortInstruments(out)
	return out, nil
}

func (r *instrumentRepo) UpdateSituacao(_ context.Context, id string, st instrument.Situacao) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.instruments[id]
	if !ok {
		return notFound("instrument", id)
	}
	c.Situacao = st
	c.ActiveSlot = c.Slot()
	s.instruments[id] = c
	return nil
}

func (r *instrumentRepo) SetStoragePath(_ context.Context, id, path string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.instruments[id]
	if !ok {
		return notFound("instrument", id)
	}
	c.StoragePath = &path
	s.instruments[id] = c
	return nil
}

func slotKey(c instrument.CollectionInstrument) string {
	return fmt.Sprintf("%s#%d", c.ProposalID, c.InstallmentNumber)
}

// ---- booklets ----

type bookletRepo Store

func (r *bookletRepo) GetByProposalID(_ context.Context, proposalID string) (*instrument.ConsolidatedBooklet, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.booklets[proposalID]
	if !ok {
		return nil, notFound("booklet", proposalID)
	}
	return &b, nil
}

func (r *bookletRepo) Upsert(_ context.Context, b *instrument.ConsolidatedBooklet) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.booklets[b.ProposalID] = *b
	return nil
}

// ---- products ----

type productRepo Store

func (r *productRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, notFound("product", id)
	}
	return &p, nil
}

// ---- outbox ----

type taskRepo Store

func (r *taskRepo) Create(_ context.Context, t *outbox.Task) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	s.tasks[t.ID] = *t
	return nil
}

func (r *taskRepo) GetByID(_ context.Context, id string) (*outbox.Task, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, notFound("task", id)
	}
	return &t, nil
}

func (r *taskRepo) MarkResult(_ context.Context, id string, errMsg string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return notFound("task", id)
	}
	t.Attempts++
	t.LastError = errMsg
	t.Status = outbox.StatusDone
	if errMsg != "" {
		t.Status = outbox.StatusFailed
	}
	t.UpdatedAt = time.Now().UTC()
	s.tasks[id] = t
	return nil
}

func (r *taskRepo) ListByProposalID(_ context.Context, proposalID string) ([]outbox.Task, error) {
	return (*Store)(r).Tasks(proposalID), nil
}
