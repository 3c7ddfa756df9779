package formalization

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	domain "loan-proposal-service/internal/domain/proposal"
	"loan-proposal-service/internal/infrastructure/cache"
	"loan-proposal-service/internal/testutil/memstore"
	proposaluc "loan-proposal-service/internal/usecase/proposal"
	"loan-proposal-service/pkg/id"
)

type fixture struct {
	mr     *miniredis.Miniredis
	store  *memstore.Store
	bank   *memstore.Bank
	blobs  *memstore.Blobs
	docs   *memstore.DocGen
	signer *memstore.Signer
	engine *proposaluc.Usecase
	uc     *Usecase
}

// newFixture wires the orchestrator on memstore and miniredis. opts may swap
// dependencies before the use case is built.
func newFixture(t *testing.T, opts ...func(f *fixture, d *Deps)) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := memstore.New()
	repos := store.Repos()
	blobs := memstore.NewBlobs()
	f := &fixture{
		mr:     mr,
		store:  store,
		bank:   memstore.NewBank(),
		blobs:  blobs,
		docs:   &memstore.DocGen{Blobs: blobs},
		signer: &memstore.Signer{},
	}
	f.engine = proposaluc.NewUsecase(repos.Proposals, repos.Transitions, store, nil, zerolog.Nop())
	deps := Deps{
		Proposals:   repos.Proposals,
		Instruments: repos.Instruments,
		Tasks:       repos.Tasks,
		Docs:        f.docs,
		Signer:      f.signer,
		Bank:        f.bank,
		Locker:      cache.NewLocker(rdb),
		Engine:      f.engine,
		Log:         zerolog.Nop(),
		LockTTL:     10 * time.Second,
	}
	for _, o := range opts {
		o(f, &deps)
	}
	f.uc = NewUsecase(deps)
	f.engine.AttachDispatcher(f.uc)
	return f
}

// seed stores a 6-month, zero-rate proposal of 6000 (1000 per installment).
func (f *fixture) seed(status domain.Status, mutate ...func(p *domain.Proposal)) string {
	p := domain.Proposal{
		PublicID:        id.NewID32(),
		Status:          status,
		ClientName:      "Joana Souza",
		ClientTaxID:     "12345678901",
		ClientEmail:     "joana@example.com",
		RequestedAmount: decimal.NewFromInt(6000),
		TermMonths:      6,
		MonthlyRate:     decimal.Zero,
		StatusUpdatedAt: time.Now().UTC(),
	}
	for _, m := range mutate {
		m(&p)
	}
	f.store.PutProposal(p)
	return p.PublicID
}

func activeCount(f *fixture, proposalID string) int {
	n := 0
	for _, it := range f.store.AllInstruments(proposalID) {
		if it.Active() {
			n++
		}
	}
	return n
}
