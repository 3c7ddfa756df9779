package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loan-proposal-service/internal/domain/errs"
	"loan-proposal-service/internal/domain/instrument"
)

func makeInstrument(proposalID string, n int, s instrument.Situacao) instrument.CollectionInstrument {
	return instrument.CollectionInstrument{
		ID:                uuid.NewString(),
		ProposalID:        proposalID,
		InstallmentNumber: n,
		Amount:            decimal.RequireFromString("850.25"),
		DueDate:           time.Date(2026, time.Month(n), 10, 0, 0, 0, 0, time.UTC),
		ExternalRef:       "BOL" + uuid.NewString()[:8],
		Situacao:          s,
	}
}

func TestInstrumentRepository_ActiveSetAndUpdates(t *testing.T) {
	gdb := openTestDB(t)
	repo := NewInstrumentRepository(gdb)
	ctx := context.Background()

	items := []instrument.CollectionInstrument{
		makeInstrument("P1", 2, instrument.SituacaoToBeReceived),
		makeInstrument("P1", 1, instrument.SituacaoReceived),
		makeInstrument("P1", 3, instrument.SituacaoCanceled),
		makeInstrument("P2", 1, instrument.SituacaoToBeReceived),
	}
	if err := repo.CreateBatch(ctx, items); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	active, err := repo.ListActiveByProposalID(ctx, "P1")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 2 || active[0].InstallmentNumber != 1 || active[1].InstallmentNumber != 2 {
		t.Fatalf("active set wrong: %+v", active)
	}

	if err := repo.UpdateSituacao(ctx, items[0].ID, instrument.SituacaoOverdue); err != nil {
		t.Fatalf("UpdateSituacao: %v", err)
	}
	if err := repo.SetStoragePath(ctx, items[0].ID, "propostas/P1/boletos/x.pdf"); err != nil {
		t.Fatalf("SetStoragePath: %v", err)
	}
	got, err := repo.GetByIDs(ctx, "P1", []string{items[0].ID, items[3].ID})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("GetByIDs must scope to proposal, got %d", len(got))
	}
	if got[0].Situacao != instrument.SituacaoOverdue || got[0].StoragePath == nil {
		t.Fatalf("updates not persisted: %+v", got[0])
	}

	if err := repo.UpdateSituacao(ctx, "missing", instrument.SituacaoOverdue); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("missing: want ErrNotFound, got %v", err)
	}
}

func TestBookletRepository_Upsert(t *testing.T) {
	gdb := openTestDB(t)
	repo := NewBookletRepository(gdb)
	ctx := context.Background()

	if _, err := repo.GetByProposalID(ctx, "P1"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("empty: want ErrNotFound, got %v", err)
	}

	b := &instrument.ConsolidatedBooklet{ProposalID: "P1", StoragePath: "a.pdf", TotalInstruments: 3, InstrumentSetHash: "h1", GeneratedAt: time.Now().UTC()}
	if err := repo.Upsert(ctx, b); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	b2 := &instrument.ConsolidatedBooklet{ProposalID: "P1", StoragePath: "b.pdf", TotalInstruments: 4, InstrumentSetHash: "h2", GeneratedAt: time.Now().UTC()}
	if err := repo.Upsert(ctx, b2); err != nil {
		t.Fatalf("Upsert again: %v", err)
	}

	got, err := repo.GetByProposalID(ctx, "P1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.StoragePath != "b.pdf" || got.InstrumentSetHash != "h2" || got.TotalInstruments != 4 {
		t.Fatalf("upsert did not replace: %+v", got)
	}
	var n int64
	gdb.Model(&instrument.ConsolidatedBooklet{}).Count(&n)
	if n != 1 {
		t.Fatalf("rows=%d want 1", n)
	}
}

func TestInstrumentRepository_OneActivePerInstallment(t *testing.T) {
	gdb := openTestDB(t)
	repo := NewInstrumentRepository(gdb)
	ctx := context.Background()

	first := makeInstrument("P1", 1, instrument.SituacaoToBeReceived)
	if err := repo.CreateBatch(ctx, []instrument.CollectionInstrument{first}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	// a batch carrying a second active #1 is refused as a whole
	dup := []instrument.CollectionInstrument{
		makeInstrument("P1", 2, instrument.SituacaoToBeReceived),
		makeInstrument("P1", 1, instrument.SituacaoToBeReceived),
	}
	if err := repo.CreateBatch(ctx, dup); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("duplicate active installment: want ErrConflict, got %v", err)
	}
	active, _ := repo.ListActiveByProposalID(ctx, "P1")
	if len(active) != 1 {
		t.Fatalf("partial batch persisted: %d active", len(active))
	}

	// inactive rows never hold the slot
	if err := repo.CreateBatch(ctx, []instrument.CollectionInstrument{
		makeInstrument("P1", 1, instrument.SituacaoCanceled),
		makeInstrument("P1", 1, instrument.SituacaoFailed),
		makeInstrument("P2", 1, instrument.SituacaoToBeReceived),
	}); err != nil {
		t.Fatalf("inactive duplicates: %v", err)
	}

	// canceling frees the slot for a reissue
	if err := repo.UpdateSituacao(ctx, first.ID, instrument.SituacaoCanceled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	reissue := makeInstrument("P1", 1, instrument.SituacaoToBeReceived)
	if err := repo.CreateBatch(ctx, []instrument.CollectionInstrument{reissue}); err != nil {
		t.Fatalf("reissue: %v", err)
	}

	// and reviving the canceled one would collide with the reissue
	if err := repo.UpdateSituacao(ctx, first.ID, instrument.SituacaoToBeReceived); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("revive: want ErrConflict, got %v", err)
	}
	if err := repo.UpdateSituacao(ctx, reissue.ID, instrument.SituacaoReceived); err != nil {
		t.Fatalf("active to active: %v", err)
	}
}
