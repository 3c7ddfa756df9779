package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"loan-proposal-service/internal/domain/errs"
	"loan-proposal-service/internal/domain/instrument"
	"loan-proposal-service/internal/domain/ports"
	domain "loan-proposal-service/internal/domain/proposal"
	"loan-proposal-service/internal/observability"
)

const (
	blobService = "blob-storage"
	pdfType     = "application/pdf"
)

type Deps struct {
	Proposals   domain.Repository
	Instruments instrument.Repository
	Booklets    instrument.BookletRepository
	Blobs       ports.BlobStore
	Bank        ports.CollectionsBank
	Docs        ports.DocumentGenerator
	Locker      ports.Locker
	Log         zerolog.Logger
	LockTTL     time.Duration
	// Concurrency bounds parallel PDF pulls during Sync.
	Concurrency int
}

// Usecase reconciles instrument records with blob storage.
type Usecase struct {
	proposals   domain.Repository
	instruments instrument.Repository
	booklets    instrument.BookletRepository
	blobs       ports.BlobStore
	bank        ports.CollectionsBank
	docs        ports.DocumentGenerator
	locker      ports.Locker
	log         zerolog.Logger
	lockTTL     time.Duration
	concurrency int
	now         func() time.Time
}

func NewUsecase(d Deps) *Usecase {
	u := &Usecase{
		proposals:   d.Proposals,
		instruments: d.Instruments,
		booklets:    d.Booklets,
		blobs:       d.Blobs,
		bank:        d.Bank,
		docs:        d.Docs,
		locker:      d.Locker,
		log:         d.Log,
		lockTTL:     d.LockTTL,
		concurrency: d.Concurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if u.lockTTL <= 0 {
		u.lockTTL = 2 * time.Minute
	}
	if u.concurrency <= 0 {
		u.concurrency = 4
	}
	return u
}

// view is one consistent read of both sources.
type view struct {
	state  State
	active []instrument.CollectionInstrument
	hash   string
}

func (u *Usecase) GetStorageSyncState(ctx context.Context, proposalID string) (*State, error) {
	if _, err := u.proposals.GetByPublicID(ctx, proposalID); err != nil {
		return nil, err
	}
	v, err := u.compute(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	return &v.state, nil
}

func (u *Usecase) compute(ctx context.Context, proposalID string) (*view, error) {
	active, err := u.instruments.ListActiveByProposalID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	objects, err := u.blobs.List(ctx, instrument.ProposalPrefix(proposalID))
	if err != nil {
		return nil, errs.External(blobService, "list", err)
	}

	present := make(map[string]bool, len(objects))
	for _, o := range objects {
		present[o] = true
	}
	expected := make(map[string]bool, len(active))
	st := State{ProposalID: proposalID, Total: len(active), Missing: []string{}, StaleFiles: []string{}}
	for _, it := range active {
		p := instrument.InstrumentPath(proposalID, it.InstallmentNumber, it.ExternalRef)
		expected[p] = true
		if present[p] {
			st.InStorage++
		} else {
			st.Missing = append(st.Missing, it.ID)
		}
	}
	for _, o := range objects {
		if !expected[o] {
			st.StaleFiles = append(st.StaleFiles, o)
		}
	}
	st.NeedsCorrection = len(st.StaleFiles) > 0

	switch {
	case len(objects) == 0:
		st.SyncStatus = SyncNone
	case st.Total > 0 && st.InStorage == st.Total && !st.NeedsCorrection:
		st.SyncStatus = SyncComplete
	default:
		st.SyncStatus = SyncIncomplete
	}

	hash := instrument.SetHash(active)
	b, err := u.booklets.GetByProposalID(ctx, proposalID)
	switch {
	case errors.Is(err, errs.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		st.BookletPath = b.StoragePath
		st.BookletStale = b.InstrumentSetHash != hash
		if !st.BookletStale {
			ok, err := u.blobs.Exists(ctx, b.StoragePath)
			if err != nil {
				return nil, errs.External(blobService, "exists", err)
			}
			st.HasBooklet = ok
		}
	}
	return &view{state: st, active: active, hash: hash}, nil
}

// Sync pulls every missing instrument PDF from the bank into storage.
func (u *Usecase) Sync(ctx context.Context, proposalID string) (*State, error) {
	release, err := ports.LockInstruments(ctx, u.locker, proposalID, u.lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := u.proposals.GetByPublicID(ctx, proposalID); err != nil {
		return nil, err
	}
	return u.sync(ctx, proposalID, nil)
}

// sync expects the instrument lock to be held. Earlier failures are joined
// with the ones it collects.
func (u *Usecase) sync(ctx context.Context, proposalID string, failures []error) (*State, error) {
	v, err := u.compute(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	missing := make(map[string]bool, len(v.state.Missing))
	for _, id := range v.state.Missing {
		missing[id] = true
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(u.concurrency)
	for _, it := range v.active {
		if !missing[it.ID] {
			continue
		}
		it := it
		g.Go(func() error {
			if err := u.pull(ctx, proposalID, it); err != nil {
				mu.Lock()
				failures = append(failures, fmt.Errorf("installment %d: %w", it.InstallmentNumber, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	after, err := u.compute(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("proposal_id", proposalID).Int("pulled", len(missing)-len(after.state.Missing)).
		Str("sync_status", string(after.state.SyncStatus)).Msg("storage sync finished")
	return &after.state, errs.Joined(blobService, "sync", failures)
}

func (u *Usecase) pull(ctx context.Context, proposalID string, it instrument.CollectionInstrument) error {
	if it.ExternalRef == "" {
		return errs.Validation("external_ref", "instrument has no bank reference")
	}
	start := time.Now()
	pdf, err := u.bank.FetchInstrumentPDF(ctx, it.ExternalRef)
	observability.RecordExternalCall("collections-bank", "fetch_pdf", time.Since(start), err)
	if err != nil {
		return errs.External("collections-bank", "fetch_pdf", err)
	}

	path := instrument.InstrumentPath(proposalID, it.InstallmentNumber, it.ExternalRef)
	start = time.Now()
	err = u.blobs.Put(ctx, path, pdf, pdfType)
	observability.RecordExternalCall(blobService, "put", time.Since(start), err)
	if err != nil {
		return errs.External(blobService, "put", err)
	}
	return u.instruments.SetStoragePath(ctx, it.ID, path)
}

// Correct purges files that match no active instrument, then syncs.
func (u *Usecase) Correct(ctx context.Context, proposalID string) (*State, error) {
	release, err := ports.LockInstruments(ctx, u.locker, proposalID, u.lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := u.proposals.GetByPublicID(ctx, proposalID); err != nil {
		return nil, err
	}
	v, err := u.compute(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	var failures []error
	for _, path := range v.state.StaleFiles {
		if err := u.blobs.Delete(ctx, path); err != nil {
			failures = append(failures, fmt.Errorf("delete %s: %w", path, err))
		}
	}
	if n := len(v.state.StaleFiles) - len(failures); n > 0 {
		u.log.Info().Str("proposal_id", proposalID).Int("purged", n).Msg("stale instrument files removed")
	}
	return u.sync(ctx, proposalID, failures)
}

// GenerateConsolidatedBooklet merges the active instrument PDFs into one
// carnê. It requires a complete sync and returns the current booklet when it
// already matches the active set.
func (u *Usecase) GenerateConsolidatedBooklet(ctx context.Context, proposalID string) (*instrument.ConsolidatedBooklet, error) {
	release, err := ports.LockInstruments(ctx, u.locker, proposalID, u.lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := u.proposals.GetByPublicID(ctx, proposalID); err != nil {
		return nil, err
	}
	v, err := u.compute(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if v.state.SyncStatus != SyncComplete {
		return nil, errs.Validation("sync_status", fmt.Sprintf("booklet requires a complete sync, storage is %s", v.state.SyncStatus))
	}
	if v.state.HasBooklet {
		return u.booklets.GetByProposalID(ctx, proposalID)
	}

	items := append([]instrument.CollectionInstrument(nil), v.active...)
	sort.Slice(items, func(i, j int) bool { return items[i].InstallmentNumber < items[j].InstallmentNumber })
	sources := make([]string, 0, len(items))
	for _, it := range items {
		sources = append(sources, instrument.InstrumentPath(proposalID, it.InstallmentNumber, it.ExternalRef))
	}

	start := time.Now()
	path, err := u.docs.MergeBooklet(ctx, proposalID, sources, instrument.BookletPath(proposalID, v.hash))
	observability.RecordExternalCall("document-generator", "merge_booklet", time.Since(start), err)
	if err != nil {
		return nil, errs.External("document-generator", "merge_booklet", err)
	}

	b := &instrument.ConsolidatedBooklet{
		ProposalID:        proposalID,
		StoragePath:       path,
		TotalInstruments:  len(items),
		InstrumentSetHash: v.hash,
		GeneratedAt:       u.now(),
	}
	if err := u.booklets.Upsert(ctx, b); err != nil {
		return nil, err
	}
	u.log.Info().Str("proposal_id", proposalID).Str("path", path).Int("instruments", len(items)).Msg("booklet generated")
	return b, nil
}
