package mysql

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"loan-proposal-service/internal/domain/errs"
	proposalDomain "loan-proposal-service/internal/domain/proposal"
)

type ProposalRepository struct{ db *gorm.DB }

func NewProposalRepository(db *gorm.DB) *ProposalRepository { return &ProposalRepository{db: db} }

func (r *ProposalRepository) Create(ctx context.Context, p *proposalDomain.Proposal) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *ProposalRepository) GetByPublicID(ctx context.Context, proposalID string) (*proposalDomain.Proposal, error) {
	var out proposalDomain.Proposal
	res := r.db.WithContext(ctx).Where("proposal_id = ?", proposalID).First(&out)
	if res.Error != nil {
		return nil, mapErr(res.Error, "proposal", proposalID)
	}
	return &out, nil
}

func (r *ProposalRepository) GetByPublicIDForUpdate(ctx context.Context, proposalID string) (*proposalDomain.Proposal, error) {
	var out proposalDomain.Proposal
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("proposal_id = ?", proposalID).
		First(&out)
	if res.Error != nil {
		return nil, mapErr(res.Error, "proposal", proposalID)
	}
	return &out, nil
}

func (r *ProposalRepository) GetByEnvelopeID(ctx context.Context, envelopeID string) (*proposalDomain.Proposal, error) {
	var out proposalDomain.Proposal
	res := r.db.WithContext(ctx).Where("signature_envelope_id = ?", envelopeID).First(&out)
	if res.Error != nil {
		return nil, mapErr(res.Error, "envelope", envelopeID)
	}
	return &out, nil
}

// UpdateStatus is a compare-and-swap on version.
func (r *ProposalRepository) UpdateStatus(ctx context.Context, p *proposalDomain.Proposal) error {
	res := r.db.WithContext(ctx).
		Model(&proposalDomain.Proposal{}).
		Where("proposal_id = ? AND version = ?", p.PublicID, p.Version).
		Updates(map[string]any{
			"status":            p.Status,
			"version":           gorm.Expr("version + 1"),
			"status_updated_at": p.StatusUpdatedAt,
			"approved_amount":   p.ApprovedAmount,
			"approved_at":       p.ApprovedAt,
			"signed_at":         p.SignedAt,
			"paid_at":           p.PaidAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.Conflict("proposal "+p.PublicID, "modified concurrently")
	}
	p.Version++
	return nil
}

func (r *ProposalRepository) UpdateFormalization(ctx context.Context, p *proposalDomain.Proposal) error {
	res := r.db.WithContext(ctx).
		Model(&proposalDomain.Proposal{}).
		Where("proposal_id = ?", p.PublicID).
		Updates(map[string]any{
			"ccb_document_path":     p.CCBDocumentPath,
			"signature_envelope_id": p.SignatureEnvelopeID,
			"signer_url":            p.SignerURL,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mapErr(gorm.ErrRecordNotFound, "proposal", p.PublicID)
	}
	return nil
}

func (r *ProposalRepository) ExistsWithTaxIDInStatuses(ctx context.Context, taxID string, statuses []proposalDomain.Status) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&proposalDomain.Proposal{}).
		Where("client_tax_id = ? AND status IN ?", taxID, statuses).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}

// TransitionRepository is append-only: it never updates or deletes.
type TransitionRepository struct{ db *gorm.DB }

func NewTransitionRepository(db *gorm.DB) *TransitionRepository {
	return &TransitionRepository{db: db}
}

// Append numbers t after the proposal's last entry. Callers hold the
// proposal row lock, so a clash on seq means a writer skipped it.
func (r *TransitionRepository) Append(ctx context.Context, t *proposalDomain.StatusTransition) error {
	db := r.db.WithContext(ctx)
	var last int64
	err := db.Model(&proposalDomain.StatusTransition{}).
		Where("proposal_id = ?", t.ProposalID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&last).Error
	if err != nil {
		return err
	}
	t.Seq = last + 1
	if err := db.Create(t).Error; err != nil {
		if isDuplicate(err) {
			return errs.Conflict("proposal "+t.ProposalID+" history", "concurrent append")
		}
		return err
	}
	return nil
}

func (r *TransitionRepository) ListByProposalID(ctx context.Context, proposalID string) ([]proposalDomain.StatusTransition, error) {
	var out []proposalDomain.StatusTransition
	err := r.db.WithContext(ctx).
		Where("proposal_id = ?", proposalID).
		Order("seq ASC").
		Find(&out).Error
	return out, err
}
