package mysql

import (
	"context"

	"gorm.io/gorm"

	"loan-proposal-service/internal/domain/outbox"
)

type TaskRepository struct{ db *gorm.DB }

func NewTaskRepository(db *gorm.DB) *TaskRepository { return &TaskRepository{db: db} }

func (r *TaskRepository) Create(ctx context.Context, t *outbox.Task) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*outbox.Task, error) {
	var out outbox.Task
	res := r.db.WithContext(ctx).Where("id = ?", id).First(&out)
	if res.Error != nil {
		return nil, mapErr(res.Error, "task", id)
	}
	return &out, nil
}

func (r *TaskRepository) MarkResult(ctx context.Context, id string, errMsg string) error {
	status := outbox.StatusDone
	if errMsg != "" {
		status = outbox.StatusFailed
	}
	res := r.db.WithContext(ctx).
		Model(&outbox.Task{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"last_error": errMsg,
			"attempts":   gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mapErr(gorm.ErrRecordNotFound, "task", id)
	}
	return nil
}

func (r *TaskRepository) ListByProposalID(ctx context.Context, proposalID string) ([]outbox.Task, error) {
	var out []outbox.Task
	err := r.db.WithContext(ctx).
		Where("proposal_id = ?", proposalID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
