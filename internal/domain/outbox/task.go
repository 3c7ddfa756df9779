package outbox

import (
	"context"
	"time"

	"loan-proposal-service/internal/domain/proposal"
)

type Kind string

const (
	KindGenerateCCB       Kind = "generate_ccb"
	KindDispatchSignature Kind = "dispatch_signature"
	KindIssueInstruments  Kind = "issue_instruments"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Task is a side effect requested by a committed transition.
type Task struct {
	ID           string    `gorm:"column:id;size:36;primaryKey" json:"id"`
	ProposalID   string    `gorm:"column:proposal_id;size:32;index" json:"proposal_id"`
	TransitionID string    `gorm:"column:transition_id;size:36" json:"transition_id"`
	Kind         Kind      `gorm:"column:kind;size:32" json:"kind"`
	Status       Status    `gorm:"column:status;size:16;index" json:"status"`
	Attempts     int       `gorm:"column:attempts" json:"attempts"`
	LastError    string    `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Task) TableName() string { return "outbox_tasks" }

// KindForEntered returns the side effect bound to entering s, if any.
func KindForEntered(s proposal.Status) (Kind, bool) {
	switch s {
	case proposal.StatusApproved:
		return KindGenerateCCB, true
	case proposal.StatusCCBGenerated:
		return KindDispatchSignature, true
	case proposal.StatusSignatureDone:
		return KindIssueInstruments, true
	}
	return "", false
}

type Repository interface {
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, id string) (*Task, error)
	// MarkResult records one attempt. errMsg == "" means done.
	MarkResult(ctx context.Context, id string, errMsg string) error
	ListByProposalID(ctx context.Context, proposalID string) ([]Task, error)
}
