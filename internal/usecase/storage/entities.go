package storage

type SyncStatus string

const (
	SyncNone       SyncStatus = "none"
	SyncIncomplete SyncStatus = "incomplete"
	SyncComplete   SyncStatus = "complete"
)

// State is recomputed on every read from the active instruments and the
// objects actually present in blob storage. It is never persisted.
type State struct {
	ProposalID      string     `json:"proposal_id"`
	Total           int        `json:"total"`
	InStorage       int        `json:"in_storage"`
	Missing         []string   `json:"missing"`
	StaleFiles      []string   `json:"stale_files"`
	NeedsCorrection bool       `json:"needs_correction"`
	HasBooklet      bool       `json:"has_booklet"`
	BookletStale    bool       `json:"booklet_stale"`
	BookletPath     string     `json:"booklet_path,omitempty"`
	SyncStatus      SyncStatus `json:"sync_status"`
}
