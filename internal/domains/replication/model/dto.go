package model

import (
	"time"

	postModel "postsync/internal/domains/post/model"
)

// =====================================================
// PEER WIRE DTOs
// =====================================================

// ApplyRequest carries documents to be applied with their own revisions.
type ApplyRequest struct {
	Docs []*postModel.Post `json:"docs"`
}

// ApplyResult is the outcome for one document of an ApplyRequest.
type ApplyResult struct {
	ID      string `json:"id"`
	Rev     string `json:"rev"`
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
}

// ApplyResponse lists per-document results in request order. Epoch is
// the epoch of the store the documents were applied to.
type ApplyResponse struct {
	Results []ApplyResult `json:"results"`
	LastSeq uint64        `json:"last_seq"`
	Epoch   string        `json:"epoch,omitempty"`
}

// Failed reports how many documents were rejected.
func (r ApplyResponse) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Error != "" {
			n++
		}
	}
	return n
}

// =====================================================
// CONTROL DTOs
// =====================================================

// SetModeRequest request to switch connectivity mode
type SetModeRequest struct {
	Mode string `json:"mode"`
}

// SyncResult summarises one pull, push or sync round.
type SyncResult struct {
	Pulled   int `json:"pulled"`
	Applied  int `json:"applied"`
	Pushed   int `json:"pushed"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// Merge adds other's counters to r.
func (r SyncResult) Merge(other SyncResult) SyncResult {
	return SyncResult{
		Pulled:   r.Pulled + other.Pulled,
		Applied:  r.Applied + other.Applied,
		Pushed:   r.Pushed + other.Pushed,
		Accepted: r.Accepted + other.Accepted,
		Rejected: r.Rejected + other.Rejected,
	}
}

// Status is what the presentation layer shows about replication.
type Status struct {
	ReplicaID  string     `json:"replica_id"`
	Mode       Mode       `json:"mode"`
	Continuous bool       `json:"continuous"`
	Pending    int        `json:"pending"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	Checkpoint Checkpoint `json:"checkpoint"`
	LocalSeq   uint64     `json:"local_seq"`
}
