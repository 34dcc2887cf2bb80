package model

// ChangeKind is what a committed write did to a document.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Origin tells whether a write came from this process (mutations) or
// was applied from a replication peer.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Change is one entry of the store's change feed. Doc is the committed
// document (a tombstone for deletes) and must be treated as read-only.
type Change struct {
	Seq    uint64     `json:"seq"`
	ID     string     `json:"id"`
	Rev    string     `json:"rev"`
	Kind   ChangeKind `json:"kind"`
	Origin Origin     `json:"origin"`
	Doc    *Post      `json:"doc"`
}

// ChangeBatch is a page of the change feed. LastSeq is the cursor to
// pass as "since" for the next page. Seqs are only meaningful within
// Epoch: a store rebuilt from scratch gets a new epoch and counts again
// from 1.
type ChangeBatch struct {
	Changes []Change `json:"changes"`
	LastSeq uint64   `json:"last_seq"`
	Epoch   string   `json:"epoch,omitempty"`
}
