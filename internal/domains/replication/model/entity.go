package model

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the connectivity mode of the replication manager.
type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeOnline:
		return ModeOnline, nil
	case ModeOffline:
		return ModeOffline, nil
	}
	return "", fmt.Errorf("unknown replication mode %q", s)
}

// Checkpoint records how far this replica has replicated with its peer.
// PullSeq is the last remote seq applied locally, PushSeq the last local
// seq the remote acknowledged. Both are only valid for the pair of store
// epochs they were recorded against.
type Checkpoint struct {
	ReplicaID   string    `json:"replica_id"`
	LocalEpoch  string    `json:"local_epoch,omitempty"`
	RemoteEpoch string    `json:"remote_epoch,omitempty"`
	PullSeq     uint64    `json:"pull_seq"`
	PushSeq     uint64    `json:"push_seq"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SameEpochs reports whether progress recorded in update belongs to c.
// An empty epoch in update matches any.
func (c Checkpoint) SameEpochs(update Checkpoint) bool {
	return (update.LocalEpoch == "" || update.LocalEpoch == c.LocalEpoch) &&
		(update.RemoteEpoch == "" || update.RemoteEpoch == c.RemoteEpoch)
}

// Advance returns the checkpoint moved forward by update's seqs; it never
// moves back. Progress recorded against other epochs is ignored.
func (c Checkpoint) Advance(update Checkpoint, now time.Time) Checkpoint {
	if !c.SameEpochs(update) {
		return c
	}
	out := c
	if update.PullSeq > out.PullSeq {
		out.PullSeq = update.PullSeq
	}
	if update.PushSeq > out.PushSeq {
		out.PushSeq = update.PushSeq
	}
	if out != c {
		out.UpdatedAt = now
	}
	return out
}

// Rebase returns a checkpoint for the given epochs. Seqs are kept when
// the epochs are unchanged or only being learned for the first time, and
// reset to zero when a recorded epoch changes or when seqs were recorded
// without any epoch.
func (c Checkpoint) Rebase(localEpoch, remoteEpoch string, now time.Time) Checkpoint {
	out := c
	out.LocalEpoch, out.RemoteEpoch = localEpoch, remoteEpoch
	changed := (c.LocalEpoch != "" && c.LocalEpoch != localEpoch) ||
		(c.RemoteEpoch != "" && c.RemoteEpoch != remoteEpoch)
	untagged := c.LocalEpoch == "" && c.RemoteEpoch == "" && (c.PullSeq > 0 || c.PushSeq > 0)
	if changed || untagged {
		out.PullSeq, out.PushSeq = 0, 0
	}
	if out != c {
		out.UpdatedAt = now
	}
	return out
}
