package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/xid"
)

// Revision is "<generation>-<suffix>". Generation grows by one on every
// write; the suffix is a time-sortable xid that breaks ties between two
// writers that reached the same generation independently.
type Revision struct {
	Generation uint64
	Suffix     string
}

// NewRevision returns the first revision of a document.
func NewRevision() Revision {
	return Revision{Generation: 1, Suffix: xid.New().String()}
}

// ParseRevision parses the wire form of a revision.
func ParseRevision(s string) (Revision, error) {
	gen, suffix, ok := strings.Cut(s, "-")
	if !ok || suffix == "" {
		return Revision{}, fmt.Errorf("malformed revision %q", s)
	}
	n, err := strconv.ParseUint(gen, 10, 64)
	if err != nil || n == 0 {
		return Revision{}, fmt.Errorf("malformed revision generation %q", s)
	}
	return Revision{Generation: n, Suffix: suffix}, nil
}

// Next returns the revision that supersedes r.
func (r Revision) Next() Revision {
	return Revision{Generation: r.Generation + 1, Suffix: xid.New().String()}
}

func (r Revision) String() string {
	return strconv.FormatUint(r.Generation, 10) + "-" + r.Suffix
}

// Compare orders revisions by generation, then suffix.
func (r Revision) Compare(other Revision) int {
	switch {
	case r.Generation < other.Generation:
		return -1
	case r.Generation > other.Generation:
		return 1
	}
	return strings.Compare(r.Suffix, other.Suffix)
}

// IsNewerRevision reports whether candidate supersedes current.
// An empty current means the document is unknown, so anything wins.
func IsNewerRevision(candidate, current string) (bool, error) {
	c, err := ParseRevision(candidate)
	if err != nil {
		return false, err
	}
	if current == "" {
		return true, nil
	}
	cur, err := ParseRevision(current)
	if err != nil {
		return false, err
	}
	return c.Compare(cur) > 0, nil
}
