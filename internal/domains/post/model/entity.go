package model

import (
	"slices"
	"time"
)

// Post is the replicated document. ID and Rev are owned by the store:
// ID is assigned on first insert, Rev changes on every committed write.
type Post struct {
	ID  string `json:"id"`
	Rev string `json:"rev"`

	// Content
	Name       string    `json:"name"`
	Content    string    `json:"content"`
	Attributes []string  `json:"attributes"`
	Score      int       `json:"score"` // shown as "likes"
	Comments   []Comment `json:"comments"`

	// Timestamps
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Deleted marks a tombstone. Tombstones replicate but are never
	// returned by reads.
	Deleted bool `json:"deleted,omitempty"`
}

// Comment is owned by its Post and has no identity of its own.
type Comment struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy so callers never share slices with the store.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	out := *p
	out.Attributes = slices.Clone(p.Attributes)
	out.Comments = slices.Clone(p.Comments)
	if p.UpdatedAt != nil {
		t := *p.UpdatedAt
		out.UpdatedAt = &t
	}
	return &out
}

// Tombstone returns the minimal deleted form of the post at the given revision.
func (p *Post) Tombstone(rev string) *Post {
	return &Post{
		ID:         p.ID,
		Rev:        rev,
		Attributes: []string{},
		Comments:   []Comment{},
		CreatedAt:  p.CreatedAt,
		Deleted:    true,
	}
}
