package model

import (
	"encoding/json"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// =====================================================
// ATTRIBUTES
// =====================================================

// Attributes is a list of free-form tags. Decoding never fails: anything
// that is not a JSON array becomes an empty list, non-string entries are
// dropped, strings are trimmed and blanks removed.
type Attributes []string

func (a *Attributes) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		*a = Attributes{}
		return nil
	}
	*a = NormalizeAttributes(raw)
	return nil
}

// NormalizeAttributes turns arbitrary decoded input into clean tags.
func NormalizeAttributes(raw any) Attributes {
	out := Attributes{}
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = appendTrimmed(out, s)
			}
		}
	case []string:
		for _, s := range v {
			out = appendTrimmed(out, s)
		}
	case Attributes:
		for _, s := range v {
			out = appendTrimmed(out, s)
		}
	}
	return out
}

func appendTrimmed(out Attributes, s string) Attributes {
	if s = strings.TrimSpace(s); s != "" {
		out = append(out, s)
	}
	return out
}

// =====================================================
// REQUEST DTOs
// =====================================================

// CreatePostRequest request to create a post
type CreatePostRequest struct {
	Name       string     `json:"name"`
	Content    string     `json:"content"`
	Attributes Attributes `json:"attributes"`
}

// Normalize trims every string field and cleans the attributes.
func (r *CreatePostRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Content = strings.TrimSpace(r.Content)
	r.Attributes = NormalizeAttributes(r.Attributes)
}

func (r CreatePostRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required.Error("name is required")),
		validation.Field(&r.Content, validation.Required.Error("content is required")),
	)
}

// UpdatePostRequest request to replace the editable fields of a post.
// Rev must be the revision the caller read.
type UpdatePostRequest struct {
	Rev        string     `json:"rev"`
	Name       string     `json:"name"`
	Content    string     `json:"content"`
	Attributes Attributes `json:"attributes"`
}

func (r *UpdatePostRequest) Normalize() {
	r.Rev = strings.TrimSpace(r.Rev)
	r.Name = strings.TrimSpace(r.Name)
	r.Content = strings.TrimSpace(r.Content)
	r.Attributes = NormalizeAttributes(r.Attributes)
}

func (r UpdatePostRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Rev, validation.Required.Error("rev is required")),
		validation.Field(&r.Name, validation.Required.Error("name is required")),
		validation.Field(&r.Content, validation.Required.Error("content is required")),
	)
}

// AddCommentRequest request to append a comment
type AddCommentRequest struct {
	Text string `json:"text"`
}

// SeedRequest request to bulk-create synthetic posts
type SeedRequest struct {
	Count int `json:"count"`
}

func (r SeedRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Count, validation.Min(0), validation.Max(MaxSeedCount)),
	)
}

// ListPostsRequest query parameters of the post list view
type ListPostsRequest struct {
	Name string `form:"name"`
	Sort string `form:"sort"`
}

func (r ListPostsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Sort, validation.In(SortByCreatedAt, SortByScore).Error("sort must be created_at or score")),
	)
}

// ToViewParams converts the query into projection parameters.
func (r ListPostsRequest) ToViewParams() ViewParams {
	return ViewParams{
		Name:        strings.TrimSpace(r.Name),
		SortByScore: r.Sort == SortByScore,
	}
}

// ViewParams are the active filter/sort of the view projection. An empty
// Name means no name filter.
type ViewParams struct {
	Name        string `json:"name,omitempty"`
	SortByScore bool   `json:"sort_by_score"`
}
