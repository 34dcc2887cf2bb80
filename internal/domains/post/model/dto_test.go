package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributesUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Attributes
	}{
		{name: "array of strings", in: `["a"," b ",""]`, want: Attributes{"a", "b"}},
		{name: "mixed types", in: `["a",1,true,null,"c"]`, want: Attributes{"a", "c"}},
		{name: "not an array", in: `"tag"`, want: Attributes{}},
		{name: "object", in: `{"a":1}`, want: Attributes{}},
		{name: "null", in: `null`, want: Attributes{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req CreatePostRequest
			err := json.Unmarshal([]byte(`{"name":"n","content":"c","attributes":`+tt.in+`}`), &req)
			require.NoError(t, err)
			req.Normalize()
			assert.Equal(t, tt.want, req.Attributes)
		})
	}
}

func TestCreatePostRequestValidate(t *testing.T) {
	req := CreatePostRequest{Name: "  Alpha  ", Content: " body "}
	req.Normalize()
	require.NoError(t, req.Validate())
	assert.Equal(t, "Alpha", req.Name)
	assert.Equal(t, "body", req.Content)
	assert.Equal(t, Attributes{}, req.Attributes)

	blank := CreatePostRequest{Name: "   ", Content: "body"}
	blank.Normalize()
	assert.Error(t, blank.Validate())

	noContent := CreatePostRequest{Name: "Alpha"}
	noContent.Normalize()
	assert.Error(t, noContent.Validate())
}

func TestUpdatePostRequestRequiresRev(t *testing.T) {
	req := UpdatePostRequest{Name: "Alpha", Content: "body"}
	req.Normalize()
	assert.Error(t, req.Validate())

	req.Rev = "1-abc"
	assert.NoError(t, req.Validate())
}

func TestSeedRequestValidate(t *testing.T) {
	assert.NoError(t, SeedRequest{Count: 0}.Validate())
	assert.NoError(t, SeedRequest{Count: MaxSeedCount}.Validate())
	assert.Error(t, SeedRequest{Count: -1}.Validate())
	assert.Error(t, SeedRequest{Count: MaxSeedCount + 1}.Validate())
}

func TestListPostsRequest(t *testing.T) {
	assert.NoError(t, ListPostsRequest{}.Validate())
	assert.NoError(t, ListPostsRequest{Sort: SortByScore}.Validate())
	assert.Error(t, ListPostsRequest{Sort: "name"}.Validate())

	params := ListPostsRequest{Name: " al ", Sort: SortByScore}.ToViewParams()
	assert.Equal(t, ViewParams{Name: "al", SortByScore: true}, params)
}

func TestPostCloneIsDeep(t *testing.T) {
	updated := time.Now()
	p := &Post{
		ID:         "p1",
		Attributes: []string{"a"},
		Comments:   []Comment{{Text: "hi"}},
		UpdatedAt:  &updated,
	}
	c := p.Clone()
	c.Attributes[0] = "b"
	c.Comments[0].Text = "bye"
	*c.UpdatedAt = updated.Add(time.Hour)

	assert.Equal(t, "a", p.Attributes[0])
	assert.Equal(t, "hi", p.Comments[0].Text)
	assert.Equal(t, updated, *p.UpdatedAt)
	assert.Nil(t, (*Post)(nil).Clone())
}

func TestErrorCodes(t *testing.T) {
	assert.Equal(t, ErrCodeValidation, CodeOf(NewValidationError(errors.New("bad"))))
	assert.Equal(t, ErrCodeNotFound, CodeOf(NewNotFoundError("p1")))
	assert.Equal(t, ErrCodeConflict, CodeOf(fmt.Errorf("wrapped: %w", NewConflictError("p1", "1-a", "2-b"))))
	assert.Equal(t, ErrCodeStoreClosed, CodeOf(ErrStoreClosed))
	assert.Empty(t, CodeOf(errors.New("other")))

	var conflict *ConflictError
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", NewConflictError("p1", "1-a", "2-b")), &conflict)
	assert.Equal(t, "2-b", conflict.CurrentRevision)
}
