package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"postsync/internal/domains/post/model"
	"postsync/internal/domains/post/service"
	"postsync/internal/shared/response"
)

// SeedEnqueuer hands a seed request to the background worker.
type SeedEnqueuer interface {
	EnqueueSeed(ctx context.Context, count int) (string, error)
}

// =====================================================
// POST HANDLER
// =====================================================

type PostHandler struct {
	mutations  service.MutationService
	queries    service.QueryService
	projection *service.Projection
	seeder     SeedEnqueuer
}

// NewPostHandler builds the handler. seeder may be nil, in which case
// seeding runs inside the request.
func NewPostHandler(
	mutations service.MutationService,
	queries service.QueryService,
	projection *service.Projection,
	seeder SeedEnqueuer,
) *PostHandler {
	return &PostHandler{
		mutations:  mutations,
		queries:    queries,
		projection: projection,
		seeder:     seeder,
	}
}

// =====================================================
// VIEW & QUERIES
// =====================================================

// ListPosts returns the view projection
// GET /api/v1/posts?name=&sort=created_at|score
func (h *PostHandler) ListPosts(c *gin.Context) {
	// Step 1: Bind query parameters
	var req model.ListPostsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	// Step 2: Validate
	if err := req.Validate(); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, model.ErrCodeValidation, err.Error())
		return
	}

	// Step 3: Apply params; an unchanged view is served as is
	params := req.ToViewParams()
	view := h.projection.Snapshot()
	if view.Params != params || view.RefreshedAt.IsZero() {
		var err error
		view, err = h.projection.SetParams(c.Request.Context(), params)
		if err != nil {
			respondPostError(c, err)
			return
		}
	}

	response.SuccessWithMeta(c, http.StatusOK, view, &response.Meta{Total: len(view.Items), Seq: view.Seq})
}

// GetPost gets a post by id
// GET /api/v1/posts/:id
func (h *PostHandler) GetPost(c *gin.Context) {
	post, err := h.queries.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondPostError(c, err)
		return
	}
	response.Success(c, http.StatusOK, post)
}

// SearchPosts finds posts by name substring
// GET /api/v1/posts/search?name=
func (h *PostHandler) SearchPosts(c *gin.Context) {
	posts, err := h.queries.FindByName(c.Request.Context(), c.Query("name"))
	if err != nil {
		respondPostError(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, posts, &response.Meta{Total: len(posts)})
}

// TopPosts returns the highest scored posts
// GET /api/v1/posts/top?limit=
func (h *PostHandler) TopPosts(c *gin.Context) {
	limit := model.DefaultTopLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.ErrorResponse(c, http.StatusBadRequest, model.ErrCodeValidation, "limit must be an integer")
			return
		}
		limit = n
	}
	if limit > model.MaxTopLimit {
		limit = model.MaxTopLimit
	}

	posts, err := h.queries.TopByScore(c.Request.Context(), limit)
	if err != nil {
		respondPostError(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, posts, &response.Meta{Limit: limit, Total: len(posts)})
}

// =====================================================
// MUTATIONS
// =====================================================

// CreatePost creates a post
// POST /api/v1/posts
func (h *PostHandler) CreatePost(c *gin.Context) {
	var req model.CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	post, err := h.mutations.Create(c.Request.Context(), req)
	if err != nil {
		respondPostError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, post)
}

// UpdatePost replaces name, content and attributes
// PUT /api/v1/posts/:id
func (h *PostHandler) UpdatePost(c *gin.Context) {
	var req model.UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	post, err := h.mutations.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondPostError(c, err)
		return
	}
	response.Success(c, http.StatusOK, post)
}

// DeletePost deletes a post at the given revision
// DELETE /api/v1/posts/:id?rev=
func (h *PostHandler) DeletePost(c *gin.Context) {
	if err := h.mutations.Remove(c.Request.Context(), c.Param("id"), c.Query("rev")); err != nil {
		respondPostError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"message": "Post deleted successfully",
	})
}

// LikePost increments the score
// POST /api/v1/posts/:id/like
func (h *PostHandler) LikePost(c *gin.Context) {
	post, err := h.mutations.Like(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondPostError(c, err)
		return
	}
	response.Success(c, http.StatusOK, post)
}

// AddComment appends a comment
// POST /api/v1/posts/:id/comments
func (h *PostHandler) AddComment(c *gin.Context) {
	var req model.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	post, err := h.mutations.AddComment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondPostError(c, err)
		return
	}
	response.Success(c, http.StatusOK, post)
}

// SeedPosts bulk-creates synthetic posts
// POST /api/v1/posts/seed
func (h *PostHandler) SeedPosts(c *gin.Context) {
	var req model.SeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, model.ErrCodeValidation, err.Error())
		return
	}

	if h.seeder != nil {
		taskID, err := h.seeder.EnqueueSeed(c.Request.Context(), req.Count)
		if err != nil {
			response.InternalServerError(c, err.Error())
			return
		}
		response.Success(c, http.StatusAccepted, gin.H{
			"task_id": taskID,
			"count":   req.Count,
		})
		return
	}

	posts, err := h.mutations.Seed(c.Request.Context(), req.Count)
	if err != nil {
		respondPostError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{
		"count": len(posts),
	})
}

// =====================================================
// HELPER FUNCTIONS
// =====================================================

// mapPostError maps a post error to an HTTP status code and error code
func mapPostError(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, model.ErrCodeValidation
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, model.ErrCodeNotFound
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, model.ErrCodeConflict
	case errors.Is(err, model.ErrStoreClosed):
		return http.StatusServiceUnavailable, model.ErrCodeStoreClosed
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func respondPostError(c *gin.Context, err error) {
	status, code := mapPostError(err)

	var conflict *model.ConflictError
	if errors.As(err, &conflict) {
		response.ErrorWithDetails(c, status, code, err.Error(), gin.H{
			"id":               conflict.ID,
			"current_revision": conflict.CurrentRevision,
		})
		return
	}
	response.ErrorResponse(c, status, code, err.Error())
}
