package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	postModel "postsync/internal/domains/post/model"
	"postsync/internal/domains/replication/model"
	"postsync/internal/domains/replication/service"
	"postsync/internal/shared/response"
)

// =====================================================
// REPLICATION CONTROL HANDLER
// =====================================================

type ReplicationHandler struct {
	replication service.ServiceInterface
}

func NewReplicationHandler(replication service.ServiceInterface) *ReplicationHandler {
	return &ReplicationHandler{replication: replication}
}

// GetMode returns the connectivity mode
// GET /api/v1/replication/mode
func (h *ReplicationHandler) GetMode(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"mode": h.replication.Mode(),
	})
}

// SetMode switches between online and offline
// PUT /api/v1/replication/mode
func (h *ReplicationHandler) SetMode(c *gin.Context) {
	// Step 1: Bind request body
	var req model.SetModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	// Step 2: Parse mode
	mode, err := model.ParseMode(req.Mode)
	if err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, postModel.ErrCodeValidation, err.Error())
		return
	}

	// Step 3: Switch
	if err := h.replication.SetMode(c.Request.Context(), mode); err != nil {
		respondReplicationError(c, err)
		return
	}

	// Step 4: Return the resulting status
	status, err := h.replication.Status(c.Request.Context())
	if err != nil {
		respondReplicationError(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// Sync runs one pull+push round
// POST /api/v1/replication/sync
func (h *ReplicationHandler) Sync(c *gin.Context) {
	result, err := h.replication.SyncOnce(c.Request.Context())
	if err != nil {
		respondReplicationError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// Pull runs one pull
// POST /api/v1/replication/pull
func (h *ReplicationHandler) Pull(c *gin.Context) {
	result, err := h.replication.PullOnce(c.Request.Context())
	if err != nil {
		respondReplicationError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// Push runs one push
// POST /api/v1/replication/push
func (h *ReplicationHandler) Push(c *gin.Context) {
	result, err := h.replication.PushOnce(c.Request.Context())
	if err != nil {
		respondReplicationError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GetStatus returns mode, checkpoint and pending changes
// GET /api/v1/replication/status
func (h *ReplicationHandler) GetStatus(c *gin.Context) {
	status, err := h.replication.Status(c.Request.Context())
	if err != nil {
		respondReplicationError(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// RegisterRoutes mounts the control endpoints under rg.
func (h *ReplicationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	replication := rg.Group("/replication")
	{
		replication.GET("/mode", h.GetMode)
		replication.PUT("/mode", h.SetMode)
		replication.POST("/sync", h.Sync)
		replication.POST("/pull", h.Pull)
		replication.POST("/push", h.Push)
		replication.GET("/status", h.GetStatus)
	}
}

// mapReplicationError maps replication and store errors to an HTTP status and code
func mapReplicationError(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrOffline):
		return http.StatusConflict, model.ErrCodeOffline
	case errors.Is(err, model.ErrNetworkFailure):
		return http.StatusBadGateway, model.ErrCodeNetworkFailure
	case errors.Is(err, postModel.ErrValidation):
		return http.StatusBadRequest, postModel.ErrCodeValidation
	case errors.Is(err, postModel.ErrStoreClosed):
		return http.StatusServiceUnavailable, postModel.ErrCodeStoreClosed
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func respondReplicationError(c *gin.Context, err error) {
	status, code := mapReplicationError(err)
	response.ErrorResponse(c, status, code, err.Error())
}
