package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	postModel "postsync/internal/domains/post/model"
	"postsync/internal/domains/replication/model"
	"postsync/internal/domains/replication/remote"
	"postsync/internal/shared/middleware"
	"postsync/internal/shared/response"
)

const (
	maxChangesLimit = 1000
	pingInterval    = 30 * time.Second
	writeWait       = 10 * time.Second
)

// =====================================================
// PEER HANDLER
// =====================================================

// PeerHandler serves this process's store to replicas: the server side
// of remote.HTTPPeer.
type PeerHandler struct {
	peer     remote.Peer
	upgrader websocket.Upgrader
}

func NewPeerHandler(peer remote.Peer) *PeerHandler {
	return &PeerHandler{
		peer: peer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Peers are authenticated by bearer token, not by origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Changes returns a page of the change feed
// GET /api/v1/replication/peer/changes?since=&limit=
func (h *PeerHandler) Changes(c *gin.Context) {
	since, err := parseSince(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(maxChangesLimit)))
	if err != nil || limit <= 0 {
		response.BadRequest(c, "limit must be a positive integer")
		return
	}
	limit = min(limit, maxChangesLimit)

	batch, err := h.peer.Changes(c.Request.Context(), since, limit)
	if err != nil {
		respondReplicationError(c, err)
		return
	}
	response.Success(c, http.StatusOK, batch)
}

// Apply applies pushed documents with their own revisions
// POST /api/v1/replication/peer/apply
func (h *PeerHandler) Apply(c *gin.Context) {
	var req model.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.peer.Apply(c.Request.Context(), req.Docs)
	if err != nil {
		respondReplicationError(c, err)
		return
	}
	if failed := resp.Failed(); failed > 0 {
		log.Warn().
			Str("replica_id", c.GetString(middleware.ReplicaIDKey)).
			Int("failed", failed).
			Int("total", len(req.Docs)).
			Msg("Peer apply rejected documents")
	}
	response.Success(c, http.StatusOK, resp)
}

// Watch streams changes after since as JSON websocket messages
// GET /api/v1/replication/peer/watch?since=
func (h *PeerHandler) Watch(c *gin.Context) {
	since, err := parseSince(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	stream, err := h.peer.Watch(ctx, since)
	if err != nil {
		respondReplicationError(c, err)
		return
	}
	defer stream.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, http.Header{
		remote.EpochHeader: []string{stream.Epoch()},
	})
	if err != nil {
		// Upgrade has already replied to the client
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Read side: only control frames are expected; any error means the
	// replica went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info().
		Str("replica_id", c.GetString(middleware.ReplicaIDKey)).
		Str("client_ip", c.ClientIP()).
		Uint64("since", since).
		Msg("Replica watching changes")
	for {
		change, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, postModel.ErrStoreClosed) {
				closeSocket(conn, websocket.CloseGoingAway, "store closed")
			}
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(change); err != nil {
			log.Warn().Err(err).Msg("Websocket write failed")
			return
		}
	}
}

// RegisterRoutes mounts the peer endpoints under rg. auth guards every route.
func (h *PeerHandler) RegisterRoutes(rg *gin.RouterGroup, auth ...gin.HandlerFunc) {
	peer := rg.Group("/replication/peer", auth...)
	{
		peer.GET("/changes", h.Changes)
		peer.POST("/apply", h.Apply)
		peer.GET("/watch", h.Watch)
	}
}

// =====================================================
// HELPER FUNCTIONS
// =====================================================

func parseSince(c *gin.Context) (uint64, error) {
	raw := c.DefaultQuery("since", "0")
	since, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("since must be a non-negative integer")
	}
	return since, nil
}

func closeSocket(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait),
	)
}
