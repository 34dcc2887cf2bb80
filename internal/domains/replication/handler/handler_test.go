package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	postModel "postsync/internal/domains/post/model"
	"postsync/internal/domains/post/repository"
	postService "postsync/internal/domains/post/service"
	"postsync/internal/domains/replication/model"
	"postsync/internal/domains/replication/remote"
	cpRepo "postsync/internal/domains/replication/repository"
	"postsync/internal/domains/replication/service"
	"postsync/internal/shared/response"
)

func newControlRouter(t *testing.T, mode model.Mode) (*gin.Engine, *service.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	open := func() *repository.Store {
		s, err := repository.Open(context.Background(), repository.NewMemoryPersister())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}
	local, hub := open(), open()
	_, err := postService.NewMutationService(hub, nil).Create(context.Background(),
		postModel.CreatePostRequest{Name: "on hub", Content: "c"})
	require.NoError(t, err)

	m := service.NewManager(local, remote.NewLocalPeer(hub), cpRepo.NewMemoryCheckpointStore(), nil, service.Config{
		ReplicaID:   "r1",
		InitialMode: mode,
		RetryMin:    time.Millisecond,
		RetryMax:    10 * time.Millisecond,
	})
	t.Cleanup(m.Close)

	router := gin.New()
	NewReplicationHandler(m).RegisterRoutes(router.Group("/api/v1"))
	return router, m
}

func call(t *testing.T, router *gin.Engine, method, path string, body any) (int, response.Envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func TestOfflineRejectsOneShotCalls(t *testing.T) {
	router, _ := newControlRouter(t, model.ModeOffline)

	for _, path := range []string{"/api/v1/replication/sync", "/api/v1/replication/pull", "/api/v1/replication/push"} {
		code, env := call(t, router, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusConflict, code, path)
		require.NotNil(t, env.Error)
		assert.Equal(t, model.ErrCodeOffline, env.Error.Code)
	}

	code, env := call(t, router, http.MethodGet, "/api/v1/replication/mode", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"mode":"offline"}`, string(env.Data))
}

func TestSetModeAndSync(t *testing.T) {
	router, m := newControlRouter(t, model.ModeOffline)

	code, _ := call(t, router, http.MethodPut, "/api/v1/replication/mode", gin.H{"mode": "sideways"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := call(t, router, http.MethodPut, "/api/v1/replication/mode", gin.H{"mode": "ONLINE"})
	require.Equal(t, http.StatusOK, code)
	var status model.Status
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, model.ModeOnline, status.Mode)
	assert.True(t, status.Continuous)
	assert.NotZero(t, status.Checkpoint.PullSeq, "going online pulls first")

	code, env = call(t, router, http.MethodPost, "/api/v1/replication/sync", nil)
	require.Equal(t, http.StatusOK, code)
	var result model.SyncResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Zero(t, result.Applied)

	code, env = call(t, router, http.MethodGet, "/api/v1/replication/status", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, "r1", status.ReplicaID)
	assert.Equal(t, m.Mode(), status.Mode)

	code, _ = call(t, router, http.MethodPut, "/api/v1/replication/mode", gin.H{"mode": "offline"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.ModeOffline, m.Mode())
}

func TestMapReplicationError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{model.ErrOffline, http.StatusConflict, model.ErrCodeOffline},
		{model.NewNetworkError("apply", assert.AnError), http.StatusBadGateway, model.ErrCodeNetworkFailure},
		{postModel.NewValidationError(assert.AnError), http.StatusBadRequest, postModel.ErrCodeValidation},
		{postModel.ErrStoreClosed, http.StatusServiceUnavailable, postModel.ErrCodeStoreClosed},
		{assert.AnError, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		status, code := mapReplicationError(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
