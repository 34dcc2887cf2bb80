package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	postModel "postsync/internal/domains/post/model"
	"postsync/internal/domains/replication/model"
	"postsync/internal/shared/response"
)

// Peer endpoint paths, relative to the peer's base URL.
const (
	ChangesPath = "/api/v1/replication/peer/changes"
	ApplyPath   = "/api/v1/replication/peer/apply"
	WatchPath   = "/api/v1/replication/peer/watch"

	// EpochHeader carries the hub store epoch on the watch handshake.
	EpochHeader = "X-Store-Epoch"
)

// TokenSource issues the bearer token sent to the peer.
type TokenSource interface {
	Token() (string, error)
}

// HTTPPeer talks to a hub over its HTTP peer endpoints. Transport errors
// and 5xx responses are NetworkErrors; 4xx responses are returned as-is.
type HTTPPeer struct {
	baseURL *url.URL
	client  *http.Client
	dialer  *websocket.Dialer
	tokens  TokenSource
}

var _ Peer = (*HTTPPeer)(nil)

// NewHTTPPeer builds a peer for baseURL. tokens may be nil for an
// unauthenticated hub.
func NewHTTPPeer(baseURL string, timeout time.Duration, tokens TokenSource) (*HTTPPeer, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid peer url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid peer url %q: scheme must be http or https", baseURL)
	}
	return &HTTPPeer{
		baseURL: u,
		client:  &http.Client{Timeout: timeout},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
		tokens: tokens,
	}, nil
}

func (p *HTTPPeer) Changes(ctx context.Context, since uint64, limit int) (postModel.ChangeBatch, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatUint(since, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var batch postModel.ChangeBatch
	if err := p.do(ctx, "changes", http.MethodGet, p.endpoint("http", ChangesPath, q), nil, &batch); err != nil {
		return postModel.ChangeBatch{}, err
	}
	return batch, nil
}

func (p *HTTPPeer) Apply(ctx context.Context, docs []*postModel.Post) (model.ApplyResponse, error) {
	body, err := json.Marshal(model.ApplyRequest{Docs: docs})
	if err != nil {
		return model.ApplyResponse{}, fmt.Errorf("encode apply request: %w", err)
	}

	var resp model.ApplyResponse
	if err := p.do(ctx, "apply", http.MethodPost, p.endpoint("http", ApplyPath, nil), body, &resp); err != nil {
		return model.ApplyResponse{}, err
	}
	return resp, nil
}

func (p *HTTPPeer) Watch(ctx context.Context, since uint64) (ChangeStream, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatUint(since, 10))

	header, err := p.authHeader()
	if err != nil {
		return nil, err
	}
	conn, resp, err := p.dialer.DialContext(ctx, p.endpoint("ws", WatchPath, q), header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, fmt.Errorf("watch rejected: %s", resp.Status)
		}
		return nil, model.NewNetworkError("watch", err)
	}
	return newSocketStream(conn, resp.Header.Get(EpochHeader)), nil
}

// endpoint builds an absolute URL; scheme "ws" maps http to ws and https to wss.
func (p *HTTPPeer) endpoint(scheme, path string, q url.Values) string {
	u := *p.baseURL
	if scheme == "ws" {
		if u.Scheme == "https" {
			u.Scheme = "wss"
		} else {
			u.Scheme = "ws"
		}
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *HTTPPeer) authHeader() (http.Header, error) {
	header := http.Header{}
	if p.tokens == nil {
		return header, nil
	}
	token, err := p.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("issue peer token: %w", err)
	}
	header.Set("Authorization", "Bearer "+token)
	return header, nil
}

func (p *HTTPPeer) do(ctx context.Context, op, method, target string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	header, err := p.authHeader()
	if err != nil {
		return err
	}
	req.Header = header
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := p.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return model.NewNetworkError(op, err)
	}
	defer res.Body.Close()

	var env response.Envelope
	decodeErr := json.NewDecoder(res.Body).Decode(&env)

	if res.StatusCode >= 300 {
		msg := res.Status
		if decodeErr == nil && env.Error != nil {
			msg = fmt.Sprintf("%s: %s %s", res.Status, env.Error.Code, env.Error.Message)
		}
		if res.StatusCode >= 500 {
			return model.NewNetworkError(op, errors.New(msg))
		}
		return fmt.Errorf("peer %s failed: %s", op, msg)
	}
	if decodeErr != nil {
		return model.NewNetworkError(op, fmt.Errorf("decode response: %w", decodeErr))
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return model.NewNetworkError(op, fmt.Errorf("decode %s payload: %w", op, err))
	}
	return nil
}

// =====================================================
// WEBSOCKET STREAM
// =====================================================

// ErrStreamClosed is returned by Next after Close.
var ErrStreamClosed = errors.New("change stream closed")

// socketStream reads JSON changes from a websocket on its own goroutine
// so Next can honour ctx.
type socketStream struct {
	conn      *websocket.Conn
	epoch     string
	changes   chan postModel.Change
	done      chan struct{} // closed when readLoop exits
	quit      chan struct{} // closed by Close
	err       error
	closeOnce sync.Once
}

func newSocketStream(conn *websocket.Conn, epoch string) *socketStream {
	s := &socketStream{
		conn:    conn,
		epoch:   epoch,
		changes: make(chan postModel.Change),
		done:    make(chan struct{}),
		quit:    make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *socketStream) readLoop() {
	defer close(s.done)
	for {
		var change postModel.Change
		if err := s.conn.ReadJSON(&change); err != nil {
			select {
			case <-s.quit:
				s.err = ErrStreamClosed
			default:
				s.err = model.NewNetworkError("watch", err)
			}
			return
		}
		select {
		case s.changes <- change:
		case <-s.quit:
			s.err = ErrStreamClosed
			return
		}
	}
}

func (s *socketStream) Next(ctx context.Context) (postModel.Change, error) {
	select {
	case change := <-s.changes:
		return change, nil
	case <-s.done:
		return postModel.Change{}, s.err
	case <-ctx.Done():
		return postModel.Change{}, ctx.Err()
	}
}

func (s *socketStream) Epoch() string {
	return s.epoch
}

func (s *socketStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.quit)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
	})
	return err
}
