package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	postModel "postsync/internal/domains/post/model"
	"postsync/internal/domains/post/repository"
	postService "postsync/internal/domains/post/service"
	"postsync/internal/domains/replication/model"
	"postsync/internal/domains/replication/remote"
	cpRepo "postsync/internal/domains/replication/repository"
)

// errRebased restarts a continuous loop whose position belongs to a
// previous remote store.
var errRebased = errors.New("checkpoint rebased")

const (
	defaultBatchSize = 100
	defaultRetryMin  = 500 * time.Millisecond
	defaultRetryMax  = 30 * time.Second
)

// Config tunes the replication manager.
type Config struct {
	ReplicaID   string
	InitialMode model.Mode
	BatchSize   int
	RetryMin    time.Duration
	RetryMax    time.Duration
}

// Manager replicates the local document store with one remote peer.
//
// Conflict policy is last-writer-wins by revision order: a remote document
// replaces the local one only when its revision is newer, and the peer
// applies pushed documents by the same rule. Only local-origin changes are
// pushed, so applied remote changes never echo back.
type Manager struct {
	store       repository.DocumentStore
	peer        remote.Peer
	checkpoints cpRepo.CheckpointStore
	refresher   postService.Refresher
	cfg         Config

	root       context.Context
	rootCancel context.CancelFunc

	modeMu sync.Mutex // serializes SetMode
	syncMu sync.Mutex // serializes one-shot rounds

	mu         sync.Mutex
	mode       model.Mode
	session    *session
	lastSyncAt *time.Time
	lastErr    string

	// rebased is closed and replaced whenever the remote epoch changes.
	rebased chan struct{}
}

type session struct {
	cancel context.CancelFunc
	done   chan struct{}
}

var _ ServiceInterface = (*Manager)(nil)

// NewManager builds a manager in cfg.InitialMode (online when unset).
// Nothing runs until Start or SetMode is called. refresher may be nil.
func NewManager(
	store repository.DocumentStore,
	peer remote.Peer,
	checkpoints cpRepo.CheckpointStore,
	refresher postService.Refresher,
	cfg Config,
) *Manager {
	if cfg.InitialMode == "" {
		cfg.InitialMode = model.ModeOnline
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.RetryMin <= 0 {
		cfg.RetryMin = defaultRetryMin
	}
	if cfg.RetryMax < cfg.RetryMin {
		cfg.RetryMax = max(defaultRetryMax, cfg.RetryMin)
	}

	root, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:       store,
		peer:        peer,
		checkpoints: checkpoints,
		refresher:   refresher,
		cfg:         cfg,
		root:        root,
		rootCancel:  cancel,
		mode:        cfg.InitialMode,
		rebased:     make(chan struct{}),
	}
}

// Start enters the initial mode: when online this is the same transition
// as SetMode(ModeOnline).
func (m *Manager) Start(ctx context.Context) error {
	if m.Mode() == model.ModeOffline {
		log.Info().Str("replica_id", m.cfg.ReplicaID).Msg("Replication starting offline")
		return nil
	}
	return m.goOnline(ctx)
}

// Close stops the continuous session for good.
func (m *Manager) Close() {
	m.StopContinuous()
	m.rootCancel()
}

// =====================================================
// MODE
// =====================================================

func (m *Manager) Mode() model.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func (m *Manager) SetMode(ctx context.Context, mode model.Mode) error {
	switch mode {
	case model.ModeOnline:
		m.modeMu.Lock()
		defer m.modeMu.Unlock()
		if m.Mode() == model.ModeOnline && m.running() {
			return nil
		}
		return m.goOnlineLocked(ctx)

	case model.ModeOffline:
		m.modeMu.Lock()
		defer m.modeMu.Unlock()
		m.StopContinuous()
		m.setMode(model.ModeOffline)
		log.Info().Str("replica_id", m.cfg.ReplicaID).Msg("Replication offline")
		return nil
	}
	return fmt.Errorf("%w: unknown mode %q", postModel.ErrValidation, mode)
}

func (m *Manager) goOnline(ctx context.Context) error {
	m.modeMu.Lock()
	defer m.modeMu.Unlock()
	return m.goOnlineLocked(ctx)
}

// goOnlineLocked runs one sync round, then starts the session. A failed
// round does not block going online; the session retries on its own.
func (m *Manager) goOnlineLocked(ctx context.Context) error {
	m.setMode(model.ModeOnline)
	log.Info().Str("replica_id", m.cfg.ReplicaID).Msg("Replication online")

	if _, err := m.SyncOnce(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Warn().Err(err).Msg("Initial sync failed, continuous session will retry")
	}
	return m.StartContinuous()
}

func (m *Manager) setMode(mode model.Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

// =====================================================
// ONE-SHOT REPLICATION
// =====================================================

// PullOnce applies every remote change after the pull checkpoint.
func (m *Manager) PullOnce(ctx context.Context) (model.SyncResult, error) {
	if m.Mode() == model.ModeOffline {
		return model.SyncResult{}, model.ErrOffline
	}
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	result, err := m.pull(ctx)
	m.record(err)
	if err != nil {
		log.Warn().Err(err).Int("applied", result.Applied).Msg("Pull failed")
		return result, err
	}
	log.Info().Int("pulled", result.Pulled).Int("applied", result.Applied).Msg("Pull completed")
	return result, nil
}

// PushOnce sends every local change after the push checkpoint.
func (m *Manager) PushOnce(ctx context.Context) (model.SyncResult, error) {
	if m.Mode() == model.ModeOffline {
		return model.SyncResult{}, model.ErrOffline
	}
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	result, err := m.push(ctx)
	m.record(err)
	if err != nil {
		log.Warn().Err(err).Int("pushed", result.Pushed).Msg("Push failed")
		return result, err
	}
	log.Info().Int("pushed", result.Pushed).Int("accepted", result.Accepted).Msg("Push completed")
	return result, nil
}

// SyncOnce pulls then pushes. The two halves are not atomic; each only
// moves its own checkpoint, so an interrupted round is safe to rerun.
func (m *Manager) SyncOnce(ctx context.Context) (model.SyncResult, error) {
	if m.Mode() == model.ModeOffline {
		return model.SyncResult{}, model.ErrOffline
	}
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	pulled, err := m.pull(ctx)
	if err != nil {
		m.record(err)
		log.Warn().Err(err).Msg("Sync failed during pull")
		return pulled, err
	}
	pushed, err := m.push(ctx)
	result := pulled.Merge(pushed)
	m.record(err)
	if err != nil {
		log.Warn().Err(err).Msg("Sync failed during push")
		return result, err
	}

	log.Info().
		Int("pulled", result.Pulled).
		Int("applied", result.Applied).
		Int("pushed", result.Pushed).
		Int("accepted", result.Accepted).
		Msg("Sync completed")
	return result, nil
}

func (m *Manager) pull(ctx context.Context) (model.SyncResult, error) {
	var result model.SyncResult
	cp, err := m.checkpoint(ctx)
	if err != nil {
		return result, err
	}

	for {
		batch, err := m.peer.Changes(ctx, cp.PullSeq, m.cfg.BatchSize)
		if err != nil {
			return result, err
		}
		next, err := m.adoptRemote(ctx, cp, batch.Epoch)
		if err != nil {
			return result, err
		}
		if next.PullSeq != cp.PullSeq {
			// The page was read from a position that is no longer ours.
			cp = next
			continue
		}
		cp = next
		if len(batch.Changes) == 0 || batch.LastSeq <= cp.PullSeq {
			break
		}

		docs := latestDocs(batch.Changes, nil)
		result.Pulled += len(docs)
		applied, rejected, err := m.applyLocal(ctx, docs)
		result.Applied += applied
		result.Rejected += rejected
		if err != nil {
			return result, err
		}

		cp, err = m.checkpoints.Save(ctx, m.progress(cp, batch.LastSeq, 0))
		if err != nil {
			return result, err
		}
		if len(batch.Changes) < m.cfg.BatchSize {
			break
		}
	}

	if result.Applied > 0 {
		m.refresh(ctx)
	}
	return result, nil
}

func (m *Manager) push(ctx context.Context) (model.SyncResult, error) {
	var result model.SyncResult
	cp, err := m.checkpoint(ctx)
	if err != nil {
		return result, err
	}

	for {
		batch := m.store.ChangesSince(cp.PushSeq, m.cfg.BatchSize)
		if len(batch.Changes) == 0 {
			break
		}

		docs := latestDocs(batch.Changes, isLocal)
		if len(docs) > 0 {
			resp, err := m.peer.Apply(ctx, docs)
			if err != nil {
				return result, err
			}
			result.Pushed += len(docs)
			result.Accepted += countApplied(resp)
			result.Rejected += m.logRejected(resp)

			next, err := m.adoptRemote(ctx, cp, resp.Epoch)
			if err != nil {
				return result, err
			}
			if next.PushSeq != cp.PushSeq {
				// Earlier pushes went to the previous remote store; send
				// everything again from the start.
				cp = next
				continue
			}
			cp = next
		}

		cp, err = m.checkpoints.Save(ctx, m.progress(cp, 0, batch.LastSeq))
		if err != nil {
			return result, err
		}
		if len(batch.Changes) < m.cfg.BatchSize {
			break
		}
	}
	return result, nil
}

// checkpoint loads this replica's checkpoint tied to the local store's
// epoch. Seqs recorded against another local store are discarded: after
// the store is rebuilt everything is pulled and pushed again.
func (m *Manager) checkpoint(ctx context.Context) (model.Checkpoint, error) {
	cp, err := m.checkpoints.Load(ctx, m.cfg.ReplicaID)
	if err != nil {
		return cp, err
	}
	epoch := m.store.Epoch()
	if cp.LocalEpoch == epoch {
		return cp, nil
	}
	next, err := m.checkpoints.Rebase(ctx, m.cfg.ReplicaID, epoch, cp.RemoteEpoch)
	if err != nil {
		return cp, err
	}
	if next.PullSeq != cp.PullSeq || next.PushSeq != cp.PushSeq {
		log.Warn().
			Str("replica_id", m.cfg.ReplicaID).
			Str("epoch", epoch).
			Msg("Local store epoch changed, replicating from the start")
	}
	return next, nil
}

// adoptRemote ties the checkpoint to the remote epoch the peer reported
// and returns it. When the epoch differs from cp's, the stored checkpoint
// is reloaded (another loop may have rebased it already) and rebased, so
// the returned seqs can differ from cp's; callers then restart from them.
func (m *Manager) adoptRemote(ctx context.Context, cp model.Checkpoint, epoch string) (model.Checkpoint, error) {
	if epoch == "" || epoch == cp.RemoteEpoch {
		return cp, nil
	}
	stored, err := m.checkpoints.Load(ctx, m.cfg.ReplicaID)
	if err != nil {
		return cp, err
	}
	if stored.RemoteEpoch == epoch {
		return stored, nil
	}
	next, err := m.checkpoints.Rebase(ctx, m.cfg.ReplicaID, stored.LocalEpoch, epoch)
	if err != nil {
		return cp, err
	}
	if stored.RemoteEpoch != "" {
		log.Warn().
			Str("replica_id", m.cfg.ReplicaID).
			Str("remote_epoch", epoch).
			Msg("Remote store epoch changed, replicating from the start")
		m.notifyRebased()
	}
	return next, nil
}

func (m *Manager) rebaseSignal() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rebased
}

func (m *Manager) notifyRebased() {
	m.mu.Lock()
	defer m.mu.Unlock()
	close(m.rebased)
	m.rebased = make(chan struct{})
}

// progress is a checkpoint update for cp's epochs.
func (m *Manager) progress(cp model.Checkpoint, pullSeq, pushSeq uint64) model.Checkpoint {
	return model.Checkpoint{
		ReplicaID:   m.cfg.ReplicaID,
		LocalEpoch:  cp.LocalEpoch,
		RemoteEpoch: cp.RemoteEpoch,
		PullSeq:     pullSeq,
		PushSeq:     pushSeq,
	}
}

// applyLocal applies remote docs to the store. Documents the store
// rejects as invalid are skipped and counted; anything else aborts.
func (m *Manager) applyLocal(ctx context.Context, docs []*postModel.Post) (applied, rejected int, err error) {
	for _, doc := range docs {
		ok, err := m.store.ApplyRemote(ctx, doc)
		if err != nil {
			if errors.Is(err, postModel.ErrValidation) {
				rejected++
				log.Warn().Err(err).Str("id", doc.ID).Str("rev", doc.Rev).Msg("Skipping invalid remote document")
				continue
			}
			return applied, rejected, err
		}
		if ok {
			applied++
		}
	}
	return applied, rejected, nil
}

func (m *Manager) logRejected(resp model.ApplyResponse) int {
	for _, res := range resp.Results {
		if res.Error != "" {
			log.Warn().Str("id", res.ID).Str("rev", res.Rev).Str("error", res.Error).Msg("Peer rejected document")
		}
	}
	return resp.Failed()
}

func isLocal(c postModel.Change) bool {
	return c.Origin == postModel.OriginLocal
}

// latestDocs keeps the last change per document, in order of that last
// change, optionally filtered by keep.
func latestDocs(changes []postModel.Change, keep func(postModel.Change) bool) []*postModel.Post {
	last := make(map[string]int, len(changes))
	for i, c := range changes {
		if keep == nil || keep(c) {
			last[c.ID] = i
		}
	}
	docs := make([]*postModel.Post, 0, len(last))
	for i, c := range changes {
		if j, ok := last[c.ID]; ok && j == i && c.Doc != nil {
			docs = append(docs, c.Doc)
		}
	}
	return docs
}

func countApplied(resp model.ApplyResponse) int {
	n := 0
	for _, res := range resp.Results {
		if res.Applied {
			n++
		}
	}
	return n
}

// =====================================================
// CONTINUOUS SESSION
// =====================================================

// StartContinuous starts the live session if it is not already running.
// It returns immediately; the session runs until StopContinuous.
func (m *Manager) StartContinuous() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == model.ModeOffline {
		return model.ErrOffline
	}
	if m.session != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(m.root)
	s := &session{cancel: cancel, done: make(chan struct{})}
	m.session = s

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.retryLoop(gctx, "inbound", m.inbound) })
	g.Go(func() error { return m.retryLoop(gctx, "outbound", m.outbound) })
	go func() {
		defer close(s.done)
		if err := g.Wait(); err != nil {
			log.Error().Err(err).Msg("Continuous replication stopped")
		}
	}()

	log.Info().Str("replica_id", m.cfg.ReplicaID).Msg("Continuous replication started")
	return nil
}

// StopContinuous cancels the session and waits for it to exit. Writes that
// reached the store commit fully; no new transfer starts afterwards.
func (m *Manager) StopContinuous() {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()
	if s == nil {
		return
	}

	s.cancel()
	<-s.done
	log.Info().Str("replica_id", m.cfg.ReplicaID).Msg("Continuous replication stopped")
}

func (m *Manager) running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// loopFunc runs until it fails or ctx is done. It calls healthy once it
// has (re)established its stream so the backoff resets.
type loopFunc func(ctx context.Context, healthy func()) error

// retryLoop restarts fn with exponential backoff until ctx is done. A
// single failure never ends the session.
func (m *Manager) retryLoop(ctx context.Context, name string, fn loopFunc) error {
	attempt := 0
	for {
		err := fn(ctx, func() { attempt = 0 })
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, postModel.ErrStoreClosed) {
			return err
		}
		if errors.Is(err, errRebased) {
			log.Info().Str("loop", name).Msg("Restarting replication from the rebased checkpoint")
			attempt = 0
			continue
		}

		m.record(err)
		delay := m.backoff(attempt)
		attempt++
		log.Warn().
			Err(err).
			Str("loop", name).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("Continuous replication interrupted")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}
}

// backoff is RetryMin * 2^attempt, capped at RetryMax.
func (m *Manager) backoff(attempt int) time.Duration {
	if attempt > 30 {
		return m.cfg.RetryMax
	}
	delay := m.cfg.RetryMin * time.Duration(1<<uint(attempt))
	if delay <= 0 || delay > m.cfg.RetryMax {
		return m.cfg.RetryMax
	}
	return delay
}

// inbound follows the peer's change stream from the pull checkpoint.
func (m *Manager) inbound(ctx context.Context, healthy func()) error {
	cp, err := m.checkpoint(ctx)
	if err != nil {
		return err
	}

	var stream remote.ChangeStream
	for {
		stream, err = m.peer.Watch(ctx, cp.PullSeq)
		if err != nil {
			return err
		}
		next, err := m.adoptRemote(ctx, cp, stream.Epoch())
		if err != nil {
			_ = stream.Close()
			return err
		}
		if next.PullSeq == cp.PullSeq {
			cp = next
			break
		}
		// Opened at a position of another remote store.
		_ = stream.Close()
		cp = next
	}
	defer stream.Close()
	healthy()

	for {
		change, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		if change.Doc != nil {
			applied, _, err := m.applyLocal(ctx, []*postModel.Post{change.Doc})
			if err != nil {
				return err
			}
			if applied > 0 {
				m.refresh(ctx)
			}
		}
		if _, err := m.checkpoints.Save(ctx, m.progress(cp, change.Seq, 0)); err != nil {
			return err
		}
		m.record(nil)
	}
}

// outbound follows the local change feed from the push checkpoint and
// sends each local-origin change to the peer. It restarts from the start
// when the remote epoch changes, whichever loop notices it.
func (m *Manager) outbound(ctx context.Context, healthy func()) error {
	rebased := m.rebaseSignal()
	cp, err := m.checkpoint(ctx)
	if err != nil {
		return err
	}
	cursor := m.store.Changes(cp.PushSeq)
	defer cursor.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-rebased:
			cancel()
		case <-ctx.Done():
		}
	}()
	healthy()

	for {
		change, err := cursor.Next(ctx)
		if err != nil {
			return rebasedOr(rebased, err)
		}
		if isLocal(change) && change.Doc != nil {
			resp, err := m.peer.Apply(ctx, []*postModel.Post{change.Doc})
			if err != nil {
				return rebasedOr(rebased, err)
			}
			m.logRejected(resp)

			next, err := m.adoptRemote(ctx, cp, resp.Epoch)
			if err != nil {
				return err
			}
			if cp.RemoteEpoch != "" && next.RemoteEpoch != cp.RemoteEpoch {
				// Everything sent so far went to the previous remote store.
				return errRebased
			}
			cp = next
		}
		if _, err := m.checkpoints.Save(ctx, m.progress(cp, 0, change.Seq)); err != nil {
			return err
		}
		m.record(nil)
	}
}

// rebasedOr returns errRebased when the signal fired, err otherwise.
func rebasedOr(rebased <-chan struct{}, err error) error {
	select {
	case <-rebased:
		return errRebased
	default:
		return err
	}
}

// =====================================================
// STATUS
// =====================================================

func (m *Manager) Status(ctx context.Context) (model.Status, error) {
	cp, err := m.checkpoints.Load(ctx, m.cfg.ReplicaID)
	if err != nil {
		return model.Status{}, err
	}
	pushed := cp.PushSeq
	if cp.LocalEpoch != m.store.Epoch() {
		pushed = 0
	}
	pending := len(latestDocs(m.store.ChangesSince(pushed, 0).Changes, isLocal))

	m.mu.Lock()
	defer m.mu.Unlock()
	status := model.Status{
		ReplicaID:  m.cfg.ReplicaID,
		Mode:       m.mode,
		Continuous: m.session != nil,
		Pending:    pending,
		LastError:  m.lastErr,
		Checkpoint: cp,
		LocalSeq:   m.store.LastSeq(),
	}
	if m.lastSyncAt != nil {
		t := *m.lastSyncAt
		status.LastSyncAt = &t
	}
	return status, nil
}

// record stores the outcome of the latest replication step.
func (m *Manager) record(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.lastErr = err.Error()
		return
	}
	now := time.Now().UTC()
	m.lastSyncAt = &now
	m.lastErr = ""
}

func (m *Manager) refresh(ctx context.Context) {
	if m.refresher == nil {
		return
	}
	if err := m.refresher.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("View refresh after remote change failed")
	}
}
