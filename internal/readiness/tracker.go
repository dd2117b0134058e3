// Package readiness tracks whether the knowledge base has any documents.
// The chat input is gated on HasDocuments, which stays false until the
// first file listing has completed. The tracker also owns the upload and
// delete flows because both reshape the same file list.
package readiness

import (
	"context"
	"errors"
	"sync"
	"time"

	"ragchat/internal/gateway"
	"ragchat/internal/logging"
	"ragchat/internal/types"

	"go.uber.org/zap"
)

// Phase is the listing lifecycle.
type Phase int

const (
	PhaseLoading Phase = iota // first listing not yet completed
	PhaseReady
)

func (p Phase) String() string {
	if p == PhaseReady {
		return "ready"
	}
	return "loading"
}

var (
	// ErrClosed is returned when an operation completes after Close.
	ErrClosed = errors.New("readiness tracker closed")

	// ErrUploadInFlight is returned when Upload is called while the
	// selection is already being uploaded.
	ErrUploadInFlight = errors.New("upload already in progress")
)

// Backend is the subset of the gateway the tracker needs.
type Backend interface {
	ListFiles(ctx context.Context, token string) []types.FileRecord
	UploadFiles(ctx context.Context, token string, files []types.FilePayload) error
	DeleteFile(ctx context.Context, token, fileID string) error
}

// Tracker owns the file list, pending upload selection and status banner.
// All state is guarded by mu; network calls run outside the lock.
type Tracker struct {
	backend      Backend
	token        string
	logger       *zap.Logger
	refreshDelay time.Duration

	mu          sync.Mutex
	phase       Phase
	files       []types.FileRecord
	listSeq     uint64 // last issued listing
	appliedSeq  uint64 // last listing applied to files
	deletedAt   map[string]uint64 // file id -> listSeq when its delete succeeded
	pending     []types.FilePayload
	pendingGen  uint64
	status      *types.Status
	sendingSel  bool // the pending selection is being uploaded
	uploads     int  // uploads in flight, selection and batches
	closed      bool
	changes     chan struct{}
	lifetimeCtx context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = logging.Named(l, logging.CategoryReadiness) }
}

// WithRefreshDelay sets the wait between a successful upload and the
// follow-up listing, covering backend indexing lag.
func WithRefreshDelay(d time.Duration) Option {
	return func(t *Tracker) { t.refreshDelay = d }
}

// New creates a tracker in PhaseLoading.
func New(backend Backend, token string, opts ...Option) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		backend:      backend,
		token:        token,
		logger:       zap.NewNop(),
		refreshDelay: 2 * time.Second,
		phase:        PhaseLoading,
		deletedAt:    make(map[string]uint64),
		changes:      make(chan struct{}, 1),
		lifetimeCtx:  ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// =============================================================================
// LISTING
// =============================================================================

// Load performs the initial listing. Completion, including a fail-soft
// empty result, moves the tracker to PhaseReady.
func (t *Tracker) Load(ctx context.Context) error {
	return t.list(ctx, "initial")
}

// Refresh re-lists and replaces the file list wholesale. The phase never
// goes back to PhaseLoading.
func (t *Tracker) Refresh(ctx context.Context) error {
	return t.list(ctx, "refresh")
}

func (t *Tracker) list(ctx context.Context, reason string) error {
	if t.token == "" {
		return gateway.ErrAuthMissing
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.listSeq++
	seq := t.listSeq
	t.mu.Unlock()

	ctx, cancel := t.bind(ctx)
	defer cancel()
	files := t.backend.ListFiles(ctx, t.token)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if seq < t.appliedSeq {
		t.logger.Debug("discarding stale listing", zap.Uint64("seq", seq), zap.Uint64("applied", t.appliedSeq))
		return nil
	}
	t.appliedSeq = seq
	t.files = t.withoutDeletedLocked(files, seq)
	t.phase = PhaseReady
	t.logger.Debug("file listing applied", zap.String("reason", reason), zap.Int("files", len(files)))
	t.notifyLocked()
	return nil
}

// withoutDeletedLocked drops records deleted after listing seq was issued.
// The server may have answered that listing before the delete landed.
func (t *Tracker) withoutDeletedLocked(files []types.FileRecord, seq uint64) []types.FileRecord {
	for id, at := range t.deletedAt {
		if at < seq {
			delete(t.deletedAt, id)
		}
	}
	if len(t.deletedAt) == 0 {
		return files
	}
	kept := files[:0:0]
	for _, f := range files {
		if _, gone := t.deletedAt[f.ID]; !gone {
			kept = append(kept, f)
		}
	}
	return kept
}

// Phase returns the listing phase.
func (t *Tracker) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Loaded reports whether the first listing has completed.
func (t *Tracker) Loaded() bool {
	return t.Phase() == PhaseReady
}

// HasDocuments is true only after the first listing returned at least one file.
func (t *Tracker) HasDocuments() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase == PhaseReady && len(t.files) > 0
}

// Files returns a copy of the current file list.
func (t *Tracker) Files() []types.FileRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.FileRecord, len(t.files))
	copy(out, t.files)
	return out
}

// Status returns the last file-operation banner, if any.
func (t *Tracker) Status() (types.Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == nil {
		return types.Status{}, false
	}
	return *t.status, true
}

// Changes delivers a coalesced signal after every state change. It is
// closed by Close.
func (t *Tracker) Changes() <-chan struct{} {
	return t.changes
}

// Close cancels in-flight calls and any scheduled refresh, waits for the
// refresh, and stops all further state changes.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.cancel()
	t.mu.Unlock()

	t.wg.Wait()
	close(t.changes)
}

// bind derives a context that is also canceled when the tracker closes.
func (t *Tracker) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(t.lifetimeCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// notifyLocked must be called with mu held.
func (t *Tracker) notifyLocked() {
	if t.closed {
		return
	}
	select {
	case t.changes <- struct{}{}:
	default:
	}
}

func (t *Tracker) setStatusLocked(kind types.StatusKind, msg string) {
	t.status = &types.Status{Kind: kind, Message: msg}
}
