// Package session owns the chat transcript and the send lifecycle.
//
// A submission is split in two so a UI can render the optimistic user
// message before the network call starts:
//
//	tk, err := ctrl.Begin(text)      // gate, append user message, enter Sending
//	reply, err := ctrl.Complete(ctx, tk) // ask the backend, append the reply
//
// Only one submission can be in flight. The assistant reply for a
// submission is always appended before the next one can begin.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ragchat/internal/gateway"
	"ragchat/internal/logging"
	"ragchat/internal/types"

	"go.uber.org/zap"
)

// Asker is the part of the gateway the controller needs.
type Asker interface {
	FetchHistory(ctx context.Context, token string) []types.Message
	SendQuery(ctx context.Context, token, text string) (gateway.Answer, error)
}

// Readiness reports knowledge-base readiness. readiness.Tracker satisfies it.
type Readiness interface {
	Loaded() bool
	HasDocuments() bool
}

type alwaysReady struct{}

func (alwaysReady) Loaded() bool       { return true }
func (alwaysReady) HasDocuments() bool { return true }

// Ticket identifies an accepted submission.
type Ticket struct {
	id    uint64
	Query string
}

// Controller is the chat state machine. All transitions are serialized
// through mu; network calls run outside it.
type Controller struct {
	backend   Asker
	readiness Readiness
	token     string
	logger    *zap.Logger
	hook      TransitionHook

	mu             sync.Mutex
	messages       []types.Message
	historyLoaded  bool
	historyLoading bool
	sending        bool
	inflight       uint64
	claimed        bool // Complete has taken the in-flight ticket
	nextTicket     uint64
	lastErr        error
	observed       State
	closed         bool
	changes        chan struct{}
	lifetime       context.Context
	cancel         context.CancelFunc
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithControllerLogger sets the logger.
func WithControllerLogger(l *zap.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logging.Named(l, logging.CategorySession) }
}

// WithTransitionHook registers an observer for state changes.
func WithTransitionHook(h TransitionHook) ControllerOption {
	return func(c *Controller) { c.hook = h }
}

// WithReadiness gates submissions on a readiness source. Without one the
// knowledge base is assumed ready.
func WithReadiness(r Readiness) ControllerOption {
	return func(c *Controller) {
		if r != nil {
			c.readiness = r
		}
	}
}

// NewController creates a controller for token. An empty token leaves it
// in StateUninitialized.
func NewController(backend Asker, token string, opts ...ControllerOption) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend:   backend,
		readiness: alwaysReady{},
		token:     token,
		logger:    zap.NewNop(),
		changes:   make(chan struct{}, 1),
		lifetime:  ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.observed = c.stateLocked()
	return c
}

// =============================================================================
// HISTORY
// =============================================================================

// Start loads the stored transcript and replaces the log with it. It can be
// called again to reload, but not while a submission is in flight.
func (c *Controller) Start(ctx context.Context) error {
	if c.token == "" {
		return gateway.ErrAuthMissing
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.sending || c.historyLoading {
		c.mu.Unlock()
		return fmt.Errorf("%w: busy", ErrNotAccepted)
	}
	c.historyLoading = true
	trs := c.moveLocked()
	c.mu.Unlock()
	c.fire(trs)

	ctx, cancel := c.bind(ctx)
	defer cancel()
	history := c.backend.FetchHistory(ctx, c.token)

	c.mu.Lock()
	c.historyLoading = false
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.messages = types.CloneMessages(history)
	c.historyLoaded = true
	trs = c.moveLocked()
	c.notifyLocked()
	c.mu.Unlock()
	c.fire(trs)

	c.logger.Debug("history loaded", zap.Int("messages", len(history)))
	return nil
}

// =============================================================================
// SUBMISSION
// =============================================================================

// CanSubmit applies the gating rule: documents present, history loaded,
// nothing in flight, and non-blank text.
func (c *Controller) CanSubmit(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gateLocked(text) == nil
}

func (c *Controller) gateLocked(text string) error {
	switch {
	case c.closed:
		return ErrClosed
	case c.token == "":
		return gateway.ErrAuthMissing
	case strings.TrimSpace(text) == "":
		return gateway.ErrEmptySelection
	case !c.readiness.Loaded() || !c.historyLoaded || c.historyLoading:
		return fmt.Errorf("%w: session still loading", ErrNotAccepted)
	case !c.readiness.HasDocuments():
		return fmt.Errorf("%w: knowledge base has no documents", ErrNotAccepted)
	case c.sending:
		return fmt.Errorf("%w: a question is already being answered", ErrNotAccepted)
	}
	return nil
}

// Begin accepts a submission: it appends the user message and enters
// StateSending before returning. Rejected submissions leave the log as is.
func (c *Controller) Begin(text string) (Ticket, error) {
	c.mu.Lock()
	if err := c.gateLocked(text); err != nil {
		c.mu.Unlock()
		return Ticket{}, err
	}
	c.nextTicket++
	tk := Ticket{id: c.nextTicket, Query: text}
	c.inflight = tk.id
	c.sending = true
	c.messages = append(c.messages, types.Message{Role: types.RoleUser, Content: text})
	trs := c.moveLocked()
	c.notifyLocked()
	c.mu.Unlock()
	c.fire(trs)
	return tk, nil
}

// Complete sends an accepted submission and appends the assistant reply.
// On failure the fixed apology is appended instead and the backend error is
// returned. If the controller is closed first, nothing is appended.
// A ticket can be completed once; later calls get ErrUnknownTicket.
func (c *Controller) Complete(ctx context.Context, tk Ticket) (types.Message, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return types.Message{}, ErrClosed
	}
	if !c.sending || tk.id != c.inflight || c.claimed {
		c.mu.Unlock()
		return types.Message{}, ErrUnknownTicket
	}
	c.claimed = true
	c.mu.Unlock()

	ctx, cancel := c.bind(ctx)
	defer cancel()
	ans, err := c.backend.SendQuery(ctx, c.token, tk.Query)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug("discarding reply after close")
		return types.Message{}, ErrClosed
	}

	var reply types.Message
	var via []State
	if err != nil {
		c.logger.Warn("question failed", zap.Error(err))
		reply = types.Message{Role: types.RoleAssistant, Content: ApologyText, Failed: true}
		via = []State{StateErrored}
	} else {
		reply = types.Message{Role: types.RoleAssistant, Content: ans.Response, Sources: ans.Sources}
		reply = reply.Clone()
	}
	c.lastErr = err
	c.messages = append(c.messages, reply)
	c.sending = false
	c.inflight = 0
	c.claimed = false
	trs := c.moveLocked(via...)
	c.notifyLocked()
	c.mu.Unlock()
	c.fire(trs)

	return reply.Clone(), err
}

// Submit is Begin followed by Complete.
func (c *Controller) Submit(ctx context.Context, text string) (types.Message, error) {
	tk, err := c.Begin(text)
	if err != nil {
		return types.Message{}, err
	}
	return c.Complete(ctx, tk)
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the combined session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	switch {
	case c.token == "":
		return StateUninitialized
	case !c.historyLoaded || !c.readiness.Loaded():
		return StateLoading
	case c.sending:
		return StateSending
	case !c.readiness.HasDocuments():
		return StateEmpty
	default:
		return StateIdle
	}
}

// Messages returns a copy of the transcript.
func (c *Controller) Messages() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.CloneMessages(c.messages)
}

// LastError returns the error from the most recent completed send, or nil.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Changes delivers a coalesced signal after every transcript or state change.
// It is closed by Close.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

// Reconcile re-derives the state after an external readiness change and
// reports any transition to the hook.
func (c *Controller) Reconcile() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	trs := c.moveLocked()
	if len(trs) > 0 {
		c.notifyLocked()
	}
	c.mu.Unlock()
	c.fire(trs)
}

// Close cancels in-flight calls. Results that arrive afterwards are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.changes)
}

// =============================================================================
// INTERNALS
// =============================================================================

// moveLocked advances the observed state to the current one, passing
// through any transient states in via.
func (c *Controller) moveLocked(via ...State) []transition {
	var out []transition
	prev := c.observed
	for _, s := range append(via, c.stateLocked()) {
		if s != prev {
			out = append(out, transition{from: prev, to: s})
			prev = s
		}
	}
	c.observed = prev
	return out
}

func (c *Controller) fire(trs []transition) {
	for _, tr := range trs {
		c.logger.Debug("state transition", zap.Stringer("from", tr.from), zap.Stringer("to", tr.to))
		if c.hook != nil {
			c.hook(tr.from, tr.to)
		}
	}
}

func (c *Controller) notifyLocked() {
	if c.closed {
		return
	}
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// bind derives a context that is also cancelled when the controller closes.
func (c *Controller) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.lifetime, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
