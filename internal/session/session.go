package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"ragchat/internal/gateway"
	"ragchat/internal/logging"
	"ragchat/internal/readiness"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Backend is everything a Session needs from the gateway.
type Backend interface {
	Asker
	readiness.Backend
}

// Session ties the chat controller to the readiness tracker for one token
// and owns both lifetimes.
type Session struct {
	chat   *Controller
	files  *readiness.Tracker
	logger *zap.Logger

	changes   chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type sessionOptions struct {
	logger       *zap.Logger
	refreshDelay time.Duration
	hook         TransitionHook
}

// Option configures a Session.
type Option func(*sessionOptions)

// WithLogger sets the logger shared by the controller and tracker.
func WithLogger(l *zap.Logger) Option {
	return func(o *sessionOptions) { o.logger = l }
}

// WithRefreshDelay sets the post-upload refresh delay.
func WithRefreshDelay(d time.Duration) Option {
	return func(o *sessionOptions) { o.refreshDelay = d }
}

// WithHook registers a state transition observer.
func WithHook(h TransitionHook) Option {
	return func(o *sessionOptions) { o.hook = h }
}

// New wires a session. Call Start to run the initial loads and Close to
// tear it down.
func New(backend Backend, token string, opts ...Option) *Session {
	o := sessionOptions{logger: zap.NewNop(), refreshDelay: 2 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	files := readiness.New(backend, token,
		readiness.WithLogger(o.logger),
		readiness.WithRefreshDelay(o.refreshDelay))
	chat := NewController(backend, token,
		WithControllerLogger(o.logger),
		WithReadiness(files),
		WithTransitionHook(o.hook))

	s := &Session{
		chat:    chat,
		files:   files,
		logger:  logging.Named(o.logger, logging.CategorySession),
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.forward()
	return s
}

// Chat returns the chat controller.
func (s *Session) Chat() *Controller { return s.chat }

// Files returns the readiness tracker.
func (s *Session) Files() *readiness.Tracker { return s.files }

// Start runs the history load and the first file listing concurrently.
// Either may finish first; the session reports StateLoading until both have.
func (s *Session) Start(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return s.chat.Start(ctx) })
	g.Go(func() error { return s.files.Load(ctx) })
	err := g.Wait()
	s.chat.Reconcile()
	if err != nil && !errors.Is(err, gateway.ErrAuthMissing) {
		s.logger.Warn("initial load incomplete", zap.Error(err))
	}
	return err
}

// State returns the combined session state.
func (s *Session) State() State { return s.chat.State() }

// Changes delivers a coalesced signal whenever the transcript, the file
// list or the banner changes. It is closed by Close.
func (s *Session) Changes() <-chan struct{} { return s.changes }

// Close cancels in-flight work, stops the delayed refresh and waits for
// background goroutines.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.chat.Close()
		s.files.Close()
		close(s.done)
		s.wg.Wait()
		close(s.changes)
	})
}

// forward merges controller and tracker notifications. Tracker changes
// can move the session between StateEmpty and StateIdle, so they are
// reconciled into the controller first.
func (s *Session) forward() {
	defer s.wg.Done()
	chatCh := s.chat.Changes()
	filesCh := s.files.Changes()
	for chatCh != nil || filesCh != nil {
		select {
		case <-s.done:
			return
		case _, ok := <-chatCh:
			if !ok {
				chatCh = nil
				continue
			}
		case _, ok := <-filesCh:
			if !ok {
				filesCh = nil
				continue
			}
			s.chat.Reconcile()
		}
		select {
		case s.changes <- struct{}{}:
		default:
		}
	}
}
