// Package session holds the per-job pause/stop switch and the registry of
// in-flight requests that a stop must abort.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/hoard/internal/utils"
)

type Session struct {
	ID           string
	PollInterval time.Duration

	mu      sync.Mutex
	paused  bool
	stopped bool
	nextID  uint64
	active  map[uint64]context.CancelFunc
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(parent context.Context) *Session {
	if parent == nil {
		parent = context.Background()
	}
	s := &Session{
		ID:           uuid.NewString(),
		PollInterval: utils.DefaultPollInterval,
		parent:       parent,
	}
	s.Reset()
	return s
}

// Reset clears pause/stop state and starts a fresh cancellation scope.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.paused = false
	s.stopped = false
	s.active = make(map[uint64]context.CancelFunc)
	s.ctx, s.cancel = context.WithCancel(s.parent)
}

func (s *Session) Context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.paused {
		return
	}
	s.paused = true
	log.Info().Str("op", "session").Str("session", s.ID).Msg("Transfer paused")
}

func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false
	log.Info().Str("op", "session").Str("session", s.ID).Msg("Transfer resumed")
}

// Stop is terminal for the job: every tracked request is aborted.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.paused = false
	for id, cancel := range s.active {
		cancel()
		delete(s.active, id)
	}
	s.cancel()
	log.Info().Str("op", "session").Str("session", s.ID).Msg("Transfer stopped")
}

func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Active returns the number of registered in-flight requests.
func (s *Session) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Track derives a cancelable context for one in-flight request. The returned
// release func must be called once the request finishes.
func (s *Session) Track(ctx context.Context) (context.Context, func()) {
	reqCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		cancel()
		return reqCtx, func() {}
	}
	id := s.nextID
	s.nextID++
	s.active[id] = cancel
	s.mu.Unlock()
	return reqCtx, func() {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
		cancel()
	}
}

func (s *Session) CheckStopped() error {
	if s.Stopped() {
		return utils.ErrStopped
	}
	return nil
}

// WaitIfPaused blocks while the session is paused. A stop or a cancelled ctx
// ends the wait with utils.ErrStopped.
func (s *Session) WaitIfPaused(ctx context.Context) error {
	if !s.Paused() {
		return s.CheckStopped()
	}
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()
	for s.Paused() && !s.Stopped() {
		select {
		case <-ctx.Done():
			return utils.ErrStopped
		case <-ticker.C:
		}
	}
	return s.CheckStopped()
}

// Checkpoint is the combined check run before every unit of work.
func (s *Session) Checkpoint(ctx context.Context) error {
	if err := s.WaitIfPaused(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return utils.ErrStopped
	}
	return nil
}
