package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/hoard/internal/utils"
)

func TestPauseResumeIdempotent(t *testing.T) {
	s := New(context.Background())
	s.Pause()
	s.Pause()
	assert.True(t, s.Paused())
	s.Resume()
	s.Resume()
	assert.False(t, s.Paused())
	assert.NoError(t, s.CheckStopped())
}

func TestStopCancelsTrackedRequests(t *testing.T) {
	s := New(context.Background())
	ctx1, release1 := s.Track(s.Context())
	ctx2, _ := s.Track(s.Context())
	defer release1()
	require.Equal(t, 2, s.Active())

	s.Stop()
	s.Stop()

	assert.ErrorIs(t, ctx1.Err(), context.Canceled)
	assert.ErrorIs(t, ctx2.Err(), context.Canceled)
	assert.Equal(t, 0, s.Active())
	assert.ErrorIs(t, s.CheckStopped(), utils.ErrStopped)

	ctx3, _ := s.Track(s.Context())
	assert.Error(t, ctx3.Err(), "tracking after stop yields a dead context")
}

func TestReleaseUnregisters(t *testing.T) {
	s := New(context.Background())
	_, release := s.Track(s.Context())
	release()
	assert.Equal(t, 0, s.Active())
}

func TestWaitIfPausedBlocksUntilResume(t *testing.T) {
	s := New(context.Background())
	s.PollInterval = time.Millisecond
	s.Pause()

	done := make(chan error, 1)
	go func() { done <- s.WaitIfPaused(context.Background()) }()

	select {
	case <-done:
		t.Fatal("wait returned while paused")
	case <-time.After(20 * time.Millisecond):
	}
	s.Resume()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not return after resume")
	}
}

func TestWaitIfPausedEndsOnStop(t *testing.T) {
	s := New(context.Background())
	s.PollInterval = time.Millisecond
	s.Pause()

	done := make(chan error, 1)
	go func() { done <- s.WaitIfPaused(context.Background()) }()
	s.Stop()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, utils.ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("wait did not observe stop")
	}
}

func TestResetClearsStop(t *testing.T) {
	s := New(context.Background())
	s.Stop()
	s.Reset()
	assert.False(t, s.Stopped())
	assert.NoError(t, s.Context().Err())
	assert.NoError(t, s.Checkpoint(s.Context()))
}
