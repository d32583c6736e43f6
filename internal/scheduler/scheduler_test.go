package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/hoard/internal/plan"
	"github.com/tanq16/hoard/internal/session"
	"github.com/tanq16/hoard/internal/utils"
)

// fakeFetcher records which chunks it served and fails the ones listed.
type fakeFetcher struct {
	name   string
	fail   func(id int) bool
	onCall func(id int)

	mu    sync.Mutex
	calls []int
}

func (f *fakeFetcher) Name() string { return f.name }

func (f *fakeFetcher) Fetch(ctx context.Context, chunk utils.Chunk) (utils.FetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, chunk.ID)
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(chunk.ID)
	}
	if ctx.Err() != nil {
		return utils.FetchResult{}, utils.ErrStopped
	}
	if f.fail != nil && f.fail(chunk.ID) {
		return utils.FetchResult{}, &utils.ChunkFailedError{ChunkID: chunk.ID, Source: f.name, Err: errors.New("boom")}
	}
	return utils.FetchResult{ChunkID: chunk.ID, Bytes: chunk.Size(), Provider: f.name + "-provider"}, nil
}

func (f *fakeFetcher) served() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

func newPlan(t *testing.T, chunks int) *plan.Plan {
	job := utils.TransferJob{FileKey: "game.zip", TotalSize: int64(chunks) * 10, ExpectedHash: "h", TempDir: t.TempDir()}
	p := plan.New(job, 10)
	_, err := p.Load()
	require.NoError(t, err)
	return p
}

func TestSelectMode(t *testing.T) {
	assert.Equal(t, utils.ModeDirectOnly, SelectMode(0, 3))
	assert.Equal(t, utils.ModeHybrid, SelectMode(1, 3))
	assert.Equal(t, utils.ModeHybrid, SelectMode(3, 3))
	assert.Equal(t, utils.ModeDistributedOnly, SelectMode(4, 3))
}

func TestHybridAssignsByParity(t *testing.T) {
	p := newPlan(t, 4)
	dist := &fakeFetcher{name: "distributed"}
	direct := &fakeFetcher{name: "direct"}
	var progress []int
	s := &Scheduler{
		Plan: p, Distributed: dist, Direct: direct, DirectAvailable: true,
		Mode: utils.ModeHybrid, Parallel: 4, MaxConsecutiveErrors: 5,
		Session: session.New(context.Background()),
		OnChunk: func(done, total int) { progress = append(progress, done) },
	}
	require.NoError(t, s.Run(context.Background()))
	assert.True(t, p.IsComplete())
	assert.ElementsMatch(t, []int{0, 2}, direct.served())
	assert.ElementsMatch(t, []int{1, 3}, dist.served())
	assert.Equal(t, []int{1, 2, 3, 4}, progress)
	assert.ElementsMatch(t, []string{"direct-provider", "distributed-provider"}, s.ServersUsed())
}

func TestHybridFallsBackToOtherSource(t *testing.T) {
	p := newPlan(t, 2)
	dist := &fakeFetcher{name: "distributed", fail: func(int) bool { return true }}
	direct := &fakeFetcher{name: "direct"}
	s := &Scheduler{
		Plan: p, Distributed: dist, Direct: direct, DirectAvailable: true,
		Mode: utils.ModeHybrid, Parallel: 2, MaxConsecutiveErrors: 5,
		Session: session.New(context.Background()),
	}
	require.NoError(t, s.Run(context.Background()))
	assert.True(t, p.IsComplete())
	assert.ElementsMatch(t, []int{0, 1}, direct.served())
	assert.Equal(t, []int{1}, dist.served())
}

func TestHybridWithoutDirectUsesDistributed(t *testing.T) {
	p := newPlan(t, 3)
	dist := &fakeFetcher{name: "distributed"}
	direct := &fakeFetcher{name: "direct"}
	s := &Scheduler{
		Plan: p, Distributed: dist, Direct: direct, DirectAvailable: false,
		Mode: utils.ModeHybrid, Parallel: 5, Session: session.New(context.Background()),
	}
	require.NoError(t, s.Run(context.Background()))
	assert.Empty(t, direct.served())
	assert.Len(t, dist.served(), 3)
}

func TestDistributedOnlyFallsBackWhenDirectProbed(t *testing.T) {
	p := newPlan(t, 3)
	dist := &fakeFetcher{name: "distributed", fail: func(id int) bool { return id == 1 }}
	direct := &fakeFetcher{name: "direct"}
	s := &Scheduler{
		Plan: p, Distributed: dist, Direct: direct, DirectAvailable: true,
		Mode: utils.ModeDistributedOnly, Parallel: 5, Session: session.New(context.Background()),
	}
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []int{1}, direct.served())
}

func TestCircuitBreakerTrips(t *testing.T) {
	p := newPlan(t, 6)
	dist := &fakeFetcher{name: "distributed", fail: func(int) bool { return true }}
	s := &Scheduler{
		Plan: p, Distributed: dist, Mode: utils.ModeDistributedOnly,
		Parallel: 5, MaxConsecutiveErrors: 5, Session: session.New(context.Background()),
	}
	err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	done, total := p.Counts()
	assert.Equal(t, 0, done)
	assert.Equal(t, 6, total)
}

func TestSuccessResetsFailureCounter(t *testing.T) {
	p := newPlan(t, 8)
	failed := map[int]bool{}
	var mu sync.Mutex
	// every chunk fails once, then succeeds; chunk 0 always succeeds
	dist := &fakeFetcher{name: "distributed", fail: func(id int) bool {
		mu.Lock()
		defer mu.Unlock()
		if id == 0 || failed[id] {
			return false
		}
		failed[id] = true
		return true
	}}
	s := &Scheduler{
		Plan: p, Distributed: dist, Mode: utils.ModeDistributedOnly,
		Parallel: 4, MaxConsecutiveErrors: 5, Session: session.New(context.Background()),
	}
	require.NoError(t, s.Run(context.Background()))
	assert.True(t, p.IsComplete())
}

func TestStopMidBatch(t *testing.T) {
	p := newPlan(t, 10)
	sess := session.New(context.Background())
	dist := &fakeFetcher{name: "distributed", onCall: func(id int) {
		if id == 6 {
			sess.Stop()
		}
	}}
	s := &Scheduler{
		Plan: p, Distributed: dist, Mode: utils.ModeDistributedOnly,
		Parallel: 5, Session: sess,
	}
	err := s.Run(sess.Context())
	assert.ErrorIs(t, err, utils.ErrStopped)
	done, _ := p.Counts()
	assert.GreaterOrEqual(t, done, 5)
	assert.Less(t, done, 10)
}

func TestEmptyPlanCompletesImmediately(t *testing.T) {
	p := newPlan(t, 0)
	dist := &fakeFetcher{name: "distributed"}
	s := &Scheduler{Plan: p, Distributed: dist, Session: session.New(context.Background())}
	require.NoError(t, s.Run(context.Background()))
	assert.Empty(t, dist.served())
}
