// Package scheduler decides which source serves each chunk and drives the
// plan to completion in bounded parallel batches.
package scheduler

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/hoard/internal/fetchers"
	"github.com/tanq16/hoard/internal/plan"
	"github.com/tanq16/hoard/internal/session"
	"github.com/tanq16/hoard/internal/utils"
	"golang.org/x/sync/errgroup"
)

var (
	ErrCircuitOpen = errors.New("too many consecutive chunk failures")
	ErrIncomplete  = errors.New("could not fetch all chunks")
)

// SelectMode classifies a job by how many distributed providers hold the file.
func SelectMode(providerCount, lowThreshold int) utils.Mode {
	switch {
	case providerCount <= 0:
		return utils.ModeDirectOnly
	case providerCount <= lowThreshold:
		return utils.ModeHybrid
	default:
		return utils.ModeDistributedOnly
	}
}

type Scheduler struct {
	Plan        *plan.Plan
	Distributed fetchers.Fetcher
	Direct      fetchers.Fetcher
	// DirectAvailable is the outcome of the single probe made at job start.
	DirectAvailable      bool
	Mode                 utils.Mode
	Parallel             int
	MaxConsecutiveErrors int
	Session              *session.Session
	// OnChunk runs after every persisted chunk, in completion order.
	OnChunk func(done, total int)

	mu          sync.Mutex
	consecutive int
	servers     []string
}

// Run fetches batches until the plan is complete. It returns nil,
// utils.ErrStopped, ErrCircuitOpen, ErrIncomplete or a persistence error.
func (s *Scheduler) Run(ctx context.Context) error {
	parallel := max(s.Parallel, 1)
	maxErrors := s.MaxConsecutiveErrors
	if maxErrors < 1 {
		maxErrors = utils.DefaultMaxConsecutiveErrors
	}
	for {
		if err := s.Session.Checkpoint(ctx); err != nil {
			return err
		}
		batch := s.Plan.NextPending(parallel)
		if len(batch) == 0 {
			if s.Plan.IsComplete() {
				return nil
			}
			return ErrIncomplete
		}
		if err := s.runBatch(ctx, batch); err != nil {
			return err
		}
		s.mu.Lock()
		tripped := s.consecutive >= maxErrors
		count := s.consecutive
		s.mu.Unlock()
		if tripped {
			log.Warn().Str("op", "scheduler").Str("session", s.Session.ID).Int("failures", count).Msg("Circuit breaker opened")
			return ErrCircuitOpen
		}
	}
}

func (s *Scheduler) runBatch(ctx context.Context, batch []utils.Chunk) error {
	var g errgroup.Group
	g.SetLimit(len(batch))
	for pos, chunk := range batch {
		g.Go(func() error {
			res, err := s.fetch(ctx, pos, chunk)
			if err != nil {
				if utils.IsStopped(err) {
					return err
				}
				s.mu.Lock()
				s.consecutive++
				s.mu.Unlock()
				log.Error().Str("op", "scheduler").Err(err).Int("chunk", chunk.ID).Msg("Chunk failed on every source")
				return nil
			}
			return s.complete(res)
		})
	}
	err := g.Wait()
	if err == nil && s.Session.Stopped() {
		return utils.ErrStopped
	}
	return err
}

// fetch applies the mode's source assignment with at most one fallback.
func (s *Scheduler) fetch(ctx context.Context, pos int, chunk utils.Chunk) (utils.FetchResult, error) {
	primary, fallback := s.sources(pos)
	res, err := primary.Fetch(ctx, chunk)
	if err == nil || utils.IsStopped(err) || fallback == nil {
		return res, err
	}
	log.Warn().Str("op", "scheduler").Int("chunk", chunk.ID).Str("from", primary.Name()).Str("to", fallback.Name()).Msg("Falling back to the other source")
	return fallback.Fetch(ctx, chunk)
}

func (s *Scheduler) sources(pos int) (fetchers.Fetcher, fetchers.Fetcher) {
	direct := s.Direct
	if !s.DirectAvailable {
		direct = nil
	}
	switch {
	case direct == nil:
		return s.Distributed, nil
	case s.Mode == utils.ModeHybrid && pos%2 == 0:
		return direct, s.Distributed
	default:
		return s.Distributed, direct
	}
}

func (s *Scheduler) complete(res utils.FetchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Plan.MarkComplete(res.ChunkID); err != nil {
		return err
	}
	s.consecutive = 0
	if res.Provider != "" && !slices.Contains(s.servers, res.Provider) {
		s.servers = append(s.servers, res.Provider)
	}
	if s.OnChunk != nil {
		done, total := s.Plan.Counts()
		s.OnChunk(done, total)
	}
	return nil
}

// ServersUsed lists every provider that delivered at least one chunk.
func (s *Scheduler) ServersUsed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.servers)
}
