// Package engine runs one archive transfer end to end: resolve, plan, fetch,
// merge and verify, with direct streaming as the last resort.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/hoard/internal/fetchers"
	"github.com/tanq16/hoard/internal/merger"
	"github.com/tanq16/hoard/internal/plan"
	"github.com/tanq16/hoard/internal/progress"
	"github.com/tanq16/hoard/internal/resolver"
	"github.com/tanq16/hoard/internal/scheduler"
	"github.com/tanq16/hoard/internal/session"
	"github.com/tanq16/hoard/internal/utils"
)

type Options struct {
	BalancerURL          string
	BalancerToken        string
	ChunkSize            int64
	ParallelChunks       int
	MaxConsecutiveErrors int
	LowProviderThreshold int
	FetchWeight          float64
	PollInterval         time.Duration
	MaxAttempts          int
	BaseDelay            time.Duration
	ResolveTimeout       time.Duration
	ResolveRetries       int
	HTTP                 utils.HTTPClientConfig
	S3                   fetchers.S3Options
}

// DefaultOptions mirrors the built-in configuration defaults.
func DefaultOptions() Options {
	return Options{
		ChunkSize:            utils.DefaultChunkSize,
		ParallelChunks:       utils.DefaultParallelChunks,
		MaxConsecutiveErrors: utils.DefaultMaxConsecutiveErrors,
		LowProviderThreshold: utils.DefaultLowProviderThreshold,
		FetchWeight:          utils.DefaultFetchWeight,
		PollInterval:         utils.DefaultPollInterval,
		MaxAttempts:          utils.DefaultMaxAttempts,
		BaseDelay:            utils.DefaultBaseDelay,
		ResolveTimeout:       utils.DefaultResolveTimeout,
		HTTP:                 utils.HTTPClientConfig{Timeout: utils.DefaultRequestTimeout, KATimeout: utils.DefaultKATimeout},
	}
}

type Option func(*Engine)

// WithResolver replaces the balancer client.
func WithResolver(r resolver.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

type Request struct {
	FileKey    string
	OutputPath string
	// TempDir defaults to a hidden directory next to the output.
	TempDir string
	// OriginBase is the direct origin; empty disables every direct path.
	OriginBase string
}

type Engine struct {
	opts         Options
	resolver     resolver.Resolver
	rangeClient  *utils.HoardHTTPClient
	streamClient *utils.HoardHTTPClient

	mu      sync.Mutex
	current *session.Session
	phase   utils.Phase
}

func New(opts Options, options ...Option) *Engine {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = utils.DefaultChunkSize
	}
	if opts.ParallelChunks <= 0 {
		opts.ParallelChunks = utils.DefaultParallelChunks
	}
	if opts.LowProviderThreshold <= 0 {
		opts.LowProviderThreshold = utils.DefaultLowProviderThreshold
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = utils.DefaultPollInterval
	}
	e := &Engine{
		opts:         opts,
		rangeClient:  utils.NewHoardHTTPClient(opts.HTTP),
		streamClient: utils.NewHoardStreamClient(opts.HTTP),
	}
	for _, o := range options {
		o(e)
	}
	if e.resolver == nil {
		e.resolver = resolver.NewBalancer(resolver.Options{
			BaseURL:  opts.BalancerURL,
			Token:    opts.BalancerToken,
			Timeout:  opts.ResolveTimeout,
			RetryMax: opts.ResolveRetries,
			HTTP:     opts.HTTP,
		})
	}
	return e
}

func (e *Engine) Pause() {
	if s := e.session(); s != nil {
		s.Pause()
	}
}

func (e *Engine) Resume() {
	if s := e.session(); s != nil {
		s.Resume()
	}
}

// Cancel stops the running job. Chunks already persisted stay for a resume.
func (e *Engine) Cancel() {
	if s := e.session(); s != nil {
		s.Stop()
	}
}

func (e *Engine) Phase() utils.Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Engine) session() *session.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Engine) begin(ctx context.Context) *session.Session {
	sess := session.New(ctx)
	sess.PollInterval = e.opts.PollInterval
	e.mu.Lock()
	if e.current != nil {
		log.Warn().Str("op", "engine").Str("previous", e.current.ID).Str("session", sess.ID).
			Msg("Download started while another is active; controls now target the new one")
	}
	e.current = sess
	e.mu.Unlock()
	return sess
}

func (e *Engine) end(sess *session.Session) {
	e.mu.Lock()
	if e.current == sess {
		e.current = nil
	}
	e.mu.Unlock()
}

func (e *Engine) setPhase(sess *session.Session, phase utils.Phase) {
	e.mu.Lock()
	e.phase = phase
	e.mu.Unlock()
	log.Debug().Str("op", "engine").Str("session", sess.ID).Str("phase", string(phase)).Msg("Phase changed")
}

// job carries the per-download collaborators.
type job struct {
	req      Request
	sess     *session.Session
	reporter *progress.Reporter
	direct   *fetchers.DirectFetcher
	result   utils.Result
	start    time.Time
}

// Download transfers one file. A user stop is reported as Result.Stopped with
// a nil error; every other unsuccessful outcome returns an error.
func (e *Engine) Download(ctx context.Context, req Request, sink func(float64)) (utils.Result, error) {
	if req.FileKey == "" || req.OutputPath == "" {
		return utils.Result{}, errors.New("file key and output path are required")
	}
	if req.TempDir == "" {
		req.TempDir = utils.DefaultTempDir(req.OutputPath)
	}
	sess := e.begin(ctx)
	defer e.end(sess)
	ctx = sess.Context()

	j := &job{
		req:      req,
		sess:     sess,
		reporter: progress.New(sink, e.opts.FetchWeight),
		start:    time.Now(),
	}
	retrier := fetchers.NewRetrier(sess, e.opts.MaxAttempts, e.opts.BaseDelay)
	j.direct = &fetchers.DirectFetcher{Retrier: retrier, Session: sess}
	origin, err := fetchers.NewOrigin(ctx, req.OriginBase, req.FileKey, e.rangeClient, e.streamClient, e.opts.S3)
	switch {
	case err == nil:
		j.direct.Origin = origin
	case !errors.Is(err, fetchers.ErrNoOrigin):
		log.Warn().Str("op", "engine").Err(err).Msg("Direct origin unusable")
	}

	e.setPhase(sess, utils.PhasePlanning)
	log.Info().Str("op", "engine").Str("session", sess.ID).Str("file", req.FileKey).Msg("Starting download")
	res, err := e.resolver.Resolve(ctx, req.FileKey)
	if err != nil {
		if sess.Stopped() {
			return e.stopped(j)
		}
		log.Warn().Str("op", "engine").Err(err).Msg("Balancer unavailable, trying direct origin")
		j.result.Mode = utils.ModeDirectOnly
		return e.stream(ctx, j, err)
	}
	info := res.FileInfo
	j.result.Mode = scheduler.SelectMode(info.ProviderCount, e.opts.LowProviderThreshold)
	log.Info().Str("op", "engine").Str("session", sess.ID).Str("mode", string(j.result.Mode)).
		Int("providers", info.ProviderCount).Str("size", utils.FormatBytes(info.Size)).Msg("Transfer mode selected")
	if j.result.Mode == utils.ModeDirectOnly {
		return e.stream(ctx, j, nil)
	}

	p := plan.New(utils.TransferJob{
		FileKey:      req.FileKey,
		TotalSize:    info.Size,
		ExpectedHash: info.ExpectedHash,
		TempDir:      req.TempDir,
		OutputPath:   req.OutputPath,
	}, e.opts.ChunkSize)
	resumed, err := p.Load()
	if err != nil {
		return e.fail(j, fmt.Errorf("error loading transfer plan: %w", err))
	}
	if resumed {
		j.result.Resumed, _ = p.Counts()
	}

	directAvailable := false
	if j.direct.Origin != nil {
		if err := j.direct.Probe(ctx); err != nil {
			log.Warn().Str("op", "engine").Err(err).Str("origin", j.direct.Origin.Describe()).Msg("Direct origin not reachable")
		} else {
			directAvailable = true
		}
	}
	if sess.Stopped() {
		return e.stopped(j)
	}

	e.setPhase(sess, utils.PhaseFetching)
	sched := &scheduler.Scheduler{
		Plan: p,
		Distributed: &fetchers.ChunkFetcher{
			FileKey:  req.FileKey,
			Resolver: e.resolver,
			Client:   e.rangeClient,
			Retrier:  retrier,
		},
		DirectAvailable:      directAvailable,
		Mode:                 j.result.Mode,
		Parallel:             e.opts.ParallelChunks,
		MaxConsecutiveErrors: e.opts.MaxConsecutiveErrors,
		Session:              sess,
		OnChunk:              j.reporter.Fetch,
	}
	if directAvailable {
		sched.Direct = j.direct
	}
	j.reporter.Fetch(p.Counts())
	err = sched.Run(ctx)
	j.result.ServersUsed = sched.ServersUsed()
	switch {
	case utils.IsStopped(err):
		return e.stopped(j)
	case errors.Is(err, scheduler.ErrCircuitOpen):
		log.Warn().Str("op", "engine").Str("session", sess.ID).Msg("Switching to direct download")
		j.result.Mode = utils.ModeDirectOnly
		return e.stream(ctx, j, err)
	case err != nil:
		return e.fail(j, err)
	}

	e.setPhase(sess, utils.PhaseMerging)
	verified, err := merger.MergeAndVerify(ctx, sess, p.Chunks(), req.OutputPath, info.ExpectedHash, j.reporter.Merge)
	if err != nil {
		if utils.IsStopped(err) {
			return e.stopped(j)
		}
		var integrityErr *utils.IntegrityError
		if errors.As(err, &integrityErr) {
			e.setPhase(sess, utils.PhaseVerifying)
			e.discard(p)
		}
		return e.fail(j, err)
	}
	e.setPhase(sess, utils.PhaseVerifying)
	e.discard(p)
	j.result.Verified = verified
	j.result.Bytes = info.Size
	return e.done(j)
}

// stream is the single unranged GET against the origin. cause is the failure
// that led here, if any, and is kept when the stream fails as well.
func (e *Engine) stream(ctx context.Context, j *job, cause error) (utils.Result, error) {
	if j.direct.Origin == nil {
		if cause == nil {
			cause = errors.New("file has no providers")
		}
		return e.fail(j, errors.Join(cause, fetchers.ErrNoOrigin))
	}
	e.setPhase(j.sess, utils.PhaseFetching)
	j.reporter.StartStream()
	n, err := j.direct.Stream(ctx, j.req.OutputPath, j.reporter.Stream)
	if err != nil {
		if utils.IsStopped(err) {
			return e.stopped(j)
		}
		return e.fail(j, errors.Join(cause, err))
	}
	j.result.Verified = false
	j.result.Bytes = n
	j.result.ServersUsed = append(j.result.ServersUsed, j.direct.Origin.Describe())
	return e.done(j)
}

func (e *Engine) discard(p *plan.Plan) {
	if err := p.Discard(); err != nil {
		log.Warn().Str("op", "engine").Err(err).Msg("Error cleaning temp files")
	}
	utils.CleanTempDir(p.Job().TempDir)
}

func (e *Engine) done(j *job) (utils.Result, error) {
	e.setPhase(j.sess, utils.PhaseDone)
	j.reporter.Done()
	j.result.Success = true
	j.result.Duration = time.Since(j.start)
	log.Info().Str("op", "engine").Str("session", j.sess.ID).Bool("verified", j.result.Verified).
		Str("size", utils.FormatBytes(j.result.Bytes)).Str("elapsed", j.result.Duration.Round(time.Millisecond).String()).
		Msg("Download completed")
	return j.result, nil
}

func (e *Engine) stopped(j *job) (utils.Result, error) {
	e.setPhase(j.sess, utils.PhaseStopped)
	j.result.Stopped = true
	j.result.Duration = time.Since(j.start)
	return j.result, nil
}

func (e *Engine) fail(j *job, err error) (utils.Result, error) {
	e.setPhase(j.sess, utils.PhaseFailed)
	j.result.Duration = time.Since(j.start)
	log.Error().Str("op", "engine").Str("session", j.sess.ID).Err(err).Msg("Download failed")
	return j.result, err
}
