package fetchers

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/hoard/internal/session"
	"github.com/tanq16/hoard/internal/utils"
)

// Retrier runs one unit of work against one source with a bounded number of
// attempts. Failed attempt k waits BaseDelay * 2^(k-1) before attempt k+1.
type Retrier struct {
	Attempts  uint
	BaseDelay time.Duration
	Session   *session.Session
}

func NewRetrier(sess *session.Session, attempts int, baseDelay time.Duration) *Retrier {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrier{Attempts: uint(attempts), BaseDelay: baseDelay, Session: sess}
}

// Run returns nil, utils.ErrStopped, or a *utils.ChunkFailedError carrying
// the last attempt's error.
func (r *Retrier) Run(ctx context.Context, chunkID int, source string, attempt func(ctx context.Context) error) error {
	err := retry.Do(
		func() error {
			if err := r.Session.Checkpoint(ctx); err != nil {
				return err
			}
			reqCtx, release := r.Session.Track(ctx)
			defer release()
			err := attempt(reqCtx)
			if err != nil && r.stopped(ctx) {
				return utils.ErrStopped
			}
			return err
		},
		retry.Attempts(r.Attempts),
		retry.Delay(r.BaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !utils.IsStopped(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Str("op", "fetchers/retry").Err(err).Int("chunk", chunkID).Str("source", source).
				Uint("attempt", n+1).Uint("maxAttempts", r.Attempts).Msg("Attempt failed, retrying")
		}),
	)
	if err == nil {
		return nil
	}
	if utils.IsStopped(err) || r.stopped(ctx) {
		return utils.ErrStopped
	}
	return &utils.ChunkFailedError{ChunkID: chunkID, Source: source, Err: err}
}

func (r *Retrier) stopped(ctx context.Context) bool {
	return r.Session.Stopped() || ctx.Err() != nil
}
