package fetchers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/hoard/internal/session"
	"github.com/tanq16/hoard/internal/utils"
)

var ErrNoOrigin = errors.New("no direct origin configured")

// DirectFetcher talks to the fixed origin, bypassing the balancer. It serves
// single chunks and, as the last resort, the whole file in one stream.
type DirectFetcher struct {
	Origin  Origin
	Retrier *Retrier
	Session *session.Session
}

func (f *DirectFetcher) Name() string {
	return utils.SourceDirect
}

// Probe checks once whether the origin answers at all.
func (f *DirectFetcher) Probe(ctx context.Context) error {
	if f.Origin == nil {
		return ErrNoOrigin
	}
	reqCtx, release := f.Session.Track(ctx)
	defer release()
	return f.Origin.Probe(reqCtx)
}

func (f *DirectFetcher) Fetch(ctx context.Context, chunk utils.Chunk) (utils.FetchResult, error) {
	if f.Origin == nil {
		return utils.FetchResult{}, &utils.ChunkFailedError{ChunkID: chunk.ID, Source: f.Name(), Err: ErrNoOrigin}
	}
	var written int64
	err := f.Retrier.Run(ctx, chunk.ID, f.Name(), func(ctx context.Context) error {
		body, positioned, err := f.Origin.OpenRange(ctx, chunk)
		if err != nil {
			return err
		}
		defer body.Close()
		written, err = writeChunk(ctx, body, positioned, chunk)
		return err
	})
	if err != nil {
		return utils.FetchResult{}, err
	}
	log.Debug().Str("op", "fetchers/direct").Int("chunk", chunk.ID).Int64("bytes", written).Msg("Chunk fetched from origin")
	return utils.FetchResult{ChunkID: chunk.ID, Bytes: written, Provider: f.Origin.Describe()}, nil
}

// Stream downloads the whole file with one unranged GET into
// <outputPath>.part and renames it into place. Nothing is verified here.
func (f *DirectFetcher) Stream(ctx context.Context, outputPath string, onBytes func(done, total int64)) (int64, error) {
	if f.Origin == nil {
		return 0, ErrNoOrigin
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return 0, fmt.Errorf("error creating output directory: %w", err)
	}
	partPath := outputPath + ".part"
	var written int64
	err := f.Retrier.Run(ctx, -1, f.Name(), func(ctx context.Context) error {
		body, size, err := f.Origin.Open(ctx)
		if err != nil {
			return err
		}
		defer body.Close()
		out, err := os.OpenFile(partPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("error creating output file: %w", err)
		}
		written, err = f.streamBody(ctx, out, body, size, onBytes)
		if err == nil {
			err = out.Sync()
		}
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
		if err == nil && size >= 0 && written != size {
			err = fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return err
	})
	if err != nil {
		if utils.IsStopped(err) {
			return written, err
		}
		os.Remove(partPath)
		var chunkErr *utils.ChunkFailedError
		if errors.As(err, &chunkErr) {
			err = chunkErr.Err
		}
		return written, fmt.Errorf("direct stream from %s failed: %w", f.Origin.Describe(), err)
	}
	if err := os.Rename(partPath, outputPath); err != nil {
		return written, fmt.Errorf("error renaming (finalizing) output file: %w", err)
	}
	log.Info().Str("op", "fetchers/direct").Str("origin", f.Origin.Describe()).Str("size", utils.FormatBytes(written)).Msg("Direct stream completed")
	return written, nil
}

// streamBody copies the response and honours pause and stop between buffers.
func (f *DirectFetcher) streamBody(ctx context.Context, dst io.Writer, src io.Reader, size int64, onBytes func(done, total int64)) (int64, error) {
	buffer := make([]byte, utils.DefaultBufferSize)
	var written int64
	for {
		if err := f.Session.Checkpoint(ctx); err != nil {
			return written, err
		}
		n, readErr := src.Read(buffer)
		if n > 0 {
			if _, err := dst.Write(buffer[:n]); err != nil {
				return written, fmt.Errorf("error writing to output file: %w", err)
			}
			written += int64(n)
			if onBytes != nil {
				onBytes(written, size)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			return written, fmt.Errorf("error reading response body: %w", readErr)
		}
	}
}
