package fetchers

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/hoard/internal/resolver"
	"github.com/tanq16/hoard/internal/utils"
)

// ChunkFetcher takes chunks from the distributed providers. Every attempt asks
// the balancer for a fresh URL, so a retry can land on a different provider.
type ChunkFetcher struct {
	FileKey  string
	Resolver resolver.Resolver
	Client   utils.HTTPDoer
	Retrier  *Retrier
}

func (f *ChunkFetcher) Name() string {
	return utils.SourceDistributed
}

func (f *ChunkFetcher) Fetch(ctx context.Context, chunk utils.Chunk) (utils.FetchResult, error) {
	var result utils.FetchResult
	err := f.Retrier.Run(ctx, chunk.ID, f.Name(), func(ctx context.Context) error {
		res, err := f.Resolver.Resolve(ctx, f.FileKey)
		if err != nil {
			return err
		}
		if res.DownloadURL == "" {
			return errors.New("balancer returned no download URL")
		}
		body, positioned, err := getRange(ctx, f.Client, res.DownloadURL, chunk)
		if err != nil {
			return err
		}
		defer body.Close()
		n, err := writeChunk(ctx, body, positioned, chunk)
		if err != nil {
			return err
		}
		result = utils.FetchResult{ChunkID: chunk.ID, Bytes: n, Provider: res.ProviderID}
		return nil
	})
	if err != nil {
		return utils.FetchResult{}, err
	}
	log.Debug().Str("op", "fetchers/chunk").Int("chunk", chunk.ID).Str("server", result.Provider).Int64("bytes", result.Bytes).Msg("Chunk download completed")
	return result, nil
}
