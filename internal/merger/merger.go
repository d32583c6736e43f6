// Package merger concatenates chunk files into the final output while hashing
// the stream, then checks the digest against the expected hash.
package merger

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/hoard/internal/session"
	"github.com/tanq16/hoard/internal/utils"
)

// MergeAndVerify writes chunks in ascending id order to outputPath. It
// reports verified=false when there is no expected hash to compare against.
// On a digest mismatch the output is removed and *utils.IntegrityError is
// returned.
func MergeAndVerify(ctx context.Context, sess *session.Session, chunks []utils.Chunk, outputPath, expectedHash string, onChunk func(done, total int)) (bool, error) {
	ordered := slices.Clone(chunks)
	slices.SortFunc(ordered, func(a, b utils.Chunk) int { return a.ID - b.ID })

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return false, fmt.Errorf("error creating output directory: %w", err)
	}
	out, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return false, fmt.Errorf("error creating output file: %w", err)
	}
	hasher := sha256.New()
	buffered := bufio.NewWriterSize(out, utils.DefaultBufferSize)
	writer := io.MultiWriter(buffered, hasher)

	err = func() error {
		for i, chunk := range ordered {
			if err := sess.Checkpoint(ctx); err != nil {
				return err
			}
			if err := appendChunk(writer, chunk); err != nil {
				return err
			}
			if onChunk != nil {
				onChunk(i+1, len(ordered))
			}
		}
		return buffered.Flush()
	}()
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(outputPath)
		return false, err
	}

	actual := hex.EncodeToString(hasher.Sum(nil))
	if expectedHash == "" {
		log.Warn().Str("op", "merger").Str("output", outputPath).Msg("No expected hash, output not verified")
		return false, nil
	}
	if !strings.EqualFold(actual, expectedHash) {
		os.Remove(outputPath)
		return false, &utils.IntegrityError{Expected: expectedHash, Actual: actual}
	}
	log.Debug().Str("op", "merger").Str("output", outputPath).Str("sha256", actual).Msg("Integrity verified")
	return true, nil
}

func appendChunk(dst io.Writer, chunk utils.Chunk) error {
	in, err := os.Open(chunk.TempPath)
	if err != nil {
		return fmt.Errorf("error opening chunk %d: %w", chunk.ID, err)
	}
	defer in.Close()
	n, err := io.Copy(dst, in)
	if err != nil {
		return fmt.Errorf("error copying chunk %d: %w", chunk.ID, err)
	}
	if n != chunk.Size() {
		return fmt.Errorf("chunk %d has %d bytes, expected %d", chunk.ID, n, chunk.Size())
	}
	return nil
}
