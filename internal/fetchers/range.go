package fetchers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/tanq16/hoard/internal/utils"
)

// Fetcher pulls one chunk from one kind of source into its temp file.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, chunk utils.Chunk) (utils.FetchResult, error)
}

// getRange issues a ranged GET. The returned flag tells whether the body
// already starts at chunk.Start (206 or a 200 carrying Content-Range).
func getRange(ctx context.Context, client utils.HTTPDoer, url string, chunk utils.Chunk) (io.ReadCloser, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("error creating range request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", chunk.Start, chunk.End))
	resp, err := client.Do(req)
	if err != nil {
		return nil, false, err
	}
	switch resp.StatusCode {
	case http.StatusPartialContent, http.StatusOK:
	default:
		resp.Body.Close()
		return nil, false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	contentRange := resp.Header.Get("Content-Range")
	if contentRange == "" {
		if resp.StatusCode == http.StatusPartialContent {
			resp.Body.Close()
			return nil, false, errors.New("missing Content-Range header")
		}
		return resp.Body, false, nil
	}
	start, _, _, err := parseContentRange(contentRange)
	if err != nil {
		resp.Body.Close()
		return nil, false, err
	}
	if start != chunk.Start {
		resp.Body.Close()
		return nil, false, fmt.Errorf("server answered range at %d, wanted %d", start, chunk.Start)
	}
	return resp.Body, true, nil
}

// writeChunk stores exactly chunk.Size() bytes into the chunk temp file,
// replacing whatever a previous attempt left there.
func writeChunk(ctx context.Context, body io.Reader, positioned bool, chunk utils.Chunk) (int64, error) {
	if !positioned && chunk.Start > 0 {
		if _, err := io.CopyN(io.Discard, body, chunk.Start); err != nil {
			return 0, fmt.Errorf("error skipping to chunk start: %w", err)
		}
	}
	f, err := os.OpenFile(chunk.TempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("error opening temp file: %w", err)
	}
	n, err := copyN(ctx, f, body, chunk.Size())
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(chunk.TempPath)
		return n, err
	}
	return n, nil
}

// copyN copies exactly n bytes, aborting between buffers once ctx is done.
func copyN(ctx context.Context, dst io.Writer, src io.Reader, n int64) (int64, error) {
	buffer := make([]byte, min(int64(utils.DefaultBufferSize), max(n, 1)))
	var written int64
	for written < n {
		if ctx.Err() != nil {
			return written, utils.ErrStopped
		}
		want := min(int64(len(buffer)), n-written)
		read, err := io.ReadFull(src, buffer[:want])
		if read > 0 {
			if _, werr := dst.Write(buffer[:read]); werr != nil {
				return written, werr
			}
			written += int64(read)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return written, fmt.Errorf("size mismatch: expected %d bytes, got %d", n, written)
			}
			return written, err
		}
	}
	return written, nil
}

// parseContentRange parses "bytes start-end/total"; total is -1 when "*".
func parseContentRange(header string) (start, end, total int64, err error) {
	header = strings.TrimPrefix(header, "bytes ")
	parts := strings.Split(header, "/")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}
	rangeParts := strings.Split(parts[0], "-")
	if len(rangeParts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}
	if start, err = strconv.ParseInt(rangeParts[0], 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}
	if end, err = strconv.ParseInt(rangeParts[1], 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}
	if parts[1] == "*" {
		return start, end, -1, nil
	}
	if total, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
	}
	return start, end, total, nil
}
