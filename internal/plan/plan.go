// Package plan splits a file into fixed-size byte ranges and persists which
// of them are already on disk so an interrupted transfer can resume.
package plan

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/hoard/internal/utils"
)

type Plan struct {
	job       utils.TransferJob
	chunkSize int64
	stateFile string

	mu        sync.Mutex
	chunks    []utils.Chunk
	completed []int
}

func New(job utils.TransferJob, chunkSize int64) *Plan {
	if chunkSize <= 0 {
		chunkSize = utils.DefaultChunkSize
	}
	p := &Plan{
		job:       job,
		chunkSize: chunkSize,
		stateFile: utils.StateFileName(job.TempDir, job.FileKey),
	}
	p.chunks = Layout(job, chunkSize)
	return p
}

// Layout computes the chunk list for a job; it is a pure function of the
// total size and chunk size.
func Layout(job utils.TransferJob, chunkSize int64) []utils.Chunk {
	if job.TotalSize <= 0 {
		return nil
	}
	total := int((job.TotalSize + chunkSize - 1) / chunkSize)
	chunks := make([]utils.Chunk, 0, total)
	for i := range total {
		start := int64(i) * chunkSize
		end := min(start+chunkSize, job.TotalSize) - 1
		chunks = append(chunks, utils.Chunk{
			ID:       i,
			Start:    start,
			End:      end,
			TempPath: utils.ChunkFileName(job.TempDir, job.FileKey, i),
		})
	}
	return chunks
}

func (p *Plan) Job() utils.TransferJob {
	return p.job
}

func (p *Plan) StateFile() string {
	return p.stateFile
}

// Load restores progress from the state file. A state written for a
// different hash or size, or one that cannot be parsed, is thrown away
// together with every chunk file.
func (p *Plan) Load() (bool, error) {
	if err := os.MkdirAll(p.job.TempDir, 0755); err != nil {
		return false, fmt.Errorf("error creating temp directory: %w", err)
	}
	st, err := readState(p.stateFile)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		log.Warn().Str("op", "plan/load").Err(err).Msg("Unreadable state, starting over")
		return false, p.Discard()
	}
	if st.ExpectedHash != p.job.ExpectedHash || st.TotalSize != p.job.TotalSize {
		log.Warn().Str("op", "plan/load").Str("stored", st.ExpectedHash).Str("expected", p.job.ExpectedHash).Msg("File changed, starting over")
		return false, p.Discard()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = p.completed[:0]
	for i := range p.chunks {
		c := &p.chunks[i]
		if !slices.Contains(st.Completed, c.ID) {
			continue
		}
		info, err := os.Stat(c.TempPath)
		if err != nil || info.Size() != c.Size() {
			continue
		}
		c.Downloaded = true
		p.completed = append(p.completed, c.ID)
	}
	log.Info().Str("op", "plan/load").Msgf("Resuming with %d/%d chunks on disk", len(p.completed), len(p.chunks))
	return true, nil
}

// MarkComplete records a finished chunk and persists the full state.
func (p *Plan) MarkComplete(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.chunks) {
		return fmt.Errorf("unknown chunk %d", id)
	}
	p.chunks[id].Downloaded = true
	if !slices.Contains(p.completed, id) {
		p.completed = append(p.completed, id)
	}
	return writeState(p.stateFile, p.snapshotLocked())
}

func (p *Plan) snapshotLocked() State {
	return State{
		FileKey:      p.job.FileKey,
		ExpectedHash: p.job.ExpectedHash,
		TotalSize:    p.job.TotalSize,
		Completed:    slices.Clone(p.completed),
	}
}

// NextPending returns up to n chunks still missing, lowest id first.
func (p *Plan) NextPending(n int) []utils.Chunk {
	p.mu.Lock()
	defer p.mu.Unlock()
	var pending []utils.Chunk
	for _, c := range p.chunks {
		if len(pending) >= n {
			break
		}
		if !c.Downloaded {
			pending = append(pending, c)
		}
	}
	return pending
}

func (p *Plan) IsComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.chunks {
		if !c.Downloaded {
			return false
		}
	}
	return true
}

func (p *Plan) Chunks() []utils.Chunk {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.chunks)
}

func (p *Plan) Counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.completed), len(p.chunks)
}

// Discard removes every chunk file of the file key and the state file,
// including chunks left by an earlier layout of a different size.
func (p *Plan) Discard() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.chunks {
		p.chunks[i].Downloaded = false
	}
	files, _, err := utils.ChunkFilesOnDisk(p.job.TempDir, p.job.FileKey)
	if err != nil {
		return fmt.Errorf("error listing chunk files: %w", err)
	}
	var errs []error
	for _, path := range files {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := os.Remove(p.stateFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	p.completed = nil
	return errors.Join(errs...)
}
