package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tanq16/hoard/internal/utils"
)

// State is the resume file written beside the chunk files.
type State struct {
	FileKey      string `json:"fileKey"`
	ExpectedHash string `json:"expectedHash"`
	TotalSize    int64  `json:"totalSize"`
	Completed    []int  `json:"completed"`
	Timestamp    int64  `json:"timestamp"`
}

func readState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("error parsing state file: %w", err)
	}
	return &st, nil
}

// writeState replaces the state file atomically so a crash mid-write never
// leaves a truncated file behind.
func writeState(path string, st State) error {
	st.Timestamp = time.Now().UnixMilli()
	if st.Completed == nil {
		st.Completed = []int{}
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("error creating state temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("error writing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Inspect reads the persisted state for fileKey without touching it.
func Inspect(tempDir, fileKey string) (*State, error) {
	return readState(utils.StateFileName(tempDir, fileKey))
}
