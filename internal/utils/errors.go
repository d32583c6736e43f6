package utils

import (
	"errors"
	"fmt"
)

// ErrStopped marks a user-initiated cancellation observed at a checkpoint.
// It is not a failure and must never be reported as one.
var ErrStopped = errors.New("transfer stopped by user")

type ResolutionError struct {
	FileKey string
	Err     error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("could not resolve %s: %v", e.FileKey, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// ChunkFailedError is raised once every attempt against one source is used up.
type ChunkFailedError struct {
	ChunkID int
	Source  string
	Err     error
}

func (e *ChunkFailedError) Error() string {
	return fmt.Sprintf("chunk %d failed from %s: %v", e.ChunkID, e.Source, e.Err)
}

func (e *ChunkFailedError) Unwrap() error {
	return e.Err
}

type IntegrityError struct {
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("hash mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// IsStopped reports whether err carries a stop condition.
func IsStopped(err error) bool {
	return errors.Is(err, ErrStopped)
}
