//go:build !unix

package cmd

import "os"

// no user signals here; pause/resume stay API-only
var (
	pauseSignal  os.Signal
	resumeSignal os.Signal
)
