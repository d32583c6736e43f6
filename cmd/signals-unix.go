//go:build unix

package cmd

import (
	"os"
	"syscall"
)

var (
	pauseSignal  os.Signal = syscall.SIGUSR1
	resumeSignal os.Signal = syscall.SIGUSR2
)
