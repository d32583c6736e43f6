//go:build unix

package utils

import (
	"syscall"
)

// setSocketOptions sizes kernel buffers to match one copy buffer.
func setSocketOptions(fd uintptr) {
	syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_RCVBUF, DefaultBufferSize)
	syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_SNDBUF, DefaultBufferSize)
}
