package utils

import (
	"regexp"
	"time"
)

const (
	DefaultChunkSize            = 4 * 1024 * 1024 // 4MB
	DefaultParallelChunks       = 5
	DefaultMaxAttempts          = 3
	DefaultBaseDelay            = time.Second
	DefaultMaxConsecutiveErrors = 5
	DefaultLowProviderThreshold = 3
	DefaultFetchWeight          = 50.0
	DefaultPollInterval         = 100 * time.Millisecond
	DefaultRequestTimeout       = 30 * time.Second
	DefaultResolveTimeout       = 10 * time.Second
	DefaultKATimeout            = 90 * time.Second
	DefaultBufferSize           = 1024 * 1024 // 1MB copy buffer
	DefaultTempDirName          = ".hoard-temp"
	LogFile                     = ".hoard.log"
)

const ToolUserAgent = "hoard/1.0"

const (
	SourceDistributed = "distributed"
	SourceDirect      = "direct"
)

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
var ChunkIDRegex = regexp.MustCompile(`\.chunk(\d+)$`)
