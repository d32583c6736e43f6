package utils

import "time"

type TransferJob struct {
	FileKey      string
	TotalSize    int64
	ExpectedHash string
	TempDir      string
	OutputPath   string
}

type Chunk struct {
	ID         int
	Start      int64
	End        int64 // inclusive
	Downloaded bool
	TempPath   string
}

func (c Chunk) Size() int64 {
	return c.End - c.Start + 1
}

type FetchResult struct {
	ChunkID  int
	Bytes    int64
	Provider string
}

// Mode is the source-selection policy a job runs under.
type Mode string

const (
	ModeDirectOnly      Mode = "direct-only"
	ModeHybrid          Mode = "hybrid"
	ModeDistributedOnly Mode = "distributed-only"
)

type Phase string

const (
	PhasePlanning  Phase = "planning"
	PhaseFetching  Phase = "fetching"
	PhaseMerging   Phase = "merging"
	PhaseVerifying Phase = "verifying"
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
	PhaseStopped   Phase = "stopped"
)

type Result struct {
	Success     bool
	Verified    bool
	Stopped     bool
	Mode        Mode
	Resumed     int // chunks recovered from a previous run
	Bytes       int64
	ServersUsed []string
	Duration    time.Duration
}

type HTTPClientConfig struct {
	Timeout        time.Duration
	KATimeout      time.Duration
	ProxyURL       string
	ProxyUsername  string
	ProxyPassword  string
	UserAgent      string
	Headers        map[string]string
	HighThreadMode bool // advanced socket options for high concurrency
}
