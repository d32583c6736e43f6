// Package progress turns phase-local counters into one overall percentage.
package progress

import "sync"

// Reporter forwards a non-decreasing 0..100 value to its sink. Fetching fills
// [0, fetchWeight], merging fills [fetchWeight, 100] and a direct stream
// fills whatever remains above the last emitted value.
type Reporter struct {
	sink        func(float64)
	fetchWeight float64

	mu          sync.Mutex
	last        float64
	emitted     bool
	streamStart float64
}

func New(sink func(float64), fetchWeight float64) *Reporter {
	if fetchWeight < 0 || fetchWeight > 100 {
		fetchWeight = 50
	}
	return &Reporter{sink: sink, fetchWeight: fetchWeight}
}

func (r *Reporter) Fetch(done, total int) {
	r.emit(r.fetchWeight * ratio(int64(done), int64(total)))
}

func (r *Reporter) Merge(done, total int) {
	r.emit(r.fetchWeight + (100-r.fetchWeight)*ratio(int64(done), int64(total)))
}

// StartStream pins the base the stream phase grows from.
func (r *Reporter) StartStream() {
	r.mu.Lock()
	r.streamStart = r.last
	r.mu.Unlock()
}

// Stream maps streamed bytes; an unknown total (<= 0) reports nothing.
func (r *Reporter) Stream(done, total int64) {
	if total <= 0 {
		return
	}
	r.mu.Lock()
	base := r.streamStart
	r.mu.Unlock()
	r.emit(base + (100-base)*ratio(done, total))
}

func (r *Reporter) Done() {
	r.emit(100)
}

// Last returns the highest value emitted so far.
func (r *Reporter) Last() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Reporter) emit(value float64) {
	value = min(max(value, 0), 100)
	r.mu.Lock()
	if r.emitted && value <= r.last {
		r.mu.Unlock()
		return
	}
	r.last = value
	r.emitted = true
	r.mu.Unlock()
	if r.sink != nil {
		r.sink(value)
	}
}

func ratio(done, total int64) float64 {
	if total <= 0 {
		return 1
	}
	return min(float64(done)/float64(total), 1)
}
