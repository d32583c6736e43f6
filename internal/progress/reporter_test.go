package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func collect() (*[]float64, func(float64)) {
	var values []float64
	return &values, func(v float64) { values = append(values, v) }
}

func TestPhaseMapping(t *testing.T) {
	values, sink := collect()
	r := New(sink, 50)
	r.Fetch(1, 4)
	r.Fetch(4, 4)
	r.Merge(1, 2)
	r.Merge(2, 2)
	r.Done()
	assert.Equal(t, []float64{12.5, 50, 75, 100}, *values)
}

func TestNeverDecreasesOrRepeats(t *testing.T) {
	values, sink := collect()
	r := New(sink, 50)
	r.Fetch(2, 4)
	r.Fetch(1, 4)
	r.Fetch(2, 4)
	r.Fetch(3, 4)
	assert.Equal(t, []float64{25, 37.5}, *values)
}

func TestStreamGrowsFromLastValue(t *testing.T) {
	values, sink := collect()
	r := New(sink, 50)
	r.Fetch(2, 5)
	r.StartStream()
	r.Stream(0, 100)
	r.Stream(50, 100)
	r.Stream(100, 100)
	r.Stream(10, 0)
	assert.Equal(t, []float64{20, 60, 100}, *values)
	assert.Equal(t, 100.0, r.Last())
}

func TestClampsAndDefaults(t *testing.T) {
	values, sink := collect()
	r := New(sink, 150)
	r.Fetch(9, 4)
	r.Done()
	assert.Equal(t, []float64{50, 100}, *values)
}

func TestFirstZeroIsEmitted(t *testing.T) {
	values, sink := collect()
	r := New(sink, 50)
	r.Fetch(0, 3)
	r.Fetch(0, 3)
	assert.Equal(t, []float64{0}, *values)
}
