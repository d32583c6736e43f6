package output

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tanq16/hoard/internal/utils"
)

func TestProgressBar(t *testing.T) {
	assert.Contains(t, ProgressBar(42, 10), "42.0%")
	assert.Contains(t, ProgressBar(150, 10), "100.0%")
	assert.Contains(t, ProgressBar(-3, 10), "0.0%")
}

func TestManagerDrawsFinalState(t *testing.T) {
	var buf bytes.Buffer
	m := newManager(&buf, "games/alpha.zip", false)
	m.StartDisplay()
	m.Update(42)
	assert.Equal(t, StatusActive, m.status)
	m.Complete(utils.Result{Success: true, Verified: false, Mode: utils.ModeDirectOnly, Bytes: 2048, Duration: time.Second})
	m.StopDisplay()
	m.ShowSummary(utils.Result{Success: true, Mode: utils.ModeDirectOnly, Bytes: 2048, Duration: time.Second, ServersUsed: []string{"origin"}})

	out := buf.String()
	assert.Contains(t, out, "Completed games/alpha.zip (not verified)")
	assert.Contains(t, out, "100.0%")
	assert.Contains(t, out, "direct-only")
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, "origin")
}

func TestManagerReportsError(t *testing.T) {
	var buf bytes.Buffer
	m := newManager(&buf, "k", false)
	m.ReportError(errors.New("hash mismatch"))
	m.StopDisplay()
	m.ShowSummary(utils.Result{})
	assert.Contains(t, buf.String(), "Failed k")
	assert.Contains(t, buf.String(), "hash mismatch")
	assert.NotContains(t, buf.String(), "%")
}

func TestManagerStopped(t *testing.T) {
	var buf bytes.Buffer
	m := newManager(&buf, "k", false)
	m.Update(30)
	m.Complete(utils.Result{Stopped: true})
	m.StopDisplay()
	assert.Contains(t, buf.String(), "Stopped k")
	assert.Contains(t, buf.String(), "30.0%")
}
