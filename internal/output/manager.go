package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/hoard/internal/utils"
)

// Manager draws the live status of one transfer: a status line and a
// progress bar, redrawn in place on a ticker when attached to a terminal.
type Manager struct {
	out         io.Writer
	label       string
	interactive bool
	mutex       sync.RWMutex
	status      string
	message     string
	percent     float64
	err         error
	startTime   time.Time
	lastUpdated time.Time
	numLines    int
	displayTick time.Duration
	doneCh      chan struct{}
	displayWg   sync.WaitGroup
}

func NewManager(label string) *Manager {
	return newManager(os.Stdout, label, isTerminal(os.Stdout))
}

func newManager(out io.Writer, label string, interactive bool) *Manager {
	return &Manager{
		out:         out,
		label:       label,
		interactive: interactive,
		status:      StatusPending,
		startTime:   time.Now(),
		lastUpdated: time.Now(),
		displayTick: 200 * time.Millisecond,
		doneCh:      make(chan struct{}),
	}
}

// Update is the engine's progress sink.
func (m *Manager) Update(percent float64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.percent = percent
	if m.status == StatusPending {
		m.status = StatusActive
	}
	m.lastUpdated = time.Now()
}

func (m *Manager) SetStatus(status, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.status = status
	if message != "" {
		m.message = message
	}
	m.lastUpdated = time.Now()
}

func (m *Manager) ReportError(err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.status = StatusError
	m.err = err
	m.message = fmt.Sprintf("Failed %s", m.label)
	m.lastUpdated = time.Now()
}

// Complete records the final state from the engine result.
func (m *Manager) Complete(res utils.Result) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	switch {
	case res.Stopped:
		m.status = StatusStopped
		m.message = fmt.Sprintf("Stopped %s (resume by running the same command)", m.label)
	case res.Success && !res.Verified:
		m.status = StatusWarning
		m.message = fmt.Sprintf("Completed %s (not verified)", m.label)
		m.percent = 100
	case res.Success:
		m.status = StatusSuccess
		m.message = fmt.Sprintf("Completed %s", m.label)
		m.percent = 100
	}
	m.lastUpdated = time.Now()
}

func (m *Manager) GetStatusIndicator(status string) string {
	switch status {
	case StatusSuccess:
		return successStyle.Render(StyleSymbols["pass"])
	case StatusError:
		return errorStyle.Render(StyleSymbols["fail"])
	case StatusWarning:
		return warningStyle.Render(StyleSymbols["warning"])
	case StatusPaused:
		return warningStyle.Render(StyleSymbols["pause"])
	case StatusStopped:
		return warningStyle.Render(StyleSymbols["stop"])
	case StatusPending:
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

// render returns the display lines for the current state.
func (m *Manager) render() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	message := m.message
	if message == "" {
		message = fmt.Sprintf("Fetching %s", m.label)
	}
	var styled string
	switch m.status {
	case StatusSuccess:
		styled = successStyle.Render(message)
	case StatusError:
		styled = errorStyle.Render(message)
	case StatusWarning, StatusPaused, StatusStopped:
		styled = warningStyle.Render(message)
	default:
		styled = pendingStyle.Render(message)
	}
	elapsed := m.lastUpdated.Sub(m.startTime).Round(time.Second)
	if m.status == StatusActive || m.status == StatusPending {
		elapsed = time.Since(m.startTime).Round(time.Second)
	}
	lines := []string{fmt.Sprintf("%s%s %s %s", strings.Repeat(" ", 2), m.GetStatusIndicator(m.status), debugStyle.Render(elapsed.String()), styled)}
	if m.status != StatusError {
		lines = append(lines, strings.Repeat(" ", 2+4)+ProgressBar(m.percent, barWidth()))
	}
	return lines
}

func (m *Manager) updateDisplay() {
	lines := m.render()
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	for _, line := range lines {
		fmt.Fprintln(m.out, line)
	}
	m.numLines = len(lines)
}

func (m *Manager) StartDisplay() {
	if !m.interactive {
		return
	}
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				return
			}
		}
	}()
}

// StopDisplay draws the final state once, terminal or not.
func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
	m.updateDisplay()
}

// ShowSummary prints the result details and any error below the display.
func (m *Manager) ShowSummary(res utils.Result) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	indent := strings.Repeat(" ", 2)
	fmt.Fprintln(m.out)
	if res.Mode != "" {
		fmt.Fprintf(m.out, "%s%s %s\n", indent, detailStyle.Render("mode:"), debugStyle.Render(string(res.Mode)))
	}
	if res.Success {
		fmt.Fprintf(m.out, "%s%s %s %s %s\n", indent, detailStyle.Render("size:"), debugStyle.Render(utils.FormatBytes(res.Bytes)),
			StyleSymbols["bullet"], debugStyle.Render(utils.FormatSpeed(res.Bytes, res.Duration.Seconds())))
	}
	if res.Resumed > 0 {
		fmt.Fprintf(m.out, "%s%s %s\n", indent, detailStyle.Render("resumed chunks:"), debugStyle.Render(fmt.Sprint(res.Resumed)))
	}
	if len(res.ServersUsed) > 0 {
		fmt.Fprintf(m.out, "%s%s %s\n", indent, detailStyle.Render("servers:"), debugStyle.Render(strings.Join(res.ServersUsed, ", ")))
	}
	if m.err != nil {
		fmt.Fprintln(m.out)
		fmt.Fprintln(m.out, indent+errorStyle.Bold(true).Render("Error:"))
		fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2+2), errorStyle.Render(m.err.Error()))
	}
	fmt.Fprintln(m.out)
}
