package output

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// ProgressBar renders percent (0..100) as a bar of the given width.
func ProgressBar(percent float64, width int) string {
	if width <= 0 {
		width = 30
	}
	percent = min(max(percent, 0), 100)
	filled := max(0, min(int(percent/100*float64(width)), width))
	bar := StyleSymbols["bullet"]
	bar += strings.Repeat(StyleSymbols["hline"], filled)
	if filled < width {
		bar += strings.Repeat(" ", width-filled)
	}
	bar += StyleSymbols["bullet"]
	return debugStyle.Render(fmt.Sprintf("%s %.1f%% %s ", bar, percent, StyleSymbols["bullet"]))
}

func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80 // Default fallback width
	}
	return width
}

// barWidth leaves room for the indent and the trailing text.
func barWidth() int {
	return max(10, min(50, getTerminalWidth()-40))
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
