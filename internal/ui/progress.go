// Package ui provides terminal progress and summary output.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	// Styles
	arrowStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	progressFull  = successStyle.Render("█")
	progressEmpty = dimStyle.Render("░")
)

// Output is where every message of this package goes.
var Output io.Writer = os.Stderr

// Interactive reports whether stderr is a terminal, in which case the
// progress line is redrawn in place.
func Interactive() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// Progress shows how many files of a run have been handled.
type Progress struct {
	Name string
	// Live redraws a single line; otherwise nothing is printed until Complete.
	Live bool
	// Width caps the shown path.
	Width int

	mu       sync.Mutex
	done     int
	total    int
	current  string
	finished bool
}

// NewProgress creates a progress line with the given name.
func NewProgress(name string, live bool) *Progress {
	return &Progress{Name: name, Live: live, Width: 40}
}

// Update records that file done of total, relPath, is about to be processed.
// Its signature matches mirror.ProgressFunc.
func (p *Progress) Update(done, total int, relPath string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.done, p.total, p.current = done, total, relPath
	if p.Live {
		fmt.Fprint(Output, "\r\033[K"+p.line())
	}
}

// Complete ends the progress line with a success mark.
func (p *Progress) Complete(message string) {
	p.finish(successStyle.Render("✓"), message)
}

// Error ends the progress line with a failure mark.
func (p *Progress) Error(message string) {
	p.finish(errorStyle.Render("✗"), message)
}

func (p *Progress) finish(mark, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = true
	prefix := ""
	if p.Live {
		prefix = "\r\033[K"
	}
	fmt.Fprintf(Output, "%s%s %s\n", prefix, mark, textStyle.Render(message))
}

func (p *Progress) line() string {
	pct := 0.0
	if p.total > 0 {
		pct = float64(p.done) / float64(p.total) * 100
	}
	return fmt.Sprintf("%s %s %s %s",
		arrowStyle.Render("→"),
		textStyle.Render(p.Name),
		dimStyle.Render(fmt.Sprintf("%s %d/%d", renderProgressBar(pct, 20), p.done, p.total)),
		dimStyle.Render(shorten(p.current, p.Width)))
}

func renderProgressBar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat(progressFull, filled) + strings.Repeat(progressEmpty, width-filled)
}

// shorten keeps the tail of s, which holds the file name.
func shorten(s string, width int) string {
	r := []rune(s)
	if width <= 1 || len(r) <= width {
		return s
	}
	return "…" + string(r[len(r)-width+1:])
}

// PrintHeader prints a styled header.
func PrintHeader(title string) {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)

	fmt.Fprintln(Output, headerStyle.Render(title))
}

// PrintInfo prints an info message.
func PrintInfo(message string) {
	fmt.Fprintln(Output, dimStyle.Render("  ")+textStyle.Render(message))
}

// PrintSuccess prints a success message.
func PrintSuccess(message string) {
	fmt.Fprintln(Output, successStyle.Render("✓ ")+textStyle.Render(message))
}

// PrintWarning prints a warning message.
func PrintWarning(message string) {
	fmt.Fprintln(Output, warnStyle.Render("⚠ ")+textStyle.Render(message))
}

// PrintError prints an error message.
func PrintError(message string) {
	fmt.Fprintln(Output, errorStyle.Render("✗ ")+textStyle.Render(message))
}

// FailureLine is one entry of PrintFailures.
type FailureLine struct {
	Path  string
	Stage string
	Err   error
}

// PrintFailures lists per-file failures below a warning header.
func PrintFailures(failures []FailureLine) {
	if len(failures) == 0 {
		return
	}
	PrintWarning(fmt.Sprintf("%d file(s) failed:", len(failures)))
	for _, f := range failures {
		fmt.Fprintf(Output, "    %s %s %s\n",
			dimStyle.Render(fmt.Sprintf("[%s]", f.Stage)),
			textStyle.Render(f.Path),
			dimStyle.Render(f.Err.Error()))
	}
}
