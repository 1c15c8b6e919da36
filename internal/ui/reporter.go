package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/nso-developer/nsocmd/internal/engine"
	"github.com/nso-developer/nsocmd/internal/exec"
)

// Reporter is an engine.Reporter that also renders the events the CLI
// produces around the engine.
type Reporter interface {
	engine.Reporter

	// Step announces a batch plan step (1-based index).
	Step(index, total int, name string)
	// TimeLimitExceeded is shown when retries ran out of time.
	TimeLimitExceeded(limit time.Duration)
	// OnFail announces the on-fail command.
	OnFail(command string)
	// Finish records the final outcome of a request.
	Finish(res engine.Result)
}

// TextReporter writes human-readable output.
type TextReporter struct {
	w             io.Writer
	retryInterval time.Duration
}

// NewTextReporter creates a TextReporter writing to w.
func NewTextReporter(w io.Writer) *TextReporter {
	return &TextReporter{w: w, retryInterval: engine.RetryInterval}
}

func (r *TextReporter) Executing(invocation string) {
	r.line(InfoStyle(), fmt.Sprintf("%s Executing: %s", MarkNotice, invocation))
}

func (r *TextReporter) Success(a engine.Attempt) {
	r.block(SuccessStyle(), a.ElapsedSeconds(), "Successful", a.Output)
}

func (r *TextReporter) Failure(a engine.Attempt, willRetry bool) {
	style := ErrorStyle()
	secs := a.ElapsedSeconds()
	r.block(style, secs, "Failed", a.Report)
	if willRetry {
		r.line(style, fmt.Sprintf("%s %ds elapsed - Failed command, retrying after every %d second sleep...",
			MarkNotice, secs, int(r.retryInterval/time.Second)))
		r.line(style, MarkNotice+" No more output until result changes")
	}
}

func (r *TextReporter) TransportFatal(target string, a engine.Attempt) {
	if _, missing := exec.IsTargetNotFound(a.Output, a.ExitCode); missing || a.Err == nil {
		r.line(ErrorStyle(), fmt.Sprintf("No NSO container %s - exiting immediately", target))
		return
	}
	r.line(ErrorStyle(), strings.TrimRight(a.Err.Error(), "\n"))
}

func (r *TextReporter) Error(err error) {
	r.line(ErrorStyle(), strings.TrimRight(err.Error(), "\n"))
}

func (r *TextReporter) Step(index, total int, name string) {
	r.line(InfoStyle(), fmt.Sprintf("%s Step %d/%d: %s", MarkNotice, index, total, name))
}

func (r *TextReporter) TimeLimitExceeded(limit time.Duration) {
	r.line(ErrorStyle(), fmt.Sprintf("Time limit of %ds exceeded", int(limit/time.Second)))
}

func (r *TextReporter) OnFail(command string) {
	r.line(InfoStyle(), "Executing on-fail command "+command)
}

// Finish prints nothing; the blocks already tell the story.
func (r *TextReporter) Finish(engine.Result) {}

func (r *TextReporter) block(style lipgloss.Style, secs int, verdict, body string) {
	r.line(style, fmt.Sprintf("%s %ds elapsed - %s command, start output =============", MarkBlock, secs, verdict))
	r.line(style, body)
	r.line(style, fmt.Sprintf("%s %ds elapsed - %s command, end output ===============", MarkBlock, secs, verdict))
}

// line renders text one line at a time so lipgloss doesn't pad multi-line
// output to a common width.
func (r *TextReporter) line(style lipgloss.Style, text string) {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = style.Render(l)
		}
	}
	fmt.Fprintln(r.w, strings.Join(lines, "\n"))
}

var _ Reporter = (*TextReporter)(nil)
