// Package console prints progress lines and user-facing errors.
package console

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

type fdWriter interface {
	io.Writer
	Fd() uintptr
}

type palette struct {
	marker  lipgloss.Style
	agent   lipgloss.Style
	path    lipgloss.Style
	warn    lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
}

func newPalette(r *lipgloss.Renderer) palette {
	return palette{
		marker:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		agent:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),
		path:    r.NewStyle().Foreground(lipgloss.Color("244")).Italic(true),
		warn:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		success: r.NewStyle().Bold(true).Foreground(lipgloss.Color("82")),
		failure: r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// stream is one output with styling enabled only on a terminal.
type stream struct {
	w      io.Writer
	styled bool
	p      palette
}

func newStream(w io.Writer) stream {
	s := stream{w: w}
	if f, ok := w.(fdWriter); ok && term.IsTerminal(int(f.Fd())) {
		s.styled = true
		s.p = newPalette(lipgloss.NewRenderer(w))
	}
	return s
}

func (s stream) paint(style lipgloss.Style, text string) string {
	if !s.styled {
		return text
	}
	return style.Render(text)
}

// Reporter writes progress to out and failures to errw.
type Reporter struct {
	out  stream
	errw stream
}

func New(out, errw io.Writer) *Reporter {
	return &Reporter{out: newStream(out), errw: newStream(errw)}
}

func (r *Reporter) Trying(agent, rel string) {
	s := r.out
	fmt.Fprintf(s.w, "  %s Trying %s for %s...\n",
		s.paint(s.p.marker, "▶"), s.paint(s.p.agent, agent), s.paint(s.p.path, rel))
}

func (r *Reporter) Skipping(rel string) {
	s := r.out
	fmt.Fprintf(s.w, "  %s Skipping %s (output exists).\n",
		s.paint(s.p.muted, "▶"), s.paint(s.p.path, rel))
}

func (r *Reporter) RateLimited(agent, rel, logPath string) {
	s := r.out
	fmt.Fprintf(s.w, "  %s %s rate limited for %s, rotating. See %s.\n",
		s.paint(s.p.warn, "↻"), s.paint(s.p.agent, agent), s.paint(s.p.path, rel), logPath)
}

func (r *Reporter) Succeeded(agent, rel, outPath string) {
	s := r.out
	fmt.Fprintf(s.w, "  %s %s finished %s -> %s\n",
		s.paint(s.p.success, "✔"), s.paint(s.p.agent, agent), s.paint(s.p.path, rel), outPath)
}

func (r *Reporter) Watching(dir string) {
	s := r.out
	fmt.Fprintf(s.w, "  %s Watching %s for new files...\n",
		s.paint(s.p.marker, "▶"), s.paint(s.p.path, dir))
}

// Fatal reports a non-rate-limit agent failure.
func (r *Reporter) Fatal(agent, file string, exitCode int, logPath string) {
	s := r.errw
	fmt.Fprintf(s.w, "%s %q failed for %q (exit %d). See %s.\n",
		s.paint(s.p.failure, "Agent"), agent, file, exitCode, logPath)
}

// Exhausted reports that every agent was rate limited for file.
func (r *Reporter) Exhausted(file, lastAgent, lastLog string) {
	s := r.errw
	fmt.Fprintf(s.w, "%s for %q. Last attempt: %q (%s).\n",
		s.paint(s.p.failure, "All agents rate limited"), file, lastAgent, lastLog)
}

func (r *Reporter) Errorf(format string, args ...any) {
	s := r.errw
	fmt.Fprintf(s.w, "%s %s\n", s.paint(s.p.failure, "Error:"), fmt.Sprintf(format, args...))
}

func (r *Reporter) Summary(succeeded, failed int) {
	fmt.Fprintf(r.out.w, "Completed: %d succeeded, %d failed.\n", succeeded, failed)
}
