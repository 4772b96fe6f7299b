// Package record persists rendered prompts, per-attempt logs and output artifacts.
package record

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/msageha/vibe/internal/agent"
	"github.com/msageha/vibe/internal/input"
)

const (
	promptsDir   = "prompts"
	logsDir      = "logs"
	promptSuffix = ".prompt.md"
	logSuffix    = ".log"
)

// Writer lays out files under Root:
//
//	<root>/prompts/<file>.prompt.md
//	<root>/logs/<agent>/<file>.log
//	<root>/<stem><ext>
type Writer struct {
	root string
	ext  string
}

// NewWriter returns a Writer for root with the given output extension (".json" when empty).
func NewWriter(root, ext string) *Writer {
	if ext == "" {
		ext = ".json"
	}
	return &Writer{root: root, ext: ext}
}

func (w *Writer) Root() string { return w.root }

// Prepare creates the prompts and logs directories. Safe to repeat.
func (w *Writer) Prepare() error {
	for _, d := range []string{promptsDir, logsDir} {
		if err := os.MkdirAll(filepath.Join(w.root, d), 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}
	return nil
}

func (w *Writer) LogsDir() string { return filepath.Join(w.root, logsDir) }

func (w *Writer) PromptPath(f input.File) string {
	return filepath.Join(w.root, promptsDir, f.Name+promptSuffix)
}

func (w *Writer) LogPath(agentName string, f input.File) string {
	return filepath.Join(w.root, logsDir, agentName, f.Name+logSuffix)
}

func (w *Writer) OutputPath(f input.File) string {
	return filepath.Join(w.root, f.Stem()+w.ext)
}

// HasOutput reports whether the output artifact for f already exists.
func (w *Writer) HasOutput(f input.File) bool {
	_, err := os.Stat(w.OutputPath(f))
	return err == nil
}

// WritePrompt persists the rendered task and returns its absolute path.
func (w *Writer) WritePrompt(f input.File, text string) (string, error) {
	path := w.PromptPath(f)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve prompt path: %w", err)
	}
	return abs, nil
}

// WriteAttemptLog writes the command line, exit code and captured streams of one attempt.
func (w *Writer) WriteAttemptLog(agentName string, f input.File, inv agent.Invocation) (string, error) {
	path := w.LogPath(agentName, f)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(FormatLog(inv)), 0644); err != nil {
		return "", fmt.Errorf("write attempt log: %w", err)
	}
	return path, nil
}

// WriteOutput atomically writes the agent's stdout as the artifact for f.
func (w *Writer) WriteOutput(f input.File, stdout string) (string, error) {
	path := w.OutputPath(f)
	if err := AtomicWrite(path, []byte(stdout)); err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}
	return path, nil
}

// FormatLog renders the attempt log body.
func FormatLog(inv agent.Invocation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Command: %s\n", shellquote.Join(inv.Argv...))
	fmt.Fprintf(&sb, "# Exit code: %d\n\n", inv.ExitCode)
	if inv.Stdout != "" {
		sb.WriteString("## STDOUT\n")
		writeSection(&sb, inv.Stdout)
	}
	if inv.Stderr != "" {
		sb.WriteString("\n## STDERR\n")
		writeSection(&sb, inv.Stderr)
	}
	return sb.String()
}

func writeSection(sb *strings.Builder, s string) {
	sb.WriteString(s)
	if !strings.HasSuffix(s, "\n") {
		sb.WriteString("\n")
	}
}
