package record

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/vibe/internal/agent"
	"github.com/msageha/vibe/internal/input"
)

func TestWriter_Paths(t *testing.T) {
	w := NewWriter("output", "")
	f := input.File{Name: "f1.txt"}

	assert.Equal(t, filepath.Join("output", "prompts", "f1.txt.prompt.md"), w.PromptPath(f))
	assert.Equal(t, filepath.Join("output", "logs", "claude", "f1.txt.log"), w.LogPath("claude", f))
	assert.Equal(t, filepath.Join("output", "f1.json"), w.OutputPath(f))

	md := NewWriter("out", ".md")
	assert.Equal(t, filepath.Join("out", "report.md"), md.OutputPath(input.File{Name: "report.csv"}))
}

func TestWriter_PrepareIdempotent(t *testing.T) {
	root := filepath.Join(t.TempDir(), "output")
	w := NewWriter(root, ".json")

	require.NoError(t, w.Prepare())
	require.NoError(t, w.Prepare())
	assert.DirExists(t, filepath.Join(root, "prompts"))
	assert.DirExists(t, filepath.Join(root, "logs"))
}

func TestWriter_WritePrompt(t *testing.T) {
	w := NewWriter(t.TempDir(), ".json")
	require.NoError(t, w.Prepare())

	path, err := w.WritePrompt(input.File{Name: "a.txt"}, "Analyze a.txt")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Analyze a.txt", string(data))
}

func TestWriter_WriteAttemptLog(t *testing.T) {
	w := NewWriter(t.TempDir(), ".json")
	require.NoError(t, w.Prepare())

	inv := agent.Invocation{
		Argv:     []string{"gemini", "-p", "Analyze input/a b.txt", "-y"},
		ExitCode: 3,
		Stdout:   "partial",
		Stderr:   "429 Too Many Requests\n",
	}
	path, err := w.WriteAttemptLog("gemini", input.File{Name: "a b.txt"}, inv)
	require.NoError(t, err)
	assert.Equal(t, w.LogPath("gemini", input.File{Name: "a b.txt"}), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")

	require.True(t, strings.HasPrefix(lines[0], "# Command: "))
	argv, err := shellquote.Split(strings.TrimPrefix(lines[0], "# Command: "))
	require.NoError(t, err)
	assert.Equal(t, inv.Argv, argv)

	assert.Equal(t, "# Exit code: 3", lines[1])
	assert.Equal(t, "", lines[2])
	assert.Equal(t, "## STDOUT\npartial\n\n## STDERR\n429 Too Many Requests\n", strings.Join(lines[3:], "\n"))
}

func TestFormatLog_EmptyStreams(t *testing.T) {
	got := FormatLog(agent.Invocation{Argv: []string{"claude", "-p", "x"}, ExitCode: 0})
	assert.Equal(t, "# Command: claude -p x\n# Exit code: 0\n\n", got)

	got = FormatLog(agent.Invocation{Argv: []string{"codex"}, ExitCode: 1, Stderr: "boom"})
	assert.Equal(t, "# Command: codex\n# Exit code: 1\n\n\n## STDERR\nboom\n", got)
}

func TestWriter_WriteOutputAndHasOutput(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, ".json")
	f := input.File{Name: "f1.txt"}

	assert.False(t, w.HasOutput(f))

	path, err := w.WriteOutput(f, `{"result":"RESULT"}`)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "f1.json"), path)
	assert.True(t, w.HasOutput(f))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"result":"RESULT"}`, string(data))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".vibe-tmp-"), "temp file left behind: %s", e.Name())
	}
}

func TestAtomicWrite_Overwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, AtomicWrite(path, []byte("first")))
	require.NoError(t, AtomicWrite(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestAtomicWrite_MissingDir(t *testing.T) {
	err := AtomicWrite(filepath.Join(t.TempDir(), "nope", "out.json"), []byte("x"))
	require.Error(t, err)
}
