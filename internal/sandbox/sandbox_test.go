package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeLookPath(found string) func(string) (string, error) {
	return func(name string) (string, error) {
		if found == "" {
			return "", errors.New("executable file not found in $PATH")
		}
		return found, nil
	}
}

func TestPrefix_Disabled(t *testing.T) {
	prefix, err := Builder{}.Prefix("in", "out")
	require.NoError(t, err)
	assert.Empty(t, prefix)

	path, err := Builder{Tool: "definitely-missing"}.Check()
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestCheck_ToolUnavailable(t *testing.T) {
	b := Builder{Enabled: true, Tool: "bwrap", LookPath: fakeLookPath("")}
	_, err := b.Check()
	require.ErrorIs(t, err, ErrToolUnavailable)

	_, err = b.Prefix(t.TempDir(), t.TempDir())
	require.ErrorIs(t, err, ErrToolUnavailable)
}

func TestPrefix_Enabled(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	b := Builder{
		Enabled:       true,
		Tool:          "bwrap",
		ReadOnlyPaths: []string{"/usr", "/etc"},
		ShareNetwork:  true,
		LookPath:      fakeLookPath("/usr/bin/bwrap"),
	}

	prefix, err := b.Prefix(in, out)
	require.NoError(t, err)

	joined := strings.Join(prefix, " ")
	assert.Equal(t, "/usr/bin/bwrap", prefix[0])
	assert.Equal(t, "--", prefix[len(prefix)-1])
	assert.Contains(t, joined, "--ro-bind-try /usr /usr --ro-bind-try /etc /etc")
	assert.Contains(t, joined, "--tmpfs /tmp")
	assert.Contains(t, joined, "--ro-bind "+in+" "+in)
	assert.Contains(t, joined, "--bind "+out+" "+out)
	assert.Contains(t, joined, "--setenv HOME "+filepath.Join(out, ".home"))
	assert.Contains(t, joined, "--setenv XDG_CACHE_HOME "+filepath.Join(out, ".cache"))
	assert.Contains(t, joined, "--setenv XDG_CONFIG_HOME "+filepath.Join(out, ".config"))
	assert.Contains(t, joined, "--setenv XDG_DATA_HOME "+filepath.Join(out, ".local", "share"))
	assert.Contains(t, joined, "--unshare-all --share-net")
	assert.Contains(t, joined, "--chdir "+out+" --")

	for _, d := range []string{".home", ".cache", ".config", filepath.Join(".local", "share")} {
		info, err := os.Stat(filepath.Join(out, d))
		require.NoError(t, err, d)
		assert.True(t, info.IsDir(), d)
	}
}

func TestPrefix_NoNetwork(t *testing.T) {
	b := Builder{Enabled: true, Tool: "bwrap", LookPath: fakeLookPath("/bin/bwrap")}
	prefix, err := b.Prefix(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	assert.NotContains(t, prefix, "--share-net")
	assert.Contains(t, prefix, "--unshare-all")
}
