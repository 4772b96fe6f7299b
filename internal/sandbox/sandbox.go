// Package sandbox builds the bubblewrap argv prefix that confines agent processes.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

var ErrToolUnavailable = errors.New("sandbox tool not found on PATH")

// Builder produces the wrapper prefix. A zero Builder (Enabled false) yields
// an empty prefix.
type Builder struct {
	Enabled       bool
	Tool          string
	ReadOnlyPaths []string
	ShareNetwork  bool

	// LookPath resolves Tool; nil means exec.LookPath.
	LookPath func(string) (string, error)
}

// Check verifies the tool is available when sandboxing is enabled.
func (b Builder) Check() (string, error) {
	if !b.Enabled {
		return "", nil
	}
	lookPath := b.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(b.Tool)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrToolUnavailable, b.Tool, err)
	}
	return path, nil
}

// Prefix returns the wrapper argv for agents reading inputDir and writing
// outputDir. Home and XDG directories are redirected into outputDir and
// created there.
func (b Builder) Prefix(inputDir, outputDir string) ([]string, error) {
	if !b.Enabled {
		return nil, nil
	}
	tool, err := b.Check()
	if err != nil {
		return nil, err
	}
	in, err := filepath.Abs(inputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve input dir: %w", err)
	}
	out, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}

	env := []struct{ key, dir string }{
		{"HOME", filepath.Join(out, ".home")},
		{"XDG_CACHE_HOME", filepath.Join(out, ".cache")},
		{"XDG_CONFIG_HOME", filepath.Join(out, ".config")},
		{"XDG_DATA_HOME", filepath.Join(out, ".local", "share")},
	}
	for _, e := range env {
		if err := os.MkdirAll(e.dir, 0755); err != nil {
			return nil, fmt.Errorf("create sandbox %s: %w", e.key, err)
		}
	}

	args := []string{tool}
	for _, p := range b.ReadOnlyPaths {
		args = append(args, "--ro-bind-try", p, p)
	}
	args = append(args,
		"--proc", "/proc",
		"--dev", "/dev",
		"--tmpfs", "/tmp",
		"--ro-bind", in, in,
		"--bind", out, out,
	)
	for _, e := range env {
		args = append(args, "--setenv", e.key, e.dir)
	}
	args = append(args, "--unshare-all")
	if b.ShareNetwork {
		args = append(args, "--share-net")
	}
	args = append(args, "--die-with-parent", "--chdir", out, "--")
	return args, nil
}
