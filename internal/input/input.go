// Package input enumerates the files a run iterates over.
package input

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// File is one enumerated input. Rel is the path substituted into the task:
// relative to the working directory, or absolute when agents run sandboxed
// (the sandbox mounts the input directory at its real path).
type File struct {
	Path string
	Name string
	Rel  string
}

// Stem returns the base name without its extension.
func (f File) Stem() string {
	return stem(f.Name)
}

func stem(name string) string {
	ext := filepath.Ext(name)
	if ext == name {
		return name
	}
	return name[:len(name)-len(ext)]
}

// List returns path itself when it is a regular file, or the regular files
// directly inside it sorted by base name. Symlinks are followed; anything that
// does not resolve to a regular file is skipped.
func List(path string, sandboxed bool) ([]File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve input path %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat input path: %w", err)
	}

	base, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	if info.Mode().IsRegular() {
		return []File{newFile(abs, base, sandboxed)}, nil
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input path %s is neither a file nor a directory", path)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}
	files := make([]File, 0, len(entries))
	for _, e := range entries {
		p := filepath.Join(abs, e.Name())
		if !isRegular(p) {
			continue
		}
		files = append(files, newFile(p, base, sandboxed))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Stat builds a File for a single path, reporting false when it is not a
// regular file. Watch mode uses it for paths reported by the filesystem.
func Stat(path string, sandboxed bool) (File, bool) {
	abs, err := filepath.Abs(path)
	if err != nil || !isRegular(abs) {
		return File{}, false
	}
	base, err := os.Getwd()
	if err != nil {
		return File{}, false
	}
	return newFile(abs, base, sandboxed), true
}

func isRegular(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func newFile(abs, base string, sandboxed bool) File {
	rel := abs
	if !sandboxed {
		if r, err := filepath.Rel(base, abs); err == nil {
			rel = r
		}
	}
	return File{Path: abs, Name: filepath.Base(abs), Rel: rel}
}
