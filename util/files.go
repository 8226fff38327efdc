package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TimestampLayout names default outputs after the moment a run started.
const TimestampLayout = "2006-01-02-15:04:05"

var (
	ErrSourceMissing = errors.New("source file does not exist")
	ErrOutputExists  = errors.New("a file with this name already exists")
)

// RequireFiles checks that every path is an existing regular file.
func RequireFiles(paths ...string) error {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			return fmt.Errorf("%w: %q", ErrSourceMissing, p)
		}
	}
	return nil
}

// RequireAbsent checks that no path exists yet.
func RequireAbsent(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return fmt.Errorf("%w: %q", ErrOutputExists, p)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to check output %q: %w", p, err)
		}
	}
	return nil
}

// EnsureSuffix appends suffix unless path already ends with it.
func EnsureSuffix(path, suffix string) string {
	if strings.HasSuffix(path, suffix) {
		return path
	}
	return path + suffix
}

// Timestamped returns prefix followed by now in TimestampLayout.
func Timestamped(prefix string, now time.Time) string {
	return prefix + now.Format(TimestampLayout)
}

// WriteFile creates path through a temporary file in the same directory that
// is renamed into place only when write succeeds. An existing path is never
// overwritten.
func WriteFile(path string, write func(f *os.File) error) error {
	var out Outputs
	if err := out.Create(path, write); err != nil {
		return err
	}
	_, err := out.Commit()
	return err
}

// Outputs stages files next to their destinations and moves them into place
// together, so a failed run leaves none of them behind.
type Outputs struct {
	staged []stagedFile
}

type stagedFile struct {
	path string
	tmp  string
}

// Create writes a temporary file for path. On error every file staged so far
// is discarded.
func (o *Outputs) Create(path string, write func(f *os.File) error) (err error) {
	defer func() {
		if err != nil {
			o.Discard()
		}
	}()

	if err := RequireAbsent(path); err != nil {
		return err
	}
	for _, s := range o.staged {
		if s.path == path {
			return fmt.Errorf("%w: %q", ErrOutputExists, path)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary output: %w", err)
	}
	o.staged = append(o.staged, stagedFile{path: path, tmp: tmp.Name()})

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	return nil
}

// Commit renames every staged file into place and returns the paths in the
// order they were created. No file is moved if any destination appeared in
// the meantime.
func (o *Outputs) Commit() (paths []string, err error) {
	defer func() {
		if err != nil {
			for _, p := range paths {
				os.Remove(p)
			}
			paths = nil
			o.Discard()
		}
	}()

	for _, s := range o.staged {
		if err := RequireAbsent(s.path); err != nil {
			return nil, err
		}
	}
	for _, s := range o.staged {
		if err := os.Rename(s.tmp, s.path); err != nil {
			return paths, fmt.Errorf("failed to move output into place: %w", err)
		}
		paths = append(paths, s.path)
	}
	o.staged = nil
	return paths, nil
}

// Discard removes every staged file that was not committed.
func (o *Outputs) Discard() {
	for _, s := range o.staged {
		os.Remove(s.tmp)
	}
	o.staged = nil
}

// GetAbsolutePath joins relativePath onto the working directory.
func GetAbsolutePath(relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		return relativePath, nil
	}
	root, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, relativePath), nil
}
