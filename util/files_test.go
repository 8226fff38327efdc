package util

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireFiles(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "patient.ndjson")
	require.NoError(t, os.WriteFile(file, []byte("{}\n"), 0o644))

	assert.NoError(t, RequireFiles(file))

	err := RequireFiles(file, filepath.Join(dir, "missing.ndjson"))
	assert.True(t, errors.Is(err, ErrSourceMissing))
	assert.Contains(t, err.Error(), "missing.ndjson")

	assert.True(t, errors.Is(RequireFiles(dir), ErrSourceMissing))
}

func TestRequireAbsent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "out.csv")
	assert.NoError(t, RequireAbsent(file))

	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.True(t, errors.Is(RequireAbsent(file), ErrOutputExists))
}

func TestEnsureSuffix(t *testing.T) {
	assert.Equal(t, "out.csv", EnsureSuffix("out", ".csv"))
	assert.Equal(t, "out.csv", EnsureSuffix("out.csv", ".csv"))
	assert.Equal(t, "out.txt.csv", EnsureSuffix("out.txt", ".csv"))
}

func TestTimestamped(t *testing.T) {
	now := time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)
	assert.Equal(t, "flat_fhir_output_2024-03-05-07:08:09", Timestamped("flat_fhir_output_", now))
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	require.NoError(t, WriteFile(path, func(f *os.File) error {
		_, err := f.WriteString("a,b\n")
		return err
	}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))

	err = WriteFile(path, func(f *os.File) error { return nil })
	assert.True(t, errors.Is(err, ErrOutputExists))

	failed := filepath.Join(dir, "failed.csv")
	boom := errors.New("boom")
	err = WriteFile(failed, func(f *os.File) error {
		_, _ = f.WriteString("partial")
		return boom
	})
	assert.True(t, errors.Is(err, boom))
	assert.NoFileExists(t, failed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOutputs(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.csv"), filepath.Join(dir, "b.csv")
	write := func(text string) func(f *os.File) error {
		return func(f *os.File) error {
			_, err := f.WriteString(text)
			return err
		}
	}

	var out Outputs
	require.NoError(t, out.Create(a, write("a")))
	require.NoError(t, out.Create(b, write("b")))
	assert.NoFileExists(t, a)

	err := out.Create(a, write("again"))
	assert.True(t, errors.Is(err, ErrOutputExists), "got %v", err)

	paths, err := out.Commit()
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.NoFileExists(t, a)
	assert.NoFileExists(t, b)

	require.NoError(t, out.Create(a, write("a")))
	require.NoError(t, out.Create(b, write("b")))
	paths, err = out.Commit()
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, paths)
	data, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestOutputsFailureDiscardsStaged(t *testing.T) {
	dir := t.TempDir()
	first, second := filepath.Join(dir, "first.csv"), filepath.Join(dir, "second.csv")

	var out Outputs
	require.NoError(t, out.Create(first, func(f *os.File) error { return nil }))
	err := out.Create(second, func(f *os.File) error { return errors.New("build failed") })
	require.EqualError(t, err, "build failed")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, out.Create(first, func(f *os.File) error { return nil }))
	require.NoError(t, os.WriteFile(first, nil, 0o644))
	_, err = out.Commit()
	assert.True(t, errors.Is(err, ErrOutputExists), "got %v", err)

	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestGetAbsolutePath(t *testing.T) {
	abs, err := GetAbsolutePath("out.csv")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(abs))

	abs, err = GetAbsolutePath("/tmp/out.csv")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out.csv", abs)
}
