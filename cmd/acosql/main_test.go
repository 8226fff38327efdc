package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/SanteonNL/claimtools/acos"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tuple = regexp.MustCompile(`^  \('([0-9a-f-]{36})', 'A9994', '([0-9a-f-]{36})', 'O''Neil ACO', NULL\)$`)

func writeCSV(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acos.csv")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestRun(t *testing.T) {
	input := writeCSV(t, "name,cms_id\nO'Neil ACO,A9994XX\n")

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), zerolog.Nop(), options{input: input}, &stdout))

	lines := bytes.Split(bytes.TrimSpace(stdout.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Equal(t, "INSERT INTO acos (uuid, cms_id, client_id, name, termination_details) VALUES", string(lines[1]))
	m := tuple.FindSubmatch(lines[2])
	require.NotNil(t, m, string(lines[2]))
	assert.Equal(t, m[1], m[2])
	assert.Equal(t, ";", string(lines[3]))
}

func TestRunToFile(t *testing.T) {
	input := writeCSV(t, "cms_id,name\nA1,One\n")
	output := filepath.Join(t.TempDir(), "insert.sql")

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), zerolog.Nop(), options{input: input, output: output}, &stdout))
	assert.Empty(t, stdout.String())
	assert.FileExists(t, output)
}

func TestRunErrors(t *testing.T) {
	var stdout bytes.Buffer

	err := run(context.Background(), zerolog.Nop(), options{input: writeCSV(t, "id,title\n1,x\n")}, &stdout)
	assert.True(t, errors.Is(err, acos.ErrMissingHeaders))

	err = run(context.Background(), zerolog.Nop(), options{input: writeCSV(t, "cms_id,name\n,\n")}, &stdout)
	assert.True(t, errors.Is(err, acos.ErrNoRows))

	err = run(context.Background(), zerolog.Nop(), options{input: writeCSV(t, "cms_id,name\nA1,One\n"), exec: true}, &stdout)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Empty(t, stdout.String())
}
