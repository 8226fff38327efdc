package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/SanteonNL/claimtools/payload"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exportName = "8d3f4b2a-1c2d-4e5f-a6b7-c8d9e0f1a2b3.ndjson"

func fixture(t *testing.T, plaintext string) options {
	t.Helper()
	dir := t.TempDir()

	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pkPath := filepath.Join(dir, "private.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(pk)})
	require.NoError(t, os.WriteFile(pkPath, pemBytes, 0o600))

	ciphertext, key, err := payload.Encrypt(&pk.PublicKey, []byte(plaintext), exportName)
	require.NoError(t, err)
	file := filepath.Join(dir, exportName)
	require.NoError(t, os.WriteFile(file, ciphertext, 0o600))

	return options{key: hex.EncodeToString(key), file: file, privateKey: pkPath}
}

func TestRunToStdout(t *testing.T) {
	opts := fixture(t, "{\"resourceType\":\"Patient\"}\n")

	var stdout bytes.Buffer
	require.NoError(t, run(zerolog.Nop(), opts, &stdout))
	assert.Equal(t, "{\"resourceType\":\"Patient\"}\n", stdout.String())
}

func TestRunToFile(t *testing.T) {
	opts := fixture(t, "line\n")
	opts.out = filepath.Join(t.TempDir(), "patient.ndjson")

	var stdout bytes.Buffer
	require.NoError(t, run(zerolog.Nop(), opts, &stdout))
	assert.Empty(t, stdout.String())

	data, err := os.ReadFile(opts.out)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))
}

func TestRunRejectsFilename(t *testing.T) {
	opts := fixture(t, "x")
	renamed := filepath.Join(filepath.Dir(opts.file), "export.ndjson")
	require.NoError(t, os.Rename(opts.file, renamed))
	opts.file = renamed

	err := run(zerolog.Nop(), opts, &bytes.Buffer{})
	assert.True(t, errors.Is(err, payload.ErrInvalidFilename))
}

func TestRootCmd(t *testing.T) {
	opts := fixture(t, "hello")

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--key", opts.key, "--file", opts.file, "--pk", opts.privateKey})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, "hello", stdout.String())

	cmd = newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--key", opts.key})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}
