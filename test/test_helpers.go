// Package test provides shared helpers for gomathics tests.
package test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mathics/gomathics/internal/config"
)

// ConnectionKey signs messages in tests that need a connection file.
const ConnectionKey = "a0436f6c-1916-498b-8eb9-e81ab9368e84"

// Context returns a context cancelled when the test completes.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750), "failed to create parent dir")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600), "failed to write file")
	return path
}

// Connection returns a loopback connection with fixed ports.
func Connection() config.Connection {
	return config.Connection{
		Transport:       "tcp",
		IP:              "127.0.0.1",
		StdinPort:       50001,
		ShellPort:       50002,
		IOPubPort:       50003,
		HBPort:          50004,
		Key:             ConnectionKey,
		SignatureScheme: "hmac-sha256",
	}
}

// WriteConnectionFile stores conn as a connection file in a temp dir and
// returns its path.
func WriteConnectionFile(t *testing.T, conn config.Connection) string {
	t.Helper()
	data, err := json.MarshalIndent(conn, "", "  ")
	require.NoError(t, err, "failed to encode connection")
	return WriteFile(t, filepath.Join(t.TempDir(), "kernel.json"), string(data))
}
