package config

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestLoadConnection(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "kernel-1.json")
	writeFile(t, path, `{
  "stdin_port": 50001,
  "ip": "127.0.0.1",
  "control_port": 50004,
  "hb_port": 50005,
  "signature_scheme": "hmac-sha256",
  "key": "a0436f6c-1916-498b-8eb9-e81ab9368e84",
  "shell_port": 50002,
  "transport": "tcp",
  "iopub_port": 50003
}`)

	conn, err := LoadConnection(path)
	if err != nil {
		t.Fatalf("load connection: %v", err)
	}
	if got := conn.Endpoint(conn.ShellPort); got != "tcp://127.0.0.1:50002" {
		t.Fatalf("shell endpoint = %q", got)
	}
	if conn.Key == "" || conn.SignatureScheme != "hmac-sha256" {
		t.Fatalf("signing fields = %q/%q", conn.Key, conn.SignatureScheme)
	}
}

func TestLoadConnectionDefaultsTransportAndIP(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "conn.json")
	writeFile(t, path, `{"stdin_port": 1, "shell_port": 2, "iopub_port": 3, "hb_port": 4}`)

	conn, err := LoadConnection(path)
	if err != nil {
		t.Fatalf("load connection: %v", err)
	}
	if got := conn.Endpoint(conn.HBPort); got != "tcp://127.0.0.1:4" {
		t.Fatalf("hb endpoint = %q", got)
	}
}

func TestLoadConnectionErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	badJSON := filepath.Join(dir, "bad.json")
	writeFile(t, badJSON, `{not json`)
	badPort := filepath.Join(dir, "port.json")
	writeFile(t, badPort, `{"stdin_port": 1, "shell_port": 2, "iopub_port": 70000, "hb_port": 4}`)

	for _, path := range []string{filepath.Join(dir, "missing.json"), badJSON, badPort} {
		_, err := LoadConnection(path)
		if !errors.Is(err, ErrConnectionFile) {
			t.Fatalf("LoadConnection(%s) error = %v, want ErrConnectionFile", filepath.Base(path), err)
		}
	}
}
