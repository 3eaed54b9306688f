package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrConnectionFile wraps every failure to read or validate a connection
// file. The kernel command exits 1 on it.
var ErrConnectionFile = errors.New("connection file")

// Connection is the JSON file a frontend writes before starting a kernel.
type Connection struct {
	Transport       string `json:"transport"`
	IP              string `json:"ip"`
	StdinPort       int    `json:"stdin_port"`
	ShellPort       int    `json:"shell_port"`
	IOPubPort       int    `json:"iopub_port"`
	HBPort          int    `json:"hb_port"`
	Key             string `json:"key"`
	SignatureScheme string `json:"signature_scheme"`
}

// LoadConnection reads and validates a connection file.
func LoadConnection(path string) (*Connection, error) {
	// #nosec G304 -- the path is supplied by the launching frontend.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %w", ErrConnectionFile, path, err)
	}
	var conn Connection
	if err := json.Unmarshal(data, &conn); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrConnectionFile, path, err)
	}
	conn.normalize()
	if err := conn.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFile, path, err)
	}
	return &conn, nil
}

func (c *Connection) normalize() {
	c.Transport = strings.TrimSpace(c.Transport)
	if c.Transport == "" {
		c.Transport = "tcp"
	}
	c.IP = strings.TrimSpace(c.IP)
	if c.IP == "" {
		c.IP = "127.0.0.1"
	}
	c.SignatureScheme = strings.TrimSpace(c.SignatureScheme)
}

// Validate checks that every port is usable.
func (c *Connection) Validate() error {
	ports := []struct {
		name  string
		value int
	}{
		{"stdin_port", c.StdinPort},
		{"shell_port", c.ShellPort},
		{"iopub_port", c.IOPubPort},
		{"hb_port", c.HBPort},
	}
	for _, port := range ports {
		if port.value <= 0 || port.value > 65535 {
			return fmt.Errorf("%s %d out of range", port.name, port.value)
		}
	}
	return nil
}

// Endpoint formats transport://ip:port.
func (c *Connection) Endpoint(port int) string {
	return fmt.Sprintf("%s://%s:%d", c.Transport, c.IP, port)
}
