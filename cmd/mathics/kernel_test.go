package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathics/gomathics/internal/config"
	"github.com/mathics/gomathics/internal/kernel"
	"github.com/mathics/gomathics/test"
)

type stubSocket struct {
	ctx       context.Context
	kind      kernel.SocketKind
	listenErr error

	mu       sync.Mutex
	endpoint string
	closed   bool
}

func (s *stubSocket) Listen(endpoint string) error {
	if s.listenErr != nil {
		return s.listenErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoint = endpoint
	return nil
}

func (s *stubSocket) Recv() ([][]byte, error) {
	<-s.ctx.Done()
	return nil, io.EOF
}

func (s *stubSocket) Send([][]byte) error { return nil }

func (s *stubSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type stubNetwork struct {
	failKind kernel.SocketKind

	mu      sync.Mutex
	sockets []*stubSocket
}

func (n *stubNetwork) factory(ctx context.Context, kind kernel.SocketKind) (kernel.Socket, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	sock := &stubSocket{ctx: ctx, kind: kind}
	if kind == n.failKind {
		sock.listenErr = errors.New("address already in use")
	}
	n.sockets = append(n.sockets, sock)
	return sock, nil
}

func (n *stubNetwork) bound() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var endpoints []string
	for _, sock := range n.sockets {
		sock.mu.Lock()
		if sock.endpoint != "" {
			endpoints = append(endpoints, sock.endpoint)
		}
		sock.mu.Unlock()
	}
	return endpoints
}

func TestRunKernelFailsWhenHeartbeatCannotBind(t *testing.T) {
	network := &stubNetwork{failKind: kernel.SocketRep}
	path := test.WriteConnectionFile(t, test.Connection())

	err := runKernel(test.Context(t), &config.Config{}, testLogger(), "session-test", path,
		kernel.WithSocketFactory(network.factory))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind heartbeat")
	assert.Empty(t, network.bound())
}

func TestRunKernelBindsEndpointsUntilCancelled(t *testing.T) {
	network := &stubNetwork{}
	path := test.WriteConnectionFile(t, test.Connection())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runKernel(ctx, &config.Config{}, testLogger(), "session-test", path,
			kernel.WithSocketFactory(network.factory))
	}()

	require.Eventually(t, func() bool { return len(network.bound()) == 4 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{
		"tcp://127.0.0.1:50004",
		"tcp://127.0.0.1:50002",
		"tcp://127.0.0.1:50003",
		"tcp://127.0.0.1:50001",
	}, network.bound())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("kernel did not stop after cancellation")
	}
	for _, sock := range network.sockets {
		assert.True(t, sock.closed, "socket %s left open", sock.kind)
	}
}
