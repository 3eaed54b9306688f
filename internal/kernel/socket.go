package kernel

import (
	"context"
	"fmt"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
)

// SocketKind selects the messaging pattern of an endpoint.
type SocketKind string

const (
	SocketRouter SocketKind = "ROUTER"
	SocketPub    SocketKind = "PUB"
	SocketRep    SocketKind = "REP"
)

// Socket is one kernel endpoint carrying multipart messages.
type Socket interface {
	Listen(endpoint string) error
	Recv() ([][]byte, error)
	Send(frames [][]byte) error
	Close() error
}

// SocketFactory creates an unbound socket of the given kind.
type SocketFactory func(ctx context.Context, kind SocketKind) (Socket, error)

// ZMQSockets creates ZeroMQ sockets. They are closed when ctx is cancelled.
func ZMQSockets(ctx context.Context, kind SocketKind) (Socket, error) {
	var sock zmq4.Socket
	switch kind {
	case SocketRouter:
		sock = zmq4.NewRouter(ctx, zmq4.WithID(zmq4.SocketIdentity(uuid.NewString())))
	case SocketPub:
		sock = zmq4.NewPub(ctx)
	case SocketRep:
		sock = zmq4.NewRep(ctx)
	default:
		return nil, fmt.Errorf("unsupported socket kind %q", kind)
	}
	return &zmqSocket{sock: sock}, nil
}

type zmqSocket struct {
	sock zmq4.Socket
}

func (s *zmqSocket) Listen(endpoint string) error {
	return s.sock.Listen(endpoint)
}

func (s *zmqSocket) Recv() ([][]byte, error) {
	msg, err := s.sock.Recv()
	if err != nil {
		return nil, err
	}
	return msg.Frames, nil
}

func (s *zmqSocket) Send(frames [][]byte) error {
	return s.sock.SendMulti(zmq4.NewMsgFrom(frames...))
}

func (s *zmqSocket) Close() error {
	return s.sock.Close()
}
