package kernel

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mathics/gomathics/internal/events"
	"github.com/mathics/gomathics/internal/logging"
	"github.com/mathics/gomathics/internal/state"
)

// Heartbeat echoes every payload received on its socket back unchanged. It
// shares no state with request handling.
type Heartbeat struct {
	sock      Socket
	publisher state.Publisher
	logger    *log.Logger
	beats     atomic.Int64
}

// NewHeartbeat wraps a bound REP socket.
func NewHeartbeat(sock Socket, publisher state.Publisher, logger *log.Logger) *Heartbeat {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Heartbeat{sock: sock, publisher: publisher, logger: logger}
}

// Serve echoes until the socket fails. A failure after ctx is cancelled is
// a normal shutdown and returns nil.
func (h *Heartbeat) Serve(ctx context.Context) error {
	for {
		frames, err := h.sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("heartbeat receive: %w", err)
		}
		if err := h.sock.Send(frames); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			h.logger.Warn("heartbeat echo failed", "error", err)
			continue
		}
		n := h.beats.Add(1)
		if h.publisher != nil {
			h.publisher.Publish(events.Event{
				Type:       events.EventTypeHeartbeat,
				Timestamp:  time.Now().UTC(),
				EntityType: string(state.EntityKernel),
				Payload:    n,
				Severity:   events.SeverityInfo,
			})
		}
	}
}

// Beats returns how many payloads have been echoed.
func (h *Heartbeat) Beats() int64 {
	return h.beats.Load()
}
