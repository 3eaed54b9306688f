package state

import (
	"fmt"
	"strings"
)

// Message types checked by ValidateRequestSequence. They mirror the wire
// names so this package does not depend on the protocol codec.
const (
	SequenceStatusBusy = "status:busy"
	SequenceStatusIdle = "status:idle"
)

// SequenceError describes why the messages sent for one request were out of
// order.
type SequenceError struct {
	RequestID string
	Sequence  []string
	Reason    string
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf(
		"message sequence for request %q is out of order (%s): %s",
		e.RequestID,
		strings.Join(e.Sequence, ","),
		e.Reason,
	)
}

// ValidateRequestSequence enforces the order of messages sent for one
// request: status busy first, status idle last, exactly one reply (a type
// ending in _reply) immediately before idle, outputs in between.
func ValidateRequestSequence(requestID string, sequence []string) error {
	fail := func(reason string) error {
		return &SequenceError{RequestID: requestID, Sequence: sequence, Reason: reason}
	}
	if len(sequence) < 3 {
		return fail("expected at least busy, reply and idle")
	}
	if sequence[0] != SequenceStatusBusy {
		return fail("first message must be busy status")
	}
	last := len(sequence) - 1
	if sequence[last] != SequenceStatusIdle {
		return fail("last message must be idle status")
	}
	if !isReply(sequence[last-1]) {
		return fail("reply must immediately precede idle status")
	}
	for _, msgType := range sequence[1 : last-1] {
		switch {
		case isReply(msgType):
			return fail("more than one reply")
		case msgType == SequenceStatusBusy || msgType == SequenceStatusIdle:
			return fail("status published in the middle of a request")
		}
	}
	return nil
}

func isReply(msgType string) bool {
	return strings.HasSuffix(strings.TrimSpace(msgType), "_reply")
}
