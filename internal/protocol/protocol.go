// Package protocol implements the kernel wire format: the message envelope,
// its multipart frame layout and HMAC signing.
package protocol

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// ProtocolVersion is the message protocol version stamped on headers.
	ProtocolVersion = "4.1"
	// Delimiter separates routing identities from the signed message parts.
	Delimiter = "<IDS|MSG>"
	// SchemeHMACSHA256 is the only supported signature scheme.
	SchemeHMACSHA256 = "hmac-sha256"
)

// MessageType names a protocol message.
type MessageType string

// Message types handled or emitted by the kernel.
const (
	KernelInfoRequest MessageType = "kernel_info_request"
	KernelInfoReply   MessageType = "kernel_info_reply"
	ExecuteRequest    MessageType = "execute_request"
	ExecuteReply      MessageType = "execute_reply"
	HistoryRequest    MessageType = "history_request"
	HistoryReply      MessageType = "history_reply"
	Status            MessageType = "status"
	Pyin              MessageType = "pyin"
	Pyout             MessageType = "pyout"
	Pyerr             MessageType = "pyerr"
	Stream            MessageType = "stream"
)

var (
	// ErrInvalidSignature reports a signature that does not match the key.
	ErrInvalidSignature = errors.New("invalid message signature")
	// ErrMalformedMessage reports frames that do not form a message.
	ErrMalformedMessage = errors.New("malformed message")
)

// Header identifies one message.
type Header struct {
	MsgID    string      `json:"msg_id"`
	Username string      `json:"username"`
	Session  string      `json:"session"`
	MsgType  MessageType `json:"msg_type"`
	Date     string      `json:"date,omitempty"`
	Version  string      `json:"version,omitempty"`
}

// Message is a decoded protocol message. Identities route replies on ROUTER
// sockets; Content stays raw until a handler decodes it.
type Message struct {
	Identities   [][]byte
	Header       Header
	ParentHeader Header
	Metadata     map[string]any
	Content      json.RawMessage
	Buffers      [][]byte
}

// Type returns the message type from the header.
func (m Message) Type() MessageType { return m.Header.MsgType }

// DecodeContent unmarshals the content into v.
func (m Message) DecodeContent(v any) error {
	if len(m.Content) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	if err := json.Unmarshal(m.Content, v); err != nil {
		return fmt.Errorf("decode %s content: %w", m.Header.MsgType, err)
	}
	return nil
}

// Codec builds, signs, encodes and decodes messages for one kernel session.
type Codec struct {
	key      []byte
	session  string
	username string
	now      func() time.Time
	newID    func() string
}

// NewCodec returns a codec signing with key. An empty key disables signing.
// The scheme must be empty or hmac-sha256.
func NewCodec(key, scheme, username string) (*Codec, error) {
	scheme = strings.TrimSpace(scheme)
	if scheme != "" && !strings.EqualFold(scheme, SchemeHMACSHA256) {
		return nil, fmt.Errorf("unsupported signature scheme %q", scheme)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		username = "kernel"
	}
	return &Codec{
		key:      []byte(key),
		session:  uuid.NewString(),
		username: username,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

// Session returns the session id stamped on every header.
func (c *Codec) Session() string { return c.session }

// NewMessage builds a message of msgType with content, replying to parent
// when parent is non-nil. The parent header is copied and its identities are
// reused for routing.
func (c *Codec) NewMessage(msgType MessageType, content any, parent *Message) (Message, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s content: %w", msgType, err)
	}
	msg := Message{
		Header: Header{
			MsgID:    c.newID(),
			Username: c.username,
			Session:  c.session,
			MsgType:  msgType,
			Date:     c.now().UTC().Format(time.RFC3339),
			Version:  ProtocolVersion,
		},
		Metadata: map[string]any{},
		Content:  raw,
	}
	if parent != nil {
		msg.ParentHeader = parent.Header
		msg.Identities = parent.Identities
	}
	return msg, nil
}

// Encode lays msg out as frames: identities, delimiter, signature, header,
// parent header, metadata, content, then any buffers.
func (c *Codec) Encode(msg Message) ([][]byte, error) {
	parts, err := encodeParts(msg)
	if err != nil {
		return nil, err
	}
	frames := make([][]byte, 0, len(msg.Identities)+6+len(msg.Buffers))
	frames = append(frames, msg.Identities...)
	frames = append(frames, []byte(Delimiter), []byte(c.sign(parts)))
	frames = append(frames, parts...)
	frames = append(frames, msg.Buffers...)
	return frames, nil
}

// Decode parses frames produced by a peer. When a key is configured the
// signature must match.
func (c *Codec) Decode(frames [][]byte) (Message, error) {
	delim := -1
	for i, frame := range frames {
		if bytes.Equal(frame, []byte(Delimiter)) {
			delim = i
			break
		}
	}
	if delim < 0 {
		return Message{}, fmt.Errorf("%w: missing %s delimiter", ErrMalformedMessage, Delimiter)
	}
	if len(frames) < delim+6 {
		return Message{}, fmt.Errorf("%w: expected 5 frames after delimiter, got %d", ErrMalformedMessage, len(frames)-delim-1)
	}
	signature := string(frames[delim+1])
	parts := frames[delim+2 : delim+6]
	if len(c.key) > 0 {
		want := c.sign(parts)
		if !hmac.Equal([]byte(signature), []byte(want)) {
			return Message{}, ErrInvalidSignature
		}
	}

	msg := Message{
		Identities: copyFrames(frames[:delim]),
		Content:    json.RawMessage(append([]byte(nil), parts[3]...)),
		Buffers:    copyFrames(frames[delim+6:]),
	}
	if err := json.Unmarshal(parts[0], &msg.Header); err != nil {
		return Message{}, fmt.Errorf("%w: header: %v", ErrMalformedMessage, err)
	}
	if err := unmarshalOptional(parts[1], &msg.ParentHeader); err != nil {
		return Message{}, fmt.Errorf("%w: parent header: %v", ErrMalformedMessage, err)
	}
	if err := unmarshalOptional(parts[2], &msg.Metadata); err != nil {
		return Message{}, fmt.Errorf("%w: metadata: %v", ErrMalformedMessage, err)
	}
	if msg.Header.MsgType == "" {
		return Message{}, fmt.Errorf("%w: header has no msg_type", ErrMalformedMessage)
	}
	return msg, nil
}

// sign returns the hex HMAC-SHA256 of parts, or "" without a key.
func (c *Codec) sign(parts [][]byte) string {
	if len(c.key) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, c.key)
	for _, part := range parts {
		mac.Write(part)
	}
	return hex.EncodeToString(mac.Sum(nil))
}

func encodeParts(msg Message) ([][]byte, error) {
	header, err := json.Marshal(msg.Header)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	parent := []byte("{}")
	if msg.ParentHeader.MsgID != "" {
		if parent, err = json.Marshal(msg.ParentHeader); err != nil {
			return nil, fmt.Errorf("encode parent header: %w", err)
		}
	}
	metadata := []byte("{}")
	if len(msg.Metadata) > 0 {
		if metadata, err = json.Marshal(msg.Metadata); err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
	}
	content := []byte(msg.Content)
	if len(content) == 0 {
		content = []byte("{}")
	}
	return [][]byte{header, parent, metadata, content}, nil
}

func unmarshalOptional(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func copyFrames(frames [][]byte) [][]byte {
	if len(frames) == 0 {
		return nil
	}
	out := make([][]byte, len(frames))
	for i, frame := range frames {
		out[i] = append([]byte(nil), frame...)
	}
	return out
}
