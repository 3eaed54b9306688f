// Package kernel bridges the frontend messaging protocol to a session: it
// binds the shell, iopub, stdin and heartbeat endpoints, dispatches shell
// requests by message type and publishes status and results on iopub.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/mathics/gomathics/internal/config"
	"github.com/mathics/gomathics/internal/doctor"
	"github.com/mathics/gomathics/internal/events"
	"github.com/mathics/gomathics/internal/history"
	"github.com/mathics/gomathics/internal/logging"
	"github.com/mathics/gomathics/internal/protocol"
	"github.com/mathics/gomathics/internal/session"
	"github.com/mathics/gomathics/internal/state"
	"github.com/mathics/gomathics/internal/telemetry"
	"github.com/mathics/gomathics/internal/telemetry/invariants"
)

const (
	// Language is reported in kernel_info_reply.
	Language = "mathics"
	// Implementation names this kernel in kernel_info_reply.
	Implementation = "gomathics"

	sentMessageLimit = 1024
)

var (
	// ProtocolVersion is the frontend protocol version the kernel speaks.
	ProtocolVersion = []int{1, 1, 0}
	// LanguageVersion is the version of the language the kernel evaluates.
	LanguageVersion = []int{0, 6}
)

// ErrUnknownMessageType is returned by Dispatch for a well-formed message
// whose type has no handler. The receive loop logs it and continues.
var ErrUnknownMessageType = errors.New("unknown message type")

// HistoryReader serves history_request.
type HistoryReader interface {
	Tail(ctx context.Context, n int) ([]history.Entry, error)
}

// Bus is the event bus the kernel publishes lifecycle events on.
type Bus interface {
	Publish(event events.Event)
}

type handler func(ctx context.Context, req protocol.Message) (string, error)

// Option configures a Kernel.
type Option func(*Kernel)

// WithLogger sets the kernel logger.
func WithLogger(logger *log.Logger) Option {
	return func(k *Kernel) {
		if logger != nil {
			k.logger = logger
		}
	}
}

// WithSocketFactory replaces the ZeroMQ socket factory.
func WithSocketFactory(factory SocketFactory) Option {
	return func(k *Kernel) {
		if factory != nil {
			k.newSocket = factory
		}
	}
}

// WithBus publishes lifecycle events on bus.
func WithBus(bus Bus) Option {
	return func(k *Kernel) {
		if bus != nil {
			k.bus = bus
		}
	}
}

// WithHistory serves history_request from reader.
func WithHistory(reader HistoryReader) Option {
	return func(k *Kernel) {
		k.history = reader
	}
}

// WithSessionOptions configures the session built during Start.
func WithSessionOptions(opts ...session.Option) Option {
	return func(k *Kernel) {
		k.sessionOpts = append(k.sessionOpts, opts...)
	}
}

// WithVersion sets the implementation version reported in kernel_info_reply.
func WithVersion(version string) Option {
	return func(k *Kernel) {
		if version = strings.TrimSpace(version); version != "" {
			k.version = version
		}
	}
}

// Kernel serves one frontend connection. Requests are handled one at a time
// on the goroutine that calls Serve.
type Kernel struct {
	conn        *config.Connection
	codec       *protocol.Codec
	newSocket   SocketFactory
	logger      *log.Logger
	bus         Bus
	machine     *state.Machine
	sent        *protocol.InMemoryStore
	history     HistoryReader
	sessionOpts []session.Option
	version     string
	handlers    map[protocol.MessageType]handler

	session   *session.Session
	heartbeat *Heartbeat
	sockets   []Socket
	shell     Socket
	iopub     Socket
	stdin     Socket

	mu        sync.Mutex
	inFlight  context.CancelFunc
	closed    bool
	busyID    string
	busySince time.Time
	handled   int64
}

// New builds a kernel for conn. Nothing is bound until Start.
func New(conn *config.Connection, opts ...Option) (*Kernel, error) {
	if conn == nil {
		return nil, errors.New("connection is required")
	}
	codec, err := protocol.NewCodec(conn.Key, conn.SignatureScheme, Implementation)
	if err != nil {
		return nil, fmt.Errorf("create codec: %w", err)
	}

	k := &Kernel{
		conn:      conn,
		codec:     codec,
		newSocket: ZMQSockets,
		logger:    logging.Discard(),
		bus:       events.New(),
		sent:      protocol.NewInMemoryStore(sentMessageLimit),
		version:   "dev",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(k)
		}
	}

	machine, err := state.NewMachine(k.bus, Implementation)
	if err != nil {
		return nil, fmt.Errorf("create state machine: %w", err)
	}
	k.machine = machine

	k.handlers = map[protocol.MessageType]handler{
		protocol.KernelInfoRequest: k.handleKernelInfo,
		protocol.ExecuteRequest:    k.handleExecute,
		protocol.HistoryRequest:    k.handleHistory,
	}
	return k, nil
}

// Session returns the session built by Start, or nil before it.
func (k *Kernel) Session() *session.Session { return k.session }

// State returns the kernel lifecycle state.
func (k *Kernel) State() string {
	return k.machine.Current(state.EntityKernel, k.codec.Session())
}

// Run starts the kernel and serves requests until ctx is cancelled.
func (k *Kernel) Run(ctx context.Context) error {
	defer k.Close()
	if err := k.Start(ctx); err != nil {
		return err
	}
	return k.Serve(ctx)
}

// Start binds the heartbeat, shell, iopub and stdin endpoints in that order,
// announces starting, builds the session and announces idle. Any bind
// failure is returned and the kernel must not be used.
func (k *Kernel) Start(ctx context.Context) error {
	if err := k.machine.Advance(ctx, state.EntityKernel, k.codec.Session(), state.KernelBinding, "bind endpoints"); err != nil {
		return err
	}

	hb, err := k.bind(ctx, SocketRep, "heartbeat", k.conn.HBPort)
	if err != nil {
		return err
	}
	heartbeat := NewHeartbeat(hb, k.bus, k.logger)
	k.mu.Lock()
	k.heartbeat = heartbeat
	k.mu.Unlock()
	go func() {
		if err := heartbeat.Serve(ctx); err != nil {
			k.logger.Error("heartbeat stopped", "error", err)
		}
	}()

	if k.shell, err = k.bind(ctx, SocketRouter, "shell", k.conn.ShellPort); err != nil {
		return err
	}
	if k.iopub, err = k.bind(ctx, SocketPub, "iopub", k.conn.IOPubPort); err != nil {
		return err
	}
	if k.stdin, err = k.bind(ctx, SocketRouter, "stdin", k.conn.StdinPort); err != nil {
		return err
	}

	k.advanceKernel(ctx, state.KernelInitializing, "endpoints bound")
	if err := k.publishStatus(ctx, nil, protocol.StateStarting); err != nil {
		return err
	}

	k.session = session.New(k.sessionOpts...)
	k.logger.Info("kernel started",
		"session", k.codec.Session(),
		"execution_count", k.session.ExecutionCount(),
		"shell", k.conn.Endpoint(k.conn.ShellPort),
	)

	k.advanceKernel(ctx, state.KernelIdle, "session ready")
	return k.publishStatus(ctx, nil, protocol.StateIdle)
}

func (k *Kernel) bind(ctx context.Context, kind SocketKind, name string, port int) (Socket, error) {
	sock, err := k.newSocket(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("create %s socket: %w", name, err)
	}
	endpoint := k.conn.Endpoint(port)
	if err := sock.Listen(endpoint); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("bind %s on %s: %w", name, endpoint, err)
	}
	k.sockets = append(k.sockets, sock)
	k.logger.Debug("endpoint bound", "name", name, "endpoint", endpoint)
	return sock, nil
}

// Serve receives shell requests and handles them until the shell socket
// fails. A failure after ctx is cancelled returns nil. Undecodable messages
// and unknown message types are logged and skipped.
func (k *Kernel) Serve(ctx context.Context) error {
	if k.shell == nil {
		return errors.New("kernel is not started")
	}
	for {
		frames, err := k.shell.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive on shell: %w", err)
		}
		if len(frames) == 0 {
			continue
		}

		req, err := k.codec.Decode(frames)
		if err != nil {
			if errors.Is(err, protocol.ErrInvalidSignature) {
				invariants.CheckMessageSigned(ctx, "kernel.Serve", false, err.Error())
			}
			k.logger.Warn("skip undecodable message", "error", err)
			k.alert(err.Error())
			continue
		}

		if err := k.Dispatch(ctx, req); err != nil {
			if errors.Is(err, ErrUnknownMessageType) {
				k.logger.Warn("unhandled message", "msg_type", req.Type(), "msg_id", req.Header.MsgID)
				continue
			}
			k.logger.Error("handle message", "msg_type", req.Type(), "msg_id", req.Header.MsgID, "error", err)
		}
	}
}

// Dispatch handles one decoded request: busy status, the handler's outputs
// and reply, then idle status.
func (k *Kernel) Dispatch(ctx context.Context, req protocol.Message) error {
	handle, ok := k.handlers[req.Type()]
	if !ok {
		k.alert(fmt.Sprintf("unknown message type %q", req.Type()))
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, req.Type())
	}
	if k.session == nil {
		return errors.New("kernel is not started")
	}
	if strings.TrimSpace(req.Header.MsgID) == "" {
		req.Header.MsgID = uuid.NewString()
	}
	id := req.Header.MsgID

	ctx, span := telemetry.StartRequest(ctx, telemetry.RequestInfo{
		MsgType: string(req.Type()),
		MsgID:   id,
		Code:    codeOf(req),
	})

	k.setBusy(id)
	defer k.setBusy("")

	k.advance(ctx, state.EntityRequest, id, state.RequestBusy, string(req.Type()))
	k.advanceKernel(ctx, state.KernelBusy, string(req.Type()))
	if err := k.publishStatus(ctx, &req, protocol.StateBusy); err != nil {
		span.End("", k.session.ExecutionCount(), err)
		return err
	}

	status, err := handle(ctx, req)
	k.advance(ctx, state.EntityRequest, id, state.RequestReplied, status)

	if idleErr := k.publishStatus(ctx, &req, protocol.StateIdle); idleErr != nil && err == nil {
		err = idleErr
	}
	k.advanceKernel(ctx, state.KernelIdle, string(req.Type()))
	k.advance(ctx, state.EntityRequest, id, state.RequestDone, status)
	k.checkOrdering(ctx, req)

	span.End(status, k.session.ExecutionCount(), err)
	k.bus.Publish(events.Event{
		Type:       events.EventTypeRequestHandled,
		Timestamp:  time.Now().UTC(),
		EntityType: string(state.EntityRequest),
		EntityID:   id,
		Payload:    map[string]any{"msg_type": string(req.Type()), "status": status},
		Severity:   severityOf(status, err),
	})
	return err
}

// Interrupt aborts the evaluation in flight, if any. The aborted request
// still gets its reply.
func (k *Kernel) Interrupt() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.inFlight == nil {
		return false
	}
	k.inFlight()
	k.logger.Info("evaluation interrupted")
	return true
}

// Snapshot reports the lifecycle state, heartbeat count and the request in
// flight for health checks.
func (k *Kernel) Snapshot(context.Context) (doctor.Snapshot, error) {
	snapshot := doctor.Snapshot{
		KernelID: k.codec.Session(),
		State:    k.State(),
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.heartbeat != nil {
		snapshot.Beats = k.heartbeat.Beats()
	}
	snapshot.Handled = k.handled
	snapshot.Request = k.busyID
	snapshot.BusySince = k.busySince
	return snapshot, nil
}

func (k *Kernel) setBusy(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.busyID = id
	if id == "" {
		k.busySince = time.Time{}
		k.handled++
		return
	}
	k.busySince = time.Now()
}

func (k *Kernel) setInFlight(cancel context.CancelFunc) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.inFlight = cancel
}

// Close releases every bound socket and marks the kernel terminated.
func (k *Kernel) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	k.mu.Unlock()

	var errs []error
	for _, sock := range k.sockets {
		if err := sock.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if k.State() != state.KernelUnstarted {
		k.advanceKernel(context.Background(), state.KernelTerminated, "closed")
	}
	return errors.Join(errs...)
}

func (k *Kernel) publishStatus(ctx context.Context, parent *protocol.Message, executionState string) error {
	if err := k.publish(ctx, parent, protocol.Status, protocol.StatusContent{ExecutionState: executionState}); err != nil {
		return err
	}
	k.bus.Publish(events.Event{
		Type:       events.EventTypeKernelStatus,
		Timestamp:  time.Now().UTC(),
		EntityType: string(state.EntityKernel),
		EntityID:   k.codec.Session(),
		Payload:    executionState,
		Severity:   events.SeverityInfo,
	})
	return nil
}

// publish broadcasts one message on iopub.
func (k *Kernel) publish(ctx context.Context, parent *protocol.Message, msgType protocol.MessageType, content any) error {
	msg, err := k.codec.NewMessage(msgType, content, parent)
	if err != nil {
		return err
	}
	msg.Identities = [][]byte{[]byte(msgType)}
	return k.send(ctx, k.iopub, msg)
}

// reply answers req on shell, routed to the requester's identities.
func (k *Kernel) reply(ctx context.Context, req protocol.Message, msgType protocol.MessageType, content any) error {
	msg, err := k.codec.NewMessage(msgType, content, &req)
	if err != nil {
		return err
	}
	return k.send(ctx, k.shell, msg)
}

func (k *Kernel) send(ctx context.Context, sock Socket, msg protocol.Message) error {
	frames, err := k.codec.Encode(msg)
	if err != nil {
		return err
	}
	if err := sock.Send(frames); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type(), err)
	}
	if err := k.sent.Append(ctx, msg); err != nil {
		k.logger.Warn("record sent message", "msg_type", msg.Type(), "error", err)
	}
	telemetry.RequestFromContext(ctx).RecordOutput(string(msg.Type()))
	return nil
}

// checkOrdering verifies busy, outputs, reply, idle for one request and
// forgets its sent messages.
func (k *Kernel) checkOrdering(ctx context.Context, req protocol.Message) {
	id := req.Header.MsgID
	defer k.sent.Forget(id)

	sent, err := k.sent.ListByParent(ctx, id)
	if err != nil {
		k.logger.Warn("list sent messages", "msg_id", id, "error", err)
		return
	}
	sequence := make([]string, 0, len(sent))
	for _, msg := range sent {
		sequence = append(sequence, sequenceName(msg))
	}
	why := ""
	if err := state.ValidateRequestSequence(id, sequence); err != nil {
		why = err.Error()
		k.logger.Error("reply ordering violated", "msg_id", id, "error", err)
	}
	invariants.CheckReplyOrdering(ctx, "kernel.Dispatch", string(req.Type()), sequence, why)
}

func sequenceName(msg protocol.Message) string {
	if msg.Type() != protocol.Status {
		return string(msg.Type())
	}
	var content protocol.StatusContent
	if err := msg.DecodeContent(&content); err != nil {
		return string(msg.Type())
	}
	return string(protocol.Status) + ":" + content.ExecutionState
}

func (k *Kernel) advanceKernel(ctx context.Context, to, reason string) {
	k.advance(ctx, state.EntityKernel, k.codec.Session(), to, reason)
}

func (k *Kernel) advance(ctx context.Context, entityType state.EntityType, id, to, reason string) {
	if err := k.machine.Advance(ctx, entityType, id, to, reason); err != nil {
		k.logger.Warn("state transition rejected", "entity_type", entityType, "entity_id", id, "to", to, "error", err)
	}
}

func (k *Kernel) alert(reason string) {
	k.bus.Publish(events.Event{
		Type:       events.EventTypeSystemAlert,
		Timestamp:  time.Now().UTC(),
		EntityType: string(state.EntityKernel),
		EntityID:   k.codec.Session(),
		Payload:    reason,
		Severity:   events.SeverityWarn,
	})
}

func codeOf(req protocol.Message) string {
	if req.Type() != protocol.ExecuteRequest {
		return ""
	}
	var content protocol.ExecuteRequestContent
	if err := req.DecodeContent(&content); err != nil {
		return ""
	}
	return content.Code
}

func severityOf(status string, err error) string {
	switch {
	case err != nil:
		return events.SeverityError
	case status == protocol.StatusError:
		return events.SeverityWarn
	default:
		return events.SeverityInfo
	}
}
