package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxErrorMessageBytes = 512

var (
	sensitiveInlinePattern = regexp.MustCompile(`(?i)(api[_-]?key|token|password|secret|authorization)\s*[:=]\s*([^\s,;]+)`)
	bearerTokenPattern     = regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9._\-]+`)
)

// RequestInfo describes one shell request handled by the kernel.
type RequestInfo struct {
	MsgType string
	MsgID   string
	// Code is hashed, never recorded verbatim.
	Code string
}

// Request tracks one kernel.handle span lifecycle.
type Request struct {
	span      trace.Span
	startedAt time.Time

	mu       sync.Mutex
	outputs  int
	messages int
	ended    bool
}

type requestContextKey struct{}

// StartRequest starts a kernel.handle span and returns a context carrying
// the tracker.
func StartRequest(ctx context.Context, info RequestInfo) (context.Context, *Request) {
	if ctx == nil {
		ctx = context.Background()
	}

	attrs := []attribute.KeyValue{
		attribute.String("msg_type", normalizeOrUnknown(info.MsgType)),
		attribute.String("msg_id", normalizeOrUnknown(info.MsgID)),
	}
	if info.Code != "" {
		attrs = append(attrs,
			attribute.String("code_hash", hashCode(info.Code)),
			attribute.Int("code_lines", strings.Count(info.Code, "\n")+1),
		)
	}

	spanCtx, span := otel.Tracer("gomathics/kernel").Start(
		ctx,
		"kernel.handle",
		trace.WithAttributes(attrs...),
	)

	req := &Request{
		span:      span,
		startedAt: time.Now(),
	}
	return context.WithValue(spanCtx, requestContextKey{}, req), req
}

// RequestFromContext returns the request tracker if one exists on the context.
func RequestFromContext(ctx context.Context) *Request {
	if ctx == nil {
		return nil
	}
	req, ok := ctx.Value(requestContextKey{}).(*Request)
	if !ok {
		return nil
	}
	return req
}

// RecordOutput adds a kernel.output event for one message published on
// iopub.
func (r *Request) RecordOutput(msgType string) {
	if r == nil || r.span == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return
	}
	r.outputs++
	r.span.AddEvent("kernel.output", trace.WithAttributes(
		attribute.String("msg_type", normalizeOrUnknown(msgType)),
	))
}

// RecordMessage adds a kernel.message event for one evaluation message.
func (r *Request) RecordMessage(name string, text string) {
	if r == nil || r.span == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return
	}
	r.messages++
	r.span.AddEvent("kernel.message", trace.WithAttributes(
		attribute.String("message_name", normalizeOrUnknown(name)),
		attribute.String("message_text", redactSecrets(text)),
	))
}

// End finalizes the kernel.handle span with latency, reply status and the
// execution count.
func (r *Request) End(status string, executionCount int, err error) {
	if r == nil || r.span == nil {
		return
	}

	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return
	}
	r.ended = true
	outputs := r.outputs
	messages := r.messages
	r.mu.Unlock()

	durationMS := time.Since(r.startedAt).Milliseconds()
	if durationMS < 0 {
		durationMS = 0
	}

	r.span.SetAttributes(
		attribute.Int64("latency_ms", durationMS),
		attribute.String("status", normalizeOrUnknown(status)),
		attribute.Int("execution_count", executionCount),
		attribute.Int("outputs_count", outputs),
		attribute.Int("messages_count", messages),
	)

	switch {
	case err != nil:
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, redactSecrets(err.Error()))
	case status == "error":
		r.span.SetStatus(codes.Error, "evaluation reported errors")
	default:
		r.span.SetStatus(codes.Ok, "request handled")
	}
	r.span.End()
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func redactSecrets(input string) string {
	redacted := strings.TrimSpace(input)
	if redacted == "" {
		return ""
	}
	redacted = sensitiveInlinePattern.ReplaceAllString(redacted, "$1=<redacted>")
	redacted = bearerTokenPattern.ReplaceAllString(redacted, "bearer <redacted>")
	if len(redacted) > maxErrorMessageBytes {
		return redacted[:maxErrorMessageBytes-len("...[truncated]")] + "...[truncated]"
	}
	return redacted
}

func normalizeOrUnknown(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
