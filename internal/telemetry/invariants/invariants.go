// Package invariants reports kernel invariant violations as span events.
package invariants

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// InvariantStateTransitionLegal requires lifecycle transitions to follow the kernel state machine.
	InvariantStateTransitionLegal = "state_transition_legal"
	// InvariantReplyOrdering requires busy, then outputs, then the reply, then idle for every request.
	InvariantReplyOrdering = "reply_ordering"
	// InvariantExecutionCountMonotonic requires the execution count not to move backwards.
	InvariantExecutionCountMonotonic = "execution_count_monotonic"
	// InvariantMessageSigned requires incoming messages to carry a valid signature.
	InvariantMessageSigned = "message_signed"
)

const (
	// SeverityWarn is used for non-fatal invariant violations.
	SeverityWarn = "warn"
	// SeverityError is used for fatal invariant violations.
	SeverityError = "error"
)

var invariantChecksEnabled atomic.Bool

func init() {
	invariantChecksEnabled.Store(true)
}

// ViolationDetails captures invariant violation context for telemetry events.
type ViolationDetails struct {
	WhatInvariant string
	WhereDetected string
	WhyViolated   string
	StackTrace    string
	Additional    map[string]string
}

// SetEnabled globally enables or disables invariant checks.
func SetEnabled(enabled bool) {
	invariantChecksEnabled.Store(enabled)
}

// Enabled reports whether invariant checks are currently enabled.
func Enabled() bool {
	return invariantChecksEnabled.Load()
}

// InvariantViolation emits an invariant.violation telemetry event on the active span.
// If the context has no active span, a short synthetic span is created for observability.
func InvariantViolation(
	ctx context.Context,
	invariantName string,
	severity string,
	details ViolationDetails,
) {
	if !Enabled() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	invariantName = strings.TrimSpace(invariantName)
	if invariantName == "" {
		invariantName = "unknown_invariant"
	}
	severity = normalizeSeverity(severity)

	attrs := []attribute.KeyValue{
		attribute.String("invariant_name", invariantName),
		attribute.String("severity", severity),
		attribute.String("what_invariant", strings.TrimSpace(details.WhatInvariant)),
		attribute.String("where_detected", strings.TrimSpace(details.WhereDetected)),
		attribute.String("why_violated", strings.TrimSpace(details.WhyViolated)),
	}
	if stack := strings.TrimSpace(details.StackTrace); stack != "" {
		attrs = append(attrs, attribute.String("stack_trace", stack))
	}

	if len(details.Additional) > 0 {
		keys := make([]string, 0, len(details.Additional))
		for key := range details.Additional {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			value := strings.TrimSpace(details.Additional[key])
			if value == "" {
				continue
			}
			attrs = append(attrs, attribute.String("context."+key, value))
		}
	}

	span := trace.SpanFromContext(ctx)
	if span != nil && span.SpanContext().IsValid() {
		span.AddEvent("invariant.violation", trace.WithAttributes(attrs...))
		return
	}

	_, temporarySpan := otel.Tracer("gomathics/invariants").Start(ctx, "invariant.violation")
	defer temporarySpan.End()
	temporarySpan.AddEvent("invariant.violation", trace.WithAttributes(attrs...))
}

// CheckStateTransitionLegal validates the state_transition_legal invariant.
func CheckStateTransitionLegal(
	ctx context.Context,
	whereDetected string,
	entityType string,
	fromState string,
	toState string,
	legal bool,
) bool {
	if legal {
		return true
	}
	InvariantViolation(ctx, InvariantStateTransitionLegal, SeverityError, ViolationDetails{
		WhatInvariant: "state machine transition is legal",
		WhereDetected: whereDetected,
		WhyViolated:   fmt.Sprintf("illegal transition for entity=%s from=%s to=%s", entityType, fromState, toState),
		Additional: map[string]string{
			"entity_type": strings.TrimSpace(entityType),
			"from_state":  strings.TrimSpace(fromState),
			"to_state":    strings.TrimSpace(toState),
		},
	})
	return false
}

// CheckReplyOrdering validates the reply_ordering invariant. sequence lists
// the message types sent for one request; why is empty when it is valid.
func CheckReplyOrdering(ctx context.Context, whereDetected string, msgType string, sequence []string, why string) bool {
	if strings.TrimSpace(why) == "" {
		return true
	}
	InvariantViolation(ctx, InvariantReplyOrdering, SeverityError, ViolationDetails{
		WhatInvariant: "busy precedes outputs, outputs precede the reply, idle comes last",
		WhereDetected: whereDetected,
		WhyViolated:   why,
		Additional: map[string]string{
			"msg_type": msgType,
			"sequence": strings.Join(sequence, ","),
		},
	})
	return false
}

// CheckExecutionCountMonotonic validates the execution_count_monotonic
// invariant. Inputs may reassign $Line, so a violation is only a warning.
func CheckExecutionCountMonotonic(ctx context.Context, whereDetected string, before, after int) bool {
	if after >= before {
		return true
	}
	InvariantViolation(ctx, InvariantExecutionCountMonotonic, SeverityWarn, ViolationDetails{
		WhatInvariant: "execution count does not decrease",
		WhereDetected: whereDetected,
		WhyViolated:   fmt.Sprintf("execution count moved from %d to %d", before, after),
		Additional: map[string]string{
			"before": fmt.Sprintf("%d", before),
			"after":  fmt.Sprintf("%d", after),
		},
	})
	return false
}

// CheckMessageSigned validates the message_signed invariant.
func CheckMessageSigned(ctx context.Context, whereDetected string, signed bool, why string) bool {
	if signed {
		return true
	}
	InvariantViolation(ctx, InvariantMessageSigned, SeverityWarn, ViolationDetails{
		WhatInvariant: "incoming message signature matches the connection key",
		WhereDetected: whereDetected,
		WhyViolated:   firstNonEmpty(why, "signature mismatch"),
	})
	return false
}

func normalizeSeverity(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case SeverityWarn:
		return SeverityWarn
	case SeverityError:
		return SeverityError
	default:
		return SeverityError
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
