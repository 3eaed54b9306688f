// Package state holds the kernel lifecycle state machines.
package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mathics/gomathics/internal/events"
	"github.com/mathics/gomathics/internal/telemetry/invariants"
)

// EntityType identifies which state machine to evaluate.
type EntityType string

const (
	// EntityKernel is the kernel process lifecycle.
	EntityKernel EntityType = "kernel"
	// EntityRequest is the lifecycle of one shell request.
	EntityRequest EntityType = "request"
)

const (
	KernelUnstarted    = "unstarted"
	KernelBinding      = "binding"
	KernelInitializing = "initializing"
	KernelIdle         = "idle"
	KernelBusy         = "busy"
	KernelTerminated   = "terminated"
)

const (
	RequestReceived = "received"
	RequestBusy     = "busy"
	RequestReplied  = "replied"
	RequestDone     = "done"
)

var allowedTransitions = map[EntityType]map[string]map[string]struct{}{
	EntityKernel: {
		KernelUnstarted: {
			KernelBinding: {},
		},
		KernelBinding: {
			KernelInitializing: {},
		},
		KernelInitializing: {
			KernelIdle: {},
		},
		KernelIdle: {
			KernelBusy: {},
		},
		KernelBusy: {
			KernelIdle: {},
		},
	},
	EntityRequest: {
		RequestReceived: {
			RequestBusy: {},
		},
		RequestBusy: {
			RequestReplied: {},
		},
		RequestReplied: {
			RequestDone: {},
		},
	},
}

// initialStates is where Advance starts for an entity it has not seen.
var initialStates = map[EntityType]string{
	EntityKernel:  KernelUnstarted,
	EntityRequest: RequestReceived,
}

// Publisher receives one event per accepted transition.
type Publisher interface {
	Publish(event events.Event)
}

// Option configures Machine construction.
type Option func(*Machine)

// WithTracer configures the tracer used for state transition spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(machine *Machine) {
		if tracer == nil {
			return
		}
		machine.tracer = tracer
	}
}

// TransitionRecord stores transition metadata for local history.
type TransitionRecord struct {
	EntityType EntityType
	EntityID   string
	FromState  string
	ToState    string
	Reason     string
	Actor      string
	Timestamp  time.Time
}

// IllegalTransitionError is returned for a disallowed transition.
type IllegalTransitionError struct {
	EntityType EntityType
	EntityID   string
	FromState  string
	ToState    string
	Reason     string
}

func (e *IllegalTransitionError) Error() string {
	reason := strings.TrimSpace(e.Reason)
	if reason == "" {
		reason = "illegal transition for entity lifecycle"
	}
	return fmt.Sprintf(
		"cannot transition %s %q from %q to %q: %s",
		e.EntityType,
		e.EntityID,
		e.FromState,
		e.ToState,
		reason,
	)
}

// Is enables errors.Is checks for illegal transition failures.
func (e *IllegalTransitionError) Is(target error) bool {
	_, ok := target.(*IllegalTransitionError)
	return ok
}

// Machine validates transitions, tracks current states and publishes every
// accepted transition.
type Machine struct {
	mu        sync.Mutex
	publisher Publisher
	actor     string
	tracer    trace.Tracer
	now       func() time.Time
	current   map[string]string
	history   []TransitionRecord
	// historyLimit bounds history; request entities would otherwise grow it
	// without limit in a long-running kernel.
	historyLimit int
}

const defaultHistoryLimit = 1024

// NewMachine builds a state machine publishing to publisher.
func NewMachine(publisher Publisher, actor string, options ...Option) (*Machine, error) {
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}

	normalizedActor := strings.TrimSpace(actor)
	if normalizedActor == "" {
		normalizedActor = "kernel"
	}

	machine := &Machine{
		publisher:    publisher,
		actor:        normalizedActor,
		tracer:       otel.Tracer("gomathics/state"),
		now:          time.Now,
		current:      map[string]string{},
		history:      []TransitionRecord{},
		historyLimit: defaultHistoryLimit,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(machine)
	}
	if machine.tracer == nil {
		machine.tracer = otel.Tracer("gomathics/state")
	}

	return machine, nil
}

// Current returns the state of an entity, or its initial state when no
// transition has been recorded for it.
func (m *Machine) Current(entityType EntityType, entityID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLocked(entityType, strings.TrimSpace(entityID))
}

func (m *Machine) currentLocked(entityType EntityType, entityID string) string {
	if state, ok := m.current[entityKey(entityType, entityID)]; ok {
		return state
	}
	return initialStates[entityType]
}

// Advance moves an entity from its current state to toState.
func (m *Machine) Advance(ctx context.Context, entityType EntityType, entityID, toState, reason string) error {
	if m == nil {
		return errors.New("machine is nil")
	}
	return m.Transition(ctx, entityType, entityID, m.Current(entityType, entityID), toState, reason)
}

// Transition validates and records one state transition. fromState must
// match the entity's current state.
func (m *Machine) Transition(ctx context.Context, entityType EntityType, entityID, fromState, toState, reason string) error {
	if m == nil {
		return errors.New("machine is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()
	normalizedReason := strings.TrimSpace(reason)

	ctx, span := m.tracer.Start(ctx, "state.transition")
	defer func() {
		span.SetAttributes(attribute.Int64("duration_ms", time.Since(started).Milliseconds()))
		span.End()
	}()

	entityID = strings.TrimSpace(entityID)
	fromState = strings.TrimSpace(fromState)
	toState = strings.TrimSpace(toState)
	span.SetAttributes(
		attribute.String("entity_type", string(entityType)),
		attribute.String("entity_id", entityID),
		attribute.String("from_state", fromState),
		attribute.String("to_state", toState),
		attribute.String("reason", normalizedReason),
	)

	if entityID == "" {
		err := errors.New("entity id must not be empty")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if fromState == "" || toState == "" {
		err := errors.New("from and to states must not be empty")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	m.mu.Lock()
	current := m.currentLocked(entityType, entityID)
	legal := current == fromState && isAllowed(entityType, fromState, toState)
	if !legal {
		m.mu.Unlock()
		invariants.CheckStateTransitionLegal(
			ctx,
			"state.machine.transition",
			string(entityType),
			fromState,
			toState,
			false,
		)
		why := "illegal transition for entity lifecycle"
		if current != fromState {
			why = fmt.Sprintf("entity is %q, not %q", current, fromState)
		}
		err := &IllegalTransitionError{
			EntityType: entityType,
			EntityID:   entityID,
			FromState:  fromState,
			ToState:    toState,
			Reason:     why,
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	record := TransitionRecord{
		EntityType: entityType,
		EntityID:   entityID,
		FromState:  fromState,
		ToState:    toState,
		Reason:     normalizedReason,
		Actor:      m.actor,
		Timestamp:  m.now().UTC(),
	}
	m.recordLocked(record)
	m.mu.Unlock()

	m.publisher.Publish(events.Event{
		Type:       events.EventTypeStateTransition,
		Timestamp:  record.Timestamp,
		EntityType: string(entityType),
		EntityID:   entityID,
		Payload:    record,
		Severity:   events.SeverityInfo,
	})
	span.SetStatus(codes.Ok, "state transition recorded")
	return nil
}

func (m *Machine) recordLocked(record TransitionRecord) {
	key := entityKey(record.EntityType, record.EntityID)
	if isFinal(record.EntityType, record.ToState) && record.EntityType != EntityKernel {
		delete(m.current, key)
	} else {
		m.current[key] = record.ToState
	}
	m.history = append(m.history, record)
	if m.historyLimit > 0 && len(m.history) > m.historyLimit {
		m.history = m.history[len(m.history)-m.historyLimit:]
	}
}

// History returns transition records captured by this machine.
func (m *Machine) History() []TransitionRecord {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TransitionRecord, len(m.history))
	copy(out, m.history)
	return out
}

func isAllowed(entityType EntityType, fromState, toState string) bool {
	if entityType == EntityKernel && toState == KernelTerminated {
		return fromState != KernelTerminated
	}
	entityTransitions, ok := allowedTransitions[entityType]
	if !ok {
		return false
	}
	nextStates, ok := entityTransitions[fromState]
	if !ok {
		return false
	}
	_, ok = nextStates[toState]
	return ok
}

func isFinal(entityType EntityType, state string) bool {
	switch entityType {
	case EntityKernel:
		return state == KernelTerminated
	case EntityRequest:
		return state == RequestDone
	default:
		return false
	}
}

func entityKey(entityType EntityType, entityID string) string {
	return string(entityType) + "/" + entityID
}
