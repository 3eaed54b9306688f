// Package doctor watches a running kernel: it periodically publishes a
// health report and flags evaluations that stay busy past a threshold.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mathics/gomathics/internal/events"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultStuckTimeout      = 5 * time.Minute
)

// Snapshot is the kernel state inspected on each check.
type Snapshot struct {
	KernelID string
	State    string
	// Beats is the number of heartbeat echoes so far.
	Beats   int64
	Handled int64
	// Request is the msg_id being handled, empty when idle.
	Request   string
	BusySince time.Time
}

// Source reports the current kernel snapshot.
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// EventBus publishes health and alert events.
type EventBus interface {
	Publish(event events.Event)
}

// Config controls the check cadence and the stuck threshold.
type Config struct {
	HeartbeatInterval time.Duration
	StuckTimeout      time.Duration
}

// HealthReport is emitted on every check.
type HealthReport struct {
	State           string        `json:"state"`
	Beats           int64         `json:"beats"`
	NewBeats        int64         `json:"new_beats"`
	Handled         int64         `json:"handled"`
	Request         string        `json:"request,omitempty"`
	BusyFor         time.Duration `json:"busy_for"`
	Stuck           bool          `json:"stuck"`
	DoctorHeartbeat time.Time     `json:"doctor_heartbeat"`
}

// Manager runs health checks on a ticker.
type Manager struct {
	source            Source
	bus               EventBus
	heartbeatInterval time.Duration
	stuckTimeout      time.Duration
	now               func() time.Time
	newTicker         func(time.Duration) *time.Ticker

	mu            sync.Mutex
	lastBeats     int64
	reportedStuck string
}

// NewManager builds a Manager, filling in default intervals.
func NewManager(source Source, bus EventBus, cfg Config) (*Manager, error) {
	if source == nil {
		return nil, errors.New("snapshot source is required")
	}
	if bus == nil {
		return nil, errors.New("event bus is required")
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.StuckTimeout <= 0 {
		cfg.StuckTimeout = defaultStuckTimeout
	}
	return &Manager{
		source:            source,
		bus:               bus,
		heartbeatInterval: cfg.HeartbeatInterval,
		stuckTimeout:      cfg.StuckTimeout,
		now:               time.Now,
		newTicker:         time.NewTicker,
	}, nil
}

// Start runs checks until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	if m == nil {
		return
	}
	ticker := m.newTicker(m.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.RunOnce(ctx); err != nil {
				m.bus.Publish(events.Event{
					Type:       events.EventTypeSystemAlert,
					Timestamp:  m.now().UTC(),
					EntityType: "health",
					EntityID:   "doctor",
					Payload: map[string]string{
						"error": err.Error(),
					},
					Severity: events.SeverityError,
				})
			}
		}
	}
}

// RunOnce executes one check and publishes its report. A request that has
// been busy longer than the stuck timeout raises one alert per request.
func (m *Manager) RunOnce(ctx context.Context) (HealthReport, error) {
	if m == nil {
		return HealthReport{}, errors.New("doctor manager is nil")
	}

	snapshot, err := m.source.Snapshot(ctx)
	if err != nil {
		return HealthReport{}, fmt.Errorf("load kernel snapshot: %w", err)
	}

	now := m.now().UTC()
	report := HealthReport{
		State:           snapshot.State,
		Beats:           snapshot.Beats,
		Handled:         snapshot.Handled,
		Request:         strings.TrimSpace(snapshot.Request),
		DoctorHeartbeat: now,
	}
	if report.Request != "" && !snapshot.BusySince.IsZero() {
		report.BusyFor = now.Sub(snapshot.BusySince.UTC())
		report.Stuck = report.BusyFor > m.stuckTimeout
	}

	m.mu.Lock()
	report.NewBeats = snapshot.Beats - m.lastBeats
	m.lastBeats = snapshot.Beats
	alertStuck := report.Stuck && m.reportedStuck != report.Request
	if alertStuck {
		m.reportedStuck = report.Request
	}
	m.mu.Unlock()

	if alertStuck {
		m.bus.Publish(events.Event{
			Type:       events.EventTypeSystemAlert,
			Timestamp:  now,
			EntityType: "request",
			EntityID:   report.Request,
			Payload: map[string]string{
				"reason":   "evaluation exceeded stuck timeout",
				"busy_for": report.BusyFor.String(),
			},
			Severity: events.SeverityWarn,
		})
	}

	m.bus.Publish(events.Event{
		Type:       events.EventTypeHealthCheck,
		Timestamp:  now,
		EntityType: "kernel",
		EntityID:   snapshot.KernelID,
		Payload:    report,
		Severity:   events.SeverityInfo,
	})

	return report, nil
}
