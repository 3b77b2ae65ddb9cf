package reload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/observability"
)

const DefaultInterval = 60 * time.Second

// Source lists every identity that should be enrolled.
type Source interface {
	ListEnrollments(ctx context.Context) ([]models.Enrollment, error)
}

// Rebuilder replaces the gallery from a full listing and reports how many
// identities ended up enrolled.
type Rebuilder interface {
	Rebuild(ctx context.Context, enrollments []models.Enrollment) (int, error)
}

// Status is a point-in-time view of the monitor.
type Status struct {
	Running      bool      `json:"running"`
	KnownCount   int       `json:"known_count"`
	Interval     string    `json:"interval"`
	LastCheck    time.Time `json:"last_check,omitempty"`
	LastReload   time.Time `json:"last_reload,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	Reloads      int       `json:"reloads"`
	FailedChecks int       `json:"failed_checks"`
}

// Monitor polls the identity source and rebuilds the gallery when the
// number of identities grows. Only cardinality is compared, so an edit or
// a remove-plus-add between ticks goes unnoticed until the next growth.
type Monitor struct {
	source       Source
	rebuilder    Rebuilder
	interval     time.Duration
	fetchTimeout time.Duration

	// check serializes ticks and manual checks.
	check sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	status Status
}

func NewMonitor(source Source, rebuilder Rebuilder, interval, fetchTimeout time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	return &Monitor{
		source:       source,
		rebuilder:    rebuilder,
		interval:     interval,
		fetchTimeout: fetchTimeout,
		status:       Status{Interval: interval.String()},
	}
}

// SetKnownCount seeds the count the next tick compares against.
func (m *Monitor) SetKnownCount(n int) {
	m.mu.Lock()
	m.status.KnownCount = n
	m.mu.Unlock()
}

// Start launches the loop. It returns false if the monitor is already running.
func (m *Monitor) Start(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return false
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.status.Running = true

	go m.loop(loopCtx, m.done)
	slog.Info("gallery auto-reload started", "interval", m.interval)
	return true
}

// Stop cancels the loop, including a fetch in flight, and waits for it to
// exit. It returns false if the monitor was not running.
func (m *Monitor) Stop() bool {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	<-done

	m.mu.Lock()
	m.status.Running = false
	m.mu.Unlock()
	slog.Info("gallery auto-reload stopped")
	return true
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.CheckNow(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("gallery auto-reload check failed", "error", err)
			}
		}
	}
}

// CheckNow runs one comparison against the source and rebuilds if the
// source grew. It reports whether a rebuild happened.
func (m *Monitor) CheckNow(ctx context.Context) (bool, error) {
	m.check.Lock()
	defer m.check.Unlock()

	now := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	enrollments, err := m.source.ListEnrollments(fetchCtx)
	cancel()
	if err != nil {
		observability.SyncTicks.WithLabelValues("source_error").Inc()
		err = fmt.Errorf("%w: %w", models.ErrIdentitySourceUnavailable, err)
		m.recordFailure(now, err)
		return false, err
	}

	m.mu.Lock()
	known := m.status.KnownCount
	m.mu.Unlock()

	if len(enrollments) <= known {
		observability.SyncTicks.WithLabelValues("unchanged").Inc()
		m.mu.Lock()
		m.status.LastCheck = now
		m.status.LastError = ""
		m.mu.Unlock()
		return false, nil
	}

	slog.Info("identity source grew, rebuilding gallery", "known", known, "current", len(enrollments))
	enrolled, err := m.rebuilder.Rebuild(ctx, enrollments)
	if err != nil {
		observability.SyncTicks.WithLabelValues("reload_error").Inc()
		err = fmt.Errorf("rebuild gallery: %w", err)
		m.recordFailure(now, err)
		return false, err
	}

	observability.SyncTicks.WithLabelValues("reloaded").Inc()
	m.mu.Lock()
	m.status.KnownCount = len(enrollments)
	m.status.LastCheck = now
	m.status.LastReload = now
	m.status.LastError = ""
	m.status.Reloads++
	m.mu.Unlock()

	slog.Info("gallery rebuilt", "identities", len(enrollments), "enrolled", enrolled)
	return true, nil
}

func (m *Monitor) recordFailure(now time.Time, err error) {
	m.mu.Lock()
	m.status.LastCheck = now
	m.status.LastError = err.Error()
	m.status.FailedChecks++
	m.mu.Unlock()
}
