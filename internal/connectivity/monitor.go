// Package connectivity watches remote reachability and publishes
// online/offline transitions as events. Transitions are edge-triggered:
// consumers see one event per change, never one per poll.
package connectivity

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Probe reports whether the remote service is currently reachable.
type Probe interface {
	Reachable(ctx context.Context) bool
}

// Event is one reachability transition.
type Event struct {
	Online bool
	At     time.Time
}

// Monitor polls a Probe on a fixed interval. The current level state is
// available via Online; transitions are delivered on Events.
type Monitor struct {
	probe    Probe
	interval time.Duration
	online   atomic.Bool
	events   chan Event
	logger   *slog.Logger
}

// NewMonitor creates a Monitor polling probe every interval.
// If interval is <= 0, it defaults to 15s.
func NewMonitor(probe Probe, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		events:   make(chan Event, 8),
		logger:   slog.Default(),
	}
}

// Online returns the last observed reachability state. The monitor
// starts offline until the first probe says otherwise.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Events returns the transition channel. The channel is never closed;
// consumers stop via their own context.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.CheckNow(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// CheckNow probes immediately, publishes a transition if the state
// changed, and returns the updated online state. Used by one-shot
// callers that cannot wait for the next tick.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	online := m.probe.Reachable(ctx)
	prev := m.online.Swap(online)
	if prev == online {
		return online
	}

	m.logger.Info("reachability changed", "online", online)
	select {
	case m.events <- Event{Online: online, At: time.Now().UTC()}:
	default:
		// Consumer is lagging; the level state is still correct and the
		// next transition will be delivered.
		m.logger.Warn("dropping reachability event", "online", online)
	}
	return online
}
