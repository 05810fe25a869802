package audio

import (
	"sync"
	"time"
)

// TransportHealth tracks transport connectivity for reporting through
// Session.Health; nothing in the Session branches on it. Adapted from the
// teacher's
// DeviceHealthMonitor/DeviceHealthStatus (device_health.go): the same
// last-error/consecutive-failure bookkeeping, trimmed from USB/video link
// health down to the single pub/sub connection spec.md §4.6 names.
type TransportHealth struct {
	mu                  sync.Mutex
	connected           bool
	lastError           error
	lastErrorAt         time.Time
	consecutiveFailures int
	totalReconnects     int
}

// NewTransportHealth returns a health tracker in the disconnected state.
func NewTransportHealth() *TransportHealth {
	return &TransportHealth{}
}

// MarkConnected resets the failure streak and records a reconnect once
// the connection was previously down.
func (h *TransportHealth) MarkConnected() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.connected {
		h.totalReconnects++
	}
	h.connected = true
	h.consecutiveFailures = 0
}

// MarkError records a transport failure and marks the connection down.
func (h *TransportHealth) MarkError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = false
	h.lastError = err
	h.lastErrorAt = time.Now()
	h.consecutiveFailures++
}

// Status is a point-in-time snapshot suitable for the diagnostics feed.
type Status struct {
	Connected           bool
	LastError           string
	ConsecutiveFailures int
	TotalReconnects     int
}

// Snapshot returns the current health status.
func (h *TransportHealth) Snapshot() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := Status{
		Connected:           h.connected,
		ConsecutiveFailures: h.consecutiveFailures,
		TotalReconnects:     h.totalReconnects,
	}
	if h.lastError != nil {
		s.LastError = h.lastError.Error()
	}
	return s
}
