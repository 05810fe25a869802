package audio

import "sync"

// StateTransitionEvent is one entry in the total order spec.md §8
// property 1 requires observers to see.
type StateTransitionEvent struct {
	Old       DeviceState
	New       DeviceState
	Voice     bool
	Mode      ListeningMode
	AecMode   AecMode
}

// StateMonitor fans committed state transitions out to any number of
// subscriber channels, adapted from the teacher's AudioEventBroadcaster
// (audio_events.go): same subscriber-map-under-RWMutex shape, generalized
// from WebRTC session events to spec.md §8's transition-order property.
// internal/diagnostics wraps this to serve it over a websocket.
type StateMonitor struct {
	mu          sync.RWMutex
	subscribers map[int]chan StateTransitionEvent
	nextID      int
	history     []StateTransitionEvent
	historyCap  int
}

// NewStateMonitor creates a monitor retaining up to historyCap past
// transitions for late subscribers (mirrors the teacher's
// sendInitialState on Subscribe).
func NewStateMonitor(historyCap int) *StateMonitor {
	return &StateMonitor{
		subscribers: make(map[int]chan StateTransitionEvent),
		historyCap:  historyCap,
	}
}

// Attach registers the monitor as a Session state listener.
func (m *StateMonitor) Attach(s *Session) {
	s.AddStateListener(func(old, new DeviceState) {
		m.Record(StateTransitionEvent{
			Old:     old,
			New:     new,
			Voice:   s.VoiceDetected(),
			Mode:    s.Mode(),
			AecMode: s.AecMode(),
		})
	})
}

// Record appends an event to history and broadcasts it to every current
// subscriber, dropping the event for any subscriber whose channel is full
// rather than blocking the Session loop.
func (m *StateMonitor) Record(ev StateTransitionEvent) {
	m.mu.Lock()
	m.history = append(m.history, ev)
	if len(m.history) > m.historyCap {
		m.history = m.history[len(m.history)-m.historyCap:]
	}
	subs := make([]chan StateTransitionEvent, 0, len(m.subscribers))
	for _, ch := range m.subscribers {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of future events and an unsubscribe func.
// The returned channel is pre-seeded with the retained history so a late
// subscriber sees a coherent recent past, mirroring sendInitialState.
func (m *StateMonitor) Subscribe(buffer int) (<-chan StateTransitionEvent, func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	ch := make(chan StateTransitionEvent, buffer)
	for _, ev := range m.history {
		select {
		case ch <- ev:
		default:
		}
	}
	m.subscribers[id] = ch
	m.mu.Unlock()

	unsubscribe := func() {
		m.mu.Lock()
		if c, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(c)
		}
		m.mu.Unlock()
	}
	return ch, unsubscribe
}
