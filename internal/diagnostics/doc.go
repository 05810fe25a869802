// Package diagnostics serves the state-monitor feed spec.md §8's test
// harnesses observe over a websocket, fanning out internal/audio's
// StateMonitor events to any number of connected subscribers. Adapted
// from the teacher's AudioEventBroadcaster (audio_events.go).
package diagnostics
