// Package transport implements the Transport Adapter of spec.md §4.6: it
// owns the pub/sub connection, demultiplexes inbound topics into JSON
// control events, opaque audio frames, and server-side voice-activity
// signals, and exposes the outbound half as internal/audio.Publisher.
// Grounded on original_source/main/protocols/mqtt_protocol.cc for topic
// names, QoS values, and wire framing, and on the teacher's main.go for
// TLS/client wiring idiom.
package transport
