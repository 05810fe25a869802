// Package audio implements the realtime audio/session orchestration core
// of the voice appliance: the session state machine, the bounded inbound
// and outbound audio pipelines, the playback task, and the background
// worker pool they share. Codec, capture/playback hardware, wake-word, and
// voice-activity/echo-cancellation processing are all external
// collaborators, represented here only as interfaces.
package audio
