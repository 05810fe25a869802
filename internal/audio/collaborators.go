package audio

// Codec is the compression codec contract (spec.md §1: "out of scope,
// referenced only by their contracts"). A real implementation wraps a
// hardware or software Opus codec; the closest analog seen in the
// retrieval pack is layeh.com/gopus, used by MrWong99/glyphoxa for
// Discord voice frames. It is named here as the expected real-world
// binding but not vendored, since codec primitives sit outside this
// module's scope.
type Codec interface {
	// Decode turns one compressed frame into 16 kHz mono PCM samples.
	Decode(frame []byte) ([]int16, error)
	// Encode compresses one 16 kHz mono PCM frame.
	Encode(pcm []int16) ([]byte, error)
	// ResetState clears internal codec history (spec.md §4.1 "reset
	// encoder/decoder state").
	ResetState()
}

// Resampler adapts PCM between the fixed 16 kHz pipeline rate and a
// device's native rate (spec.md §4.2, §4.3).
type Resampler interface {
	Process(in []int16) []int16
}

// CaptureDevice is the input side of the audio codec hardware abstraction
// (out of scope per spec.md §1).
type CaptureDevice interface {
	// ReadFrame blocks briefly and returns one frame of samples at the
	// device's native input rate and channel count, or ok=false if no
	// data is currently available.
	ReadFrame(samples int) (data []int16, ok bool)
	InputSampleRate() int
	InputChannels() int
	InputEnabled() bool
}

// PlaybackDevice is the output side of the audio codec hardware
// abstraction (out of scope per spec.md §1).
type PlaybackDevice interface {
	WriteFrame(pcm []int16) error
	OutputSampleRate() int
}

// WakeWordDetector is the wake-word processor contract (out of scope).
type WakeWordDetector interface {
	IsDetectionRunning() bool
	StartDetection()
	StopDetection()
	// FeedSize reports how many mono samples Feed expects next.
	FeedSize() int
	Feed(mono []int16)
}

// AudioProcessor is the voice-activity/echo-cancellation processor
// contract (out of scope). Processed PCM and VAD state changes are
// delivered through the callbacks OnOutput/OnVoiceActivity register.
type AudioProcessor interface {
	IsRunning() bool
	Start()
	Stop()
	FeedSize() int
	Feed(mono []int16)
	OnOutput(func(pcm []int16))
	OnVoiceActivity(func(speaking bool))
}

// Notifier is the display/LED notification contract (out of scope per
// spec.md §1); the Session calls it on every state transition and alert.
type Notifier interface {
	SetStatus(status string)
	Alert(status, message, emotion string)
}
