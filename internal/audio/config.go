package audio

import "time"

// Config centralizes every tunable named in spec.md §3-§5, following the
// teacher's config_constants.go pattern of one struct with a package-level
// default instance swappable at runtime via UpdateConfig. Unlike the
// teacher's ~80-field audio tuning surface (bitrates, DTX, VBR — all
// codec-primitive concerns out of scope per spec.md §1), this struct holds
// only orchestration-layer knobs. Not every field is read by this module:
// the version-check cadence, MaxChunkBytes, ServerAECTimestampMaxPending,
// WorkerPoolPriority, and NormalPriority are carried as configuration only.
type Config struct {
	// Frame shape (spec.md §3).
	SampleRateHz    int
	FrameDurationMs int

	// Queue capacities and watermarks (spec.md §3).
	InboundCompressedCapacity int
	PlaybackHardLimit         int
	PlaybackHighWatermark     int
	PlaybackLowWatermark      int
	OutboundSendCapacity      int
	TimestampPendingCapacity  int

	// Concurrency bounds (spec.md §4.2).
	MaxConcurrentDecodes int

	// Thinning policy (spec.md §4.2, preserved literally per spec.md §9).
	ThinningStride      int
	ThinningMaxRemovals int

	// Background worker pool (spec.md §4.5).
	WorkerCount    int
	WorkerSoftWarn int // logged warning threshold, mirrors the original's active_tasks_ >= 30 log
	WorkerSoftLimit int
	WorkerHardLimit int

	// Timing (spec.md §4.1, §9).
	SpeakingToListeningDrainWait time.Duration

	// Server-side AEC timestamp pairing (spec.md §4.3).
	ServerAECTimestampMaxPending int

	// Transport chunking (spec.md §4.6).
	MaxChunkBytes int

	// check_new_version retry cadence (spec.md §5).
	VersionCheckFastInterval time.Duration
	VersionCheckSlowInterval time.Duration
	VersionCheckFastRetries  int

	// Thread/goroutine priorities (spec.md §5), used by the platform
	// scheduler when available.
	SessionLoopPriority   int
	CaptureLoopPriority   int
	PlaybackLoopPriority  int
	WorkerPoolPriority    int
	NormalPriority        int
}

// DefaultConfig returns the spec-mandated defaults of spec.md §3-§5.
func DefaultConfig() *Config {
	return &Config{
		SampleRateHz:    16000,
		FrameDurationMs: 60,

		InboundCompressedCapacity: 200,
		PlaybackHardLimit:         3,
		PlaybackHighWatermark:     2,
		PlaybackLowWatermark:      1,
		OutboundSendCapacity:      200,
		TimestampPendingCapacity:  3,

		MaxConcurrentDecodes: 4,

		ThinningStride:      3,
		ThinningMaxRemovals: 20,

		WorkerCount:     2,
		WorkerSoftWarn:  30,
		WorkerSoftLimit: 70,
		WorkerHardLimit: 70,

		SpeakingToListeningDrainWait: 120 * time.Millisecond,

		ServerAECTimestampMaxPending: 3,

		MaxChunkBytes: 1024,

		VersionCheckFastInterval: 60 * time.Second,
		VersionCheckSlowInterval: 300 * time.Second,
		VersionCheckFastRetries:  5,

		SessionLoopPriority:  22,
		CaptureLoopPriority:  25,
		PlaybackLoopPriority: 23,
		WorkerPoolPriority:   21,
		NormalPriority:       10,
	}
}

var globalConfig = DefaultConfig()

// GetConfig returns the current configuration.
func GetConfig() *Config { return globalConfig }

// UpdateConfig replaces the current configuration wholesale, allowing
// runtime tuning the way the teacher's config_constants.go does.
func UpdateConfig(cfg *Config) { globalConfig = cfg }
