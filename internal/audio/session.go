package audio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ccl-123/Aibox-ESP32-C3-demo/internal/logging"
	"github.com/rs/zerolog"
)

// Publisher is the outbound half of the transport contract the Session
// depends on (spec.md §4.6): opaque audio, JSON control, and the audio-end
// sentinel. internal/transport.Adapter implements this; kept here (rather
// than importing internal/transport) so this package has no dependency on
// the pub/sub client.
type Publisher interface {
	PublishAudio(payload []byte, timestamp uint32, hasTimestamp bool) error
	PublishControl(v any) error
	PublishAudioEnd() error
	PublishCancelTTS(userID, action string) error
}

// StateListener observes committed state transitions, in the total order
// spec.md §8 property 1 requires. Used by StateMonitor to fan transitions
// out to diagnostics subscribers.
type StateListener func(old, new DeviceState)

// SessionDeps bundles every external collaborator the Session drives,
// mirroring spec.md §9's "well-typed capability set per collaborator"
// resolution of the Open Question about callback fan-in — one small
// interface per collaborator rather than raw closures.
type SessionDeps struct {
	Codec      Codec
	Resampler  Resampler
	Capture    CaptureDevice
	Playback   PlaybackDevice
	WakeWord   WakeWordDetector
	Processor  AudioProcessor
	Notifier   Notifier
	Publisher  Publisher
	Workers    *WorkerPool
	FramePool  *FramePool
	Scheduler  *PriorityScheduler
}

// Session is the single-mutator state machine of spec.md §4.1. It owns
// every bounded queue named in spec.md §3 and is the only writer of
// DeviceState. Grounded structurally on the original firmware's
// Application class (application.h/application.cc): the same event-bit
// loop, the same schedule/set_state vocabulary, the same entry-action
// table, generalized from a single monolithic class into a Go struct with
// injected collaborator interfaces.
type Session struct {
	cfg  *Config
	deps SessionDeps

	logger  *zerolog.Logger
	metrics *Metrics

	events *eventGroup

	// mu guards inbound_compressed, outbound_send, main_tasks, and the
	// session's scalar fields (state, mode, aecMode, aborted,
	// voiceDetected, hasServerTime), per spec.md §5's shared-resource
	// policy.
	mu                sync.Mutex
	state             DeviceState
	mode              ListeningMode
	aecMode           AecMode
	aborted           bool
	voiceDetected     bool
	hasServerTime     bool
	inboundCompressed []CompressedFrame
	outboundSend      []OutboundPacket
	mainTasks         []task

	// playbackMu guards pcm_playback exclusively, per spec.md §5.
	playbackMu           sync.Mutex
	playbackCond         *sync.Cond
	pcmPlayback          []PcmFrame
	playbackBackpressure atomic.Bool

	// tsMu guards timestamp_pending exclusively, per spec.md §5.
	tsMu              sync.Mutex
	timestampPending  []uint32

	activeDecodeTasks atomic.Int32

	listenersMu sync.Mutex
	listeners   []StateListener

	inbound  *InboundPipeline
	outbound *OutboundPipeline
	playback *Playback

	health *TransportHealth
}

// NewSession wires a Session and its three pipelines against the given
// collaborators, matching the teacher's constructor-does-all-the-wiring
// style (main.go).
func NewSession(cfg *Config, deps SessionDeps) *Session {
	s := &Session{
		cfg:     cfg,
		deps:    deps,
		logger:  logging.Get("session"),
		metrics: GetMetrics(),
		events:  newEventGroup(),
		state:   StateUnknown,
		mode:    ListeningModeAutoStop,
		health:  NewTransportHealth(),
	}
	s.playbackCond = sync.NewCond(&s.playbackMu)

	s.inbound = newInboundPipeline(s)
	s.outbound = newOutboundPipeline(s)
	s.playback = newPlayback(s)
	return s
}

// Inbound returns the session's inbound pipeline, for wiring its decode
// scheduler and transport-driven admission from cmd/voicecored.
func (s *Session) Inbound() *InboundPipeline { return s.inbound }

// Outbound returns the session's outbound pipeline.
func (s *Session) Outbound() *OutboundPipeline { return s.outbound }

// Playback returns the session's playback task.
func (s *Session) Playback() *Playback { return s.playback }

// SetPublisher installs the transport's outbound half. Must be called
// once, before Run starts draining outbound_send — the Transport Adapter
// and Session are constructed with a circular dependency (the adapter's
// callbacks close over the Session), so the Publisher is wired in a
// second step rather than through SessionDeps at construction.
func (s *Session) SetPublisher(p Publisher) {
	s.mu.Lock()
	s.deps.Publisher = p
	s.mu.Unlock()
}

// OnIncomingAudio is the transport's on_incoming_audio callback, admitting
// one opaque compressed frame per spec.md §4.2.
func (s *Session) OnIncomingAudio(payload []byte) {
	s.inbound.AdmitFrame(CompressedFrame(payload))
}

// AddStateListener registers a callback invoked after every committed
// transition, used by the diagnostics feed (spec.md §8 property 1: "a
// monitor in a total order").
func (s *Session) AddStateListener(l StateListener) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, l)
	s.listenersMu.Unlock()
}

// State returns the current device state.
func (s *Session) State() DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mode returns the current listening mode.
func (s *Session) Mode() ListeningMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// VoiceDetected reports the processor's last voice-activity callback
// value (spec.md §3's voice_detected flag).
func (s *Session) VoiceDetected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiceDetected
}

// AecMode returns the session's configured echo-cancellation mode.
func (s *Session) AecMode() AecMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aecMode
}

// SetAecMode configures echo-cancellation mode, affecting encoder
// complexity and outbound timestamp pairing (spec.md §3).
func (s *Session) SetAecMode(m AecMode) {
	s.mu.Lock()
	s.aecMode = m
	s.mu.Unlock()
}

// Aborted reports the cooperative cancellation token (spec.md §5).
func (s *Session) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Schedule appends a closure to main_tasks and signals the loop
// (spec.md §4.1).
func (s *Session) Schedule(t task) {
	s.mu.Lock()
	s.mainTasks = append(s.mainTasks, t)
	s.mu.Unlock()
	s.events.set(eventSchedule)
}

// Run is the Session loop: it waits on the event group and drains
// whichever bits are set, exactly per spec.md §4.1's loop semantics. It
// blocks until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	if s.deps.Scheduler != nil {
		s.deps.Scheduler.SetPriority(s.cfg.SessionLoopPriority)
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		s.events.set(eventSchedule)
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		bits := s.events.waitAny()

		select {
		case <-ctx.Done():
			return
		default:
		}

		if bits&eventSendAudio != 0 {
			s.drainOutbound()
		}
		if bits&eventSchedule != 0 {
			s.drainMainTasks()
		}
	}
}

func (s *Session) drainMainTasks() {
	s.mu.Lock()
	tasks := s.mainTasks
	s.mainTasks = nil
	s.mu.Unlock()

	for _, t := range tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().Interface("panic", r).Msg("main task panic recovered")
				}
			}()
			t()
		}()
	}
}

// drainOutbound atomically swaps outbound_send with an empty list and
// publishes each packet in order, stopping on the first send failure
// (spec.md §4.1).
func (s *Session) drainOutbound() {
	s.mu.Lock()
	packets := s.outboundSend
	s.outboundSend = nil
	s.mu.Unlock()
	s.metrics.QueueDepth.WithLabelValues("outbound_send").Set(0)

	for _, p := range packets {
		if err := s.deps.Publisher.PublishAudio(p.Payload, p.Timestamp, p.HasTimestamp); err != nil {
			s.logger.Warn().Err(err).Msg("outbound publish failed, stopping this tick")
			s.metrics.TransportErrors.WithLabelValues("transient").Inc()
			s.OnNetworkError(err)
			return
		}
	}
}

// enqueueOutbound appends a packet to outbound_send, dropping the oldest
// on overflow (spec.md §3, §4.3), then signals SEND_AUDIO.
func (s *Session) enqueueOutbound(p OutboundPacket) {
	s.mu.Lock()
	if len(s.outboundSend) >= GetConfig().OutboundSendCapacity {
		s.outboundSend = s.outboundSend[1:]
		s.metrics.FramesDropped.WithLabelValues("outbound_send", "capacity").Inc()
		s.logger.Warn().Err(newError(ErrorKindQueueOverflow, nil)).Msg("outbound_send full, dropping oldest packet")
	}
	s.outboundSend = append(s.outboundSend, p)
	depth := len(s.outboundSend)
	s.mu.Unlock()
	s.metrics.QueueDepth.WithLabelValues("outbound_send").Set(float64(depth))
	s.events.set(eventSendAudio)
}

// SetState is the sole transition authority (spec.md §4.1). Equal
// transitions are a no-op; otherwise the worker pool is drained before the
// entry action runs, per spec.md §9's reconfiguration bracketing.
func (s *Session) SetState(new DeviceState) {
	s.mu.Lock()
	old := s.state
	if old == new {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.deps.Workers.WaitForCompletion()

	s.mu.Lock()
	s.state = new
	s.mu.Unlock()

	s.metrics.StateTransitions.WithLabelValues(new.String()).Inc()
	s.logger.Info().Str("from", old.String()).Str("to", new.String()).Msg("state transition")

	if s.deps.Notifier != nil {
		s.deps.Notifier.SetStatus(new.String())
	}

	s.listenersMu.Lock()
	listeners := append([]StateListener(nil), s.listeners...)
	s.listenersMu.Unlock()
	for _, l := range listeners {
		l(old, new)
	}

	s.runEntryAction(old, new)
}

// runEntryAction implements the entry-action table of spec.md §4.1 — the
// only place state-dependent behavior changes.
func (s *Session) runEntryAction(old, new DeviceState) {
	switch new {
	case StateIdle:
		if s.deps.Processor != nil && s.deps.Processor.IsRunning() {
			s.deps.Processor.Stop()
		}
		if s.deps.WakeWord != nil && !s.deps.WakeWord.IsDetectionRunning() {
			s.deps.WakeWord.StartDetection()
		}

	case StateConnecting:
		s.tsMu.Lock()
		s.timestampPending = nil
		s.tsMu.Unlock()

	case StateListening:
		if s.deps.Processor != nil && !s.deps.Processor.IsRunning() {
			s.deps.Processor.Start()
		}
		if old == StateSpeaking {
			s.drainInboundAndWait()
			if s.deps.Codec != nil {
				s.deps.Codec.ResetState()
			}
		}
		if s.deps.WakeWord != nil && s.deps.WakeWord.IsDetectionRunning() {
			s.deps.WakeWord.StopDetection()
		}

	case StateSpeaking:
		s.mu.Lock()
		mode := s.mode
		s.aborted = false
		s.mu.Unlock()

		if mode != ListeningModeRealtime {
			if s.deps.Processor != nil && s.deps.Processor.IsRunning() {
				s.deps.Processor.Stop()
			}
			if s.deps.WakeWord != nil && !s.deps.WakeWord.IsDetectionRunning() {
				s.deps.WakeWord.StartDetection()
			}
		}
		if s.deps.Codec != nil {
			s.deps.Codec.ResetState()
		}

	case StateUpgrading:
		s.mu.Lock()
		s.aborted = true
		s.inboundCompressed = nil
		s.outboundSend = nil
		s.mu.Unlock()
		s.playbackMu.Lock()
		s.pcmPlayback = nil
		s.playbackCond.Broadcast()
		s.playbackMu.Unlock()
		s.deps.Workers.Shutdown()
	}
}

// drainInboundAndWait implements the Speaking->Listening entry action:
// clear inbound_compressed, then wait ~120ms for the output buffer to
// empty (spec.md §4.1).
func (s *Session) drainInboundAndWait() {
	s.mu.Lock()
	s.inboundCompressed = nil
	s.mu.Unlock()

	// Cond.Wait must be called by the goroutine holding playbackMu; a
	// timer goroutine can only wake it by acquiring the lock itself and
	// broadcasting, never by unlocking on this goroutine's behalf.
	timedOut := false
	timer := time.AfterFunc(s.cfg.SpeakingToListeningDrainWait, func() {
		s.playbackMu.Lock()
		timedOut = true
		s.playbackCond.Broadcast()
		s.playbackMu.Unlock()
	})
	defer timer.Stop()

	s.playbackMu.Lock()
	for len(s.pcmPlayback) > 0 && !timedOut {
		s.playbackCond.Wait()
	}
	if timedOut {
		s.pcmPlayback = nil
	}
	s.playbackMu.Unlock()
}

// ToggleChat is scheduled onto the loop (spec.md §4.1), as are
// AbortSpeaking, WakeWordInvoke, and OnTTSPlaybackStopped. StartListening
// and StopListening are not: they run SetState on the calling goroutine.
func (s *Session) ToggleChat() {
	s.Schedule(func() {
		switch s.State() {
		case StateIdle:
			s.SetState(StateConnecting)
			s.StartListening(s.listeningModeForAec())
		case StateListening:
			s.StopListening()
		case StateSpeaking:
			s.AbortSpeaking(AbortReasonNone)
		}
	})
}

// listeningModeForAec picks AutoStop when AEC is off and Realtime
// otherwise (application.cc:389,809), the default mode used whenever a
// listening session is started without an explicit caller-chosen mode.
func (s *Session) listeningModeForAec() ListeningMode {
	if s.AecMode() == AecOff {
		return ListeningModeAutoStop
	}
	return ListeningModeRealtime
}

// StartListening transitions into Listening under the given mode. It is
// not scheduled onto the Session loop; the transition runs on the calling
// goroutine before StartListening returns.
func (s *Session) StartListening(mode ListeningMode) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
	s.SetState(StateListening)
}

// StopListening ends a listening session: it sends the explicit END
// sentinel on the audio channel (mqtt_protocol.cc's CloseAudioChannel,
// invoked from ToggleChatState's Listening branch) and returns to Idle.
// Like StartListening, it runs on the calling goroutine rather than being
// scheduled onto the Session loop.
func (s *Session) StopListening() {
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishAudioEnd(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish audio end")
		}
	}
	s.SetState(StateIdle)
}

// OnTTSPlaybackStopped handles a server-reported "tts:stop" event: it
// waits for any in-flight background work, clears the abort flag for the
// next round, and lands on Idle under ManualStop or back on Listening
// otherwise (application.cc:632-641). Unlike ToggleChat's Listening
// branch, this never publishes the END sentinel — the channel stays open
// across TTS turns.
func (s *Session) OnTTSPlaybackStopped() {
	s.Schedule(func() {
		s.deps.Workers.WaitForCompletion()

		s.mu.Lock()
		s.aborted = false
		mode := s.mode
		s.mu.Unlock()

		if mode == ListeningModeManualStop {
			s.SetState(StateIdle)
		} else {
			s.SetState(StateListening)
		}
	})
}

// AbortSpeaking is the cooperative cancellation entry point of spec.md
// §5: sets aborted, sends an abort control message, resets the decoder
// (clearing inbound_compressed), and transitions per mode.
func (s *Session) AbortSpeaking(reason AbortReason) {
	s.Schedule(func() {
		s.mu.Lock()
		if s.state != StateSpeaking {
			s.mu.Unlock()
			return
		}
		s.aborted = true
		s.inboundCompressed = nil
		mode := s.mode
		s.mu.Unlock()

		s.logger.Info().Str("reason", reason.String()).Msg("abort speaking")
		if s.deps.Publisher != nil {
			_ = s.deps.Publisher.PublishCancelTTS("", "stop")
		}
		if s.deps.Codec != nil {
			s.deps.Codec.ResetState()
		}

		if mode == ListeningModeManualStop {
			s.SetState(StateIdle)
		} else {
			s.SetState(StateListening)
		}
	})
}

// WakeWordInvoke handles a wake-word detection event. If speaking, it is
// barge-in and aborts; otherwise it begins a listening session
// (spec.md §4.1, §9 idempotent-transition note).
func (s *Session) WakeWordInvoke(word string) {
	s.Schedule(func() {
		s.logger.Info().Str("word", word).Msg("wake word detected")
		switch s.State() {
		case StateSpeaking:
			s.AbortSpeaking(AbortReasonWakeWordDetected)
		case StateIdle:
			s.SetState(StateConnecting)
			s.StartListening(s.listeningModeForAec())
		}
	})
}

// OnNetworkError forces the state to Idle and raises a user-visible
// alert; it never terminates the process (spec.md §4.1's failure
// semantics, §7's TransportUnavailable/Transient propagation).
func (s *Session) OnNetworkError(err error) {
	s.health.MarkError(err)
	s.Schedule(func() {
		s.logger.Warn().Err(err).Msg("network error")
		if s.deps.Notifier != nil {
			s.deps.Notifier.Alert("error", "network error", "sad")
		}
		s.SetState(StateIdle)
	})
}

// Health reports the transport connectivity snapshot for the diagnostics
// feed, tracked from OnAudioChannelOpened/OnNetworkError.
func (s *Session) Health() Status {
	return s.health.Snapshot()
}

// OnServerVADDetected handles the transport's parsed server-VAD END
// event, transitioning Listening->Speaking. Per spec.md §9's Open
// Question, whichever of this or a tts:start JSON arrives first performs
// the transition; the other is a no-op because SetState treats equal
// transitions as a no-op.
func (s *Session) OnServerVADDetected() {
	s.Schedule(func() {
		if s.State() == StateListening {
			s.SetState(StateSpeaking)
		}
	})
}

// OnAudioChannelOpened and OnAudioChannelClosed are inbound notifications
// from the transport about its own channel lifecycle (spec.md §4.6),
// never something Session re-raises: closing is initiated by StopListening
// publishing the END sentinel, and this callback only reacts to the
// transport actually reporting the channel gone (matching application.cc's
// OnAudioChannelClosed handler, which forces the device back to Idle
// rather than closing the channel again).
func (s *Session) OnAudioChannelOpened() {
	s.logger.Debug().Msg("audio channel opened")
	s.health.MarkConnected()
}

func (s *Session) OnAudioChannelClosed() {
	s.Schedule(func() {
		s.logger.Debug().Msg("audio channel closed")
		if s.State() != StateIdle {
			s.SetState(StateIdle)
		}
	})
}
