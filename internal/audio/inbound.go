package audio

import (
	"context"
	"time"

	"github.com/ccl-123/Aibox-ESP32-C3-demo/internal/logging"
	"github.com/rs/zerolog"
)

// InboundPipeline implements spec.md §4.2: admission of compressed frames
// under the session mutex, decode scheduling gated by playback
// backpressure, and the decode job itself. Grounded on application.cc's
// OnIncomingAudio/OnAudioOutput pair, generalized into a standalone type
// so it can be tested against a fake Session/codec without a transport.
type InboundPipeline struct {
	session *Session
	logger  *zerolog.Logger
}

func newInboundPipeline(s *Session) *InboundPipeline {
	return &InboundPipeline{session: s, logger: logging.Get("inbound")}
}

// AdmitFrame is the admission policy of spec.md §4.2, invoked from the
// transport's on_incoming_audio callback under the session mutex. A frame
// is admitted iff aborted=false AND state=Speaking; on a full queue the
// thinning policy of spec.md §4.2/§9 makes room.
func (p *InboundPipeline) AdmitFrame(frame CompressedFrame) {
	s := p.session
	cfg := GetConfig()

	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		s.metrics.QueueDepth.WithLabelValues("inbound_compressed").Set(float64(len(s.inboundCompressed)))
	}()

	if s.aborted || s.state != StateSpeaking {
		p.session.metrics.FramesDropped.WithLabelValues("inbound_compressed", "state_rejected").Inc()
		return
	}

	if len(s.inboundCompressed) < cfg.InboundCompressedCapacity {
		s.inboundCompressed = append(s.inboundCompressed, frame)
		return
	}

	thinned, removed := thinQueue(s.inboundCompressed, cfg.ThinningStride, cfg.ThinningMaxRemovals)
	if removed > 0 {
		s.metrics.ThinningRemovals.Add(float64(removed))
		s.inboundCompressed = append(thinned, frame)
		return
	}

	p.session.metrics.FramesDropped.WithLabelValues("inbound_compressed", "full").Inc()
	p.logger.Warn().Err(newError(ErrorKindQueueOverflow, nil)).Msg("inbound_compressed full after thinning, dropping frame")
}

// RunDecodeScheduler runs the playback-driver tick of spec.md §4.2 until
// ctx is cancelled: evaluate backpressure, then submit at most one decode
// job per tick.
func (p *InboundPipeline) RunDecodeScheduler(ctx context.Context) {
	cfg := GetConfig()
	ticker := time.NewTicker(time.Duration(cfg.FrameDurationMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *InboundPipeline) tick() {
	s := p.session
	cfg := GetConfig()

	s.playbackMu.Lock()
	depth := len(s.pcmPlayback)
	s.playbackMu.Unlock()

	if depth >= cfg.PlaybackHighWatermark {
		s.playbackBackpressure.Store(true)
		return
	}
	if depth <= cfg.PlaybackLowWatermark {
		s.playbackBackpressure.Store(false)
	}

	if int(s.activeDecodeTasks.Load()) >= cfg.MaxConcurrentDecodes {
		return
	}

	s.mu.Lock()
	if len(s.inboundCompressed) == 0 {
		s.mu.Unlock()
		return
	}
	frame := s.inboundCompressed[0]
	s.inboundCompressed = s.inboundCompressed[1:]
	depth = len(s.inboundCompressed)
	s.mu.Unlock()
	s.metrics.QueueDepth.WithLabelValues("inbound_compressed").Set(float64(depth))

	s.activeDecodeTasks.Add(1)
	err := s.deps.Workers.Schedule(func() { p.decodeJob(frame) })
	if err != nil {
		s.activeDecodeTasks.Add(-1)
		p.logger.Warn().Err(err).Msg("decode scheduling failed, worker pool shutting down")
	}
}

// decodeJob is spec.md §4.2's decode job: check aborted, decode, resample
// if necessary, and append to pcm_playback under its own mutex, respecting
// the hard limit as defense in depth.
func (p *InboundPipeline) decodeJob(frame CompressedFrame) {
	s := p.session
	defer s.activeDecodeTasks.Add(-1)

	if s.Aborted() {
		return
	}

	pcm, err := s.deps.Codec.Decode(frame)
	if err != nil {
		s.metrics.DecodeErrors.Inc()
		p.logger.Warn().Err(newError(ErrorKindDecodeFailure, err)).Msg("decode failed, dropping frame")
		return
	}

	if s.deps.Playback != nil && s.deps.Resampler != nil &&
		s.deps.Playback.OutputSampleRate() != GetConfig().SampleRateHz {
		pcm = s.deps.Resampler.Process(pcm)
	}

	if s.Aborted() {
		return
	}

	// The codec's own scratch buffer is its business (out of scope); the
	// frame that actually rides pcm_playback and gets handed to the output
	// device is pool-sourced, so Playback.Put has something to return it
	// to and the hot path downstream of decode never allocates.
	var out PcmFrame
	if s.deps.FramePool != nil {
		out = s.deps.FramePool.Get(len(pcm))
		copy(out, pcm)
	} else {
		out = pcm
	}

	s.playbackMu.Lock()
	if len(s.pcmPlayback) >= GetConfig().PlaybackHardLimit {
		s.playbackMu.Unlock()
		s.metrics.FramesDropped.WithLabelValues("pcm_playback", "hard_limit").Inc()
		p.logger.Warn().Err(newError(ErrorKindResourceExhausted, nil)).Msg("pcm_playback hard limit reached, dropping decoded frame")
		return
	}
	s.pcmPlayback = append(s.pcmPlayback, out)
	depth := len(s.pcmPlayback)
	s.playbackCond.Broadcast()
	s.playbackMu.Unlock()
	s.metrics.QueueDepth.WithLabelValues("pcm_playback").Set(float64(depth))

	if s.AecMode() == AecOnServer && s.outbound != nil {
		// application.cc pushes one timestamp per decoded output frame under
		// CONFIG_USE_SERVER_AEC; the raw stream carries no per-frame
		// timestamp, so it pushes 0 and lets the encode side pair it up.
		s.outbound.PushTimestamp(0)
	}
}
