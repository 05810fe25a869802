package audio

import (
	"context"
	"time"

	"github.com/ccl-123/Aibox-ESP32-C3-demo/internal/logging"
	"github.com/rs/zerolog"
)

// OutboundPipeline implements spec.md §4.3: the capture loop's
// mode-dependent dispatch (test buffer, wake-word, processor) and the
// encode path that turns processed PCM into OutboundPackets. Grounded on
// application.cc's AudioLoop/OnAudioInput and the processor/wake-word
// callback wiring in OnIncomingJson's surrounding setup code.
type OutboundPipeline struct {
	session *Session
	logger  *zerolog.Logger

	testBuffer   []int16
	testBudget   int
}

func newOutboundPipeline(s *Session) *OutboundPipeline {
	p := &OutboundPipeline{session: s, logger: logging.Get("outbound")}

	if s.deps.Processor != nil {
		s.deps.Processor.OnOutput(func(pcm []int16) {
			p.submitEncode(pcm)
		})
		s.deps.Processor.OnVoiceActivity(func(speaking bool) {
			s.mu.Lock()
			s.voiceDetected = speaking
			s.mu.Unlock()
		})
	}
	return p
}

// RunCaptureLoop is the dedicated capture task of spec.md §4.3, ideally
// pinned to a preferred core; it runs until ctx is cancelled.
func (p *OutboundPipeline) RunCaptureLoop(ctx context.Context) {
	if p.session.deps.Scheduler != nil {
		p.session.deps.Scheduler.SetPriority(GetConfig().CaptureLoopPriority)
	}

	cap := p.session.deps.Capture
	if cap == nil {
		return
	}

	frameSamples := GetConfig().SampleRateHz * GetConfig().FrameDurationMs / 1000

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !cap.InputEnabled() {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		mono, ok := cap.ReadFrame(frameSamples)
		if !ok {
			time.Sleep(5 * time.Millisecond)
			continue
		}

		p.dispatch(mono)
	}
}

// dispatch routes one captured frame to exactly one consumer based on
// current mode, per spec.md §4.3's four-way priority.
func (p *OutboundPipeline) dispatch(mono []int16) {
	s := p.session

	switch s.State() {
	case StateAudioTesting:
		p.accumulateTest(mono)
		return
	}

	ww := s.deps.WakeWord
	if ww != nil && ww.IsDetectionRunning() {
		ww.Feed(mono)
		p.submitEncode(mono)
		return
	}

	proc := s.deps.Processor
	if proc != nil && proc.IsRunning() {
		proc.Feed(mono)
		return
	}

	time.Sleep(5 * time.Millisecond)
}

func (p *OutboundPipeline) accumulateTest(mono []int16) {
	const testDurationCapSamples = 16000 * 5 // 5s cap
	p.testBuffer = append(p.testBuffer, mono...)
	if len(p.testBuffer) >= testDurationCapSamples {
		p.testBuffer = nil
	}
}

// submitEncode schedules an encode job on the worker pool; on success the
// result becomes an OutboundPacket appended to outbound_send (spec.md
// §4.3).
func (p *OutboundPipeline) submitEncode(pcm []int16) {
	s := p.session
	pcmCopy := append([]int16(nil), pcm...)

	err := s.deps.Workers.Schedule(func() {
		payload, err := s.deps.Codec.Encode(pcmCopy)
		if err != nil {
			s.metrics.EncodeErrors.Inc()
			p.logger.Warn().Err(newError(ErrorKindEncodeFailure, err)).Msg("encode failed, dropping frame")
			return
		}

		pkt := OutboundPacket{Payload: payload}
		s.mu.Lock()
		aecMode := s.aecMode
		s.mu.Unlock()
		if aecMode == AecOnServer {
			// application.cc:737-742 pairs with a pending timestamp when one
			// exists and otherwise still sends with timestamp 0 — during a
			// Listening session no decode is running to feed the pending
			// queue, so dropping here would silence the mic entirely.
			ts, _ := p.popPendingTimestamp()
			pkt.Timestamp = ts
			pkt.HasTimestamp = true
		}
		s.enqueueOutbound(pkt)
	})
	if err != nil {
		p.logger.Warn().Err(err).Msg("encode scheduling failed, worker pool shutting down")
	}
}

// PushTimestamp records a capture timestamp awaiting pairing with an
// encoded frame (spec.md §4.3), used when server-side AEC is active.
func (p *OutboundPipeline) PushTimestamp(ts uint32) {
	s := p.session
	s.tsMu.Lock()
	defer s.tsMu.Unlock()
	if len(s.timestampPending) >= GetConfig().TimestampPendingCapacity {
		s.timestampPending = s.timestampPending[1:]
	}
	s.timestampPending = append(s.timestampPending, ts)
}

// popPendingTimestamp pops the head of timestamp_pending, reporting
// ok=false when nothing is pending. The queue's bound is kept by
// PushTimestamp, which drops the oldest entry when full; nothing popped
// here is discarded.
func (p *OutboundPipeline) popPendingTimestamp() (uint32, bool) {
	s := p.session
	s.tsMu.Lock()
	defer s.tsMu.Unlock()
	if len(s.timestampPending) == 0 {
		return 0, false
	}
	ts := s.timestampPending[0]
	s.timestampPending = s.timestampPending[1:]
	return ts, true
}
