package audio

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitFrameRejectedWhenNotSpeaking(t *testing.T) {
	s, _, _, _ := newTestSession()
	defer s.deps.Workers.Shutdown()

	s.inbound.AdmitFrame(CompressedFrame{1, 2, 3})

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.inboundCompressed)
}

func TestAdmitFrameAcceptedWhileSpeakingAndNotAborted(t *testing.T) {
	s, _, _, _ := newTestSession()
	defer s.deps.Workers.Shutdown()

	s.mu.Lock()
	s.state = StateSpeaking
	s.aborted = false
	s.mu.Unlock()

	s.inbound.AdmitFrame(CompressedFrame{1, 2, 3})

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.inboundCompressed, 1)
}

func TestAdmitFrameThinsWhenFull(t *testing.T) {
	s, _, _, _ := newTestSession()
	defer s.deps.Workers.Shutdown()

	cfg := DefaultConfig()
	cfg.InboundCompressedCapacity = 9
	cfg.ThinningStride = 3
	cfg.ThinningMaxRemovals = 20
	UpdateConfig(cfg)
	defer UpdateConfig(DefaultConfig())

	s.mu.Lock()
	s.state = StateSpeaking
	for i := 0; i < 9; i++ {
		s.inboundCompressed = append(s.inboundCompressed, CompressedFrame{byte(i)})
	}
	s.mu.Unlock()

	s.inbound.AdmitFrame(CompressedFrame{99})

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Less(t, len(s.inboundCompressed), 10)
	assert.Equal(t, byte(99), s.inboundCompressed[len(s.inboundCompressed)-1][0])
}

func TestDecodeJobDiscardsWhenAborted(t *testing.T) {
	s, codec, playback, _ := newTestSession()
	defer s.deps.Workers.Shutdown()

	s.mu.Lock()
	s.aborted = true
	s.mu.Unlock()

	s.inbound.decodeJob(CompressedFrame{1, 2, 3})

	assert.Equal(t, 0, playback.written())
	codec.mu.Lock()
	defer codec.mu.Unlock()
	assert.Equal(t, 0, codec.decodeCalls)
}

func TestDecodeJobAppendsToPlaybackQueue(t *testing.T) {
	s, _, _, _ := newTestSession()
	defer s.deps.Workers.Shutdown()

	s.inbound.decodeJob(CompressedFrame{1, 2, 3})

	s.playbackMu.Lock()
	defer s.playbackMu.Unlock()
	require.Len(t, s.pcmPlayback, 1)
}

func TestDecodeJobPushesTimestampUnderServerAEC(t *testing.T) {
	s, _, _, _ := newTestSession()
	defer s.deps.Workers.Shutdown()
	s.SetAecMode(AecOnServer)

	s.inbound.decodeJob(CompressedFrame{1, 2, 3})

	s.tsMu.Lock()
	defer s.tsMu.Unlock()
	require.Len(t, s.timestampPending, 1)
}

func TestDecodeJobDoesNotPushTimestampOffServerAEC(t *testing.T) {
	s, _, _, _ := newTestSession()
	defer s.deps.Workers.Shutdown()

	s.inbound.decodeJob(CompressedFrame{1, 2, 3})

	s.tsMu.Lock()
	defer s.tsMu.Unlock()
	assert.Len(t, s.timestampPending, 0)
}

func TestDecodeJobRespectsHardLimit(t *testing.T) {
	s, _, _, _ := newTestSession()
	defer s.deps.Workers.Shutdown()

	s.playbackMu.Lock()
	for i := 0; i < DefaultConfig().PlaybackHardLimit; i++ {
		s.pcmPlayback = append(s.pcmPlayback, PcmFrame{0})
	}
	s.playbackMu.Unlock()

	s.inbound.decodeJob(CompressedFrame{1, 2, 3})

	s.playbackMu.Lock()
	defer s.playbackMu.Unlock()
	assert.Len(t, s.pcmPlayback, DefaultConfig().PlaybackHardLimit)
}

func TestPlaybackQueueNeverExceedsHardLimitUnderLoad(t *testing.T) {
	s, _, _, _ := newTestSession()
	defer s.deps.Workers.Shutdown()

	for i := 0; i < 50; i++ {
		s.inbound.decodeJob(CompressedFrame{byte(i)})
	}

	s.playbackMu.Lock()
	defer s.playbackMu.Unlock()
	assert.LessOrEqual(t, len(s.pcmPlayback), DefaultConfig().PlaybackHardLimit)
}

func TestDecodeSchedulerRespectsBackpressure(t *testing.T) {
	s, _, _, _ := newTestSession()
	defer s.deps.Workers.Shutdown()

	cfg := DefaultConfig()
	UpdateConfig(cfg)
	defer UpdateConfig(DefaultConfig())

	s.playbackMu.Lock()
	s.pcmPlayback = append(s.pcmPlayback, PcmFrame{0}, PcmFrame{0})
	s.playbackMu.Unlock()

	s.mu.Lock()
	s.inboundCompressed = append(s.inboundCompressed, CompressedFrame{1})
	s.mu.Unlock()

	s.inbound.tick()

	assert.True(t, s.playbackBackpressure.Load())
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.inboundCompressed, 1, "no decode should have been scheduled under backpressure")
}

func TestAdmitFrameUpdatesQueueDepthGauge(t *testing.T) {
	s, _, _, _ := newTestSession()
	defer s.deps.Workers.Shutdown()

	s.mu.Lock()
	s.state = StateSpeaking
	s.mu.Unlock()

	s.inbound.AdmitFrame(CompressedFrame{1})
	s.inbound.AdmitFrame(CompressedFrame{2})

	assert.EqualValues(t, 2, testutil.ToFloat64(s.metrics.QueueDepth.WithLabelValues("inbound_compressed")))
}

func TestDecodeJobUpdatesPlaybackQueueDepthGauge(t *testing.T) {
	s, _, _, _ := newTestSession()
	defer s.deps.Workers.Shutdown()

	s.inbound.decodeJob(CompressedFrame{1, 2, 3})

	assert.EqualValues(t, 1, testutil.ToFloat64(s.metrics.QueueDepth.WithLabelValues("pcm_playback")))
}

func TestDecodeSchedulerSchedulesOneFramePerTick(t *testing.T) {
	s, _, _, _ := newTestSession()
	defer s.deps.Workers.Shutdown()

	s.mu.Lock()
	s.inboundCompressed = append(s.inboundCompressed, CompressedFrame{1}, CompressedFrame{2})
	s.mu.Unlock()

	s.inbound.tick()

	require.Eventually(t, func() bool {
		s.playbackMu.Lock()
		defer s.playbackMu.Unlock()
		return len(s.pcmPlayback) >= 1
	}, time.Second, time.Millisecond)
}
