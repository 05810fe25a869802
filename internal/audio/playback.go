package audio

import (
	"context"

	"github.com/ccl-123/Aibox-ESP32-C3-demo/internal/logging"
	"github.com/rs/zerolog"
)

// Playback is the single-consumer task of spec.md §4.4: it waits on
// pcm_playback's condition variable, writes one frame to the output
// device outside the lock, and broadcasts a drain signal when the queue
// empties. Grounded on application.cc's OnAudioOutput write path and the
// teacher's convention of a dedicated goroutine per long-lived task.
type Playback struct {
	session *Session
	logger  *zerolog.Logger
}

func newPlayback(s *Session) *Playback {
	return &Playback{session: s, logger: logging.Get("playback")}
}

// Run drives the output device until ctx is cancelled. Never allocates on
// the hot path beyond the frame it already owns (spec.md §4.4).
func (pb *Playback) Run(ctx context.Context) {
	s := pb.session
	if s.deps.Scheduler != nil {
		s.deps.Scheduler.SetPriority(GetConfig().PlaybackLoopPriority)
	}

	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		s.playbackMu.Lock()
		s.playbackCond.Broadcast()
		s.playbackMu.Unlock()
		close(stop)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.playbackMu.Lock()
		for len(s.pcmPlayback) == 0 {
			select {
			case <-ctx.Done():
				s.playbackMu.Unlock()
				return
			default:
			}
			s.playbackCond.Wait()
		}

		frame := s.pcmPlayback[0]
		s.pcmPlayback = s.pcmPlayback[1:]
		depth := len(s.pcmPlayback)
		empty := depth == 0
		s.playbackMu.Unlock()
		s.metrics.QueueDepth.WithLabelValues("pcm_playback").Set(float64(depth))

		if s.deps.Playback != nil {
			if err := s.deps.Playback.WriteFrame(frame); err != nil {
				pb.logger.Warn().Err(err).Msg("playback write failed")
			}
		}
		if s.deps.FramePool != nil {
			s.deps.FramePool.Put(frame)
		}

		if empty {
			s.playbackMu.Lock()
			s.playbackCond.Broadcast()
			s.playbackMu.Unlock()
		}
	}
}

// WaitDrain blocks until pcm_playback is empty, matching the "speech
// stop" handshake of spec.md §4.4. Idempotent: calling it twice in a row
// with an already-empty queue returns promptly (spec.md §8 property 6).
func (pb *Playback) WaitDrain(ctx context.Context) {
	s := pb.session
	s.playbackMu.Lock()
	defer s.playbackMu.Unlock()
	for len(s.pcmPlayback) > 0 {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.playbackCond.Wait()
	}
}
