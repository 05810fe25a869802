package diagnostics

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ccl-123/Aibox-ESP32-C3-demo/internal/audio"
	"github.com/ccl-123/Aibox-ESP32-C3-demo/internal/logging"
)

// TransitionMessage is the wire shape pushed to each websocket
// subscriber, one JSON object per state transition.
type TransitionMessage struct {
	SubscriberID string    `json:"subscriber_id"`
	Old          string    `json:"old_state"`
	New          string    `json:"new_state"`
	Mode         string    `json:"listening_mode"`
	AecMode      string    `json:"aec_mode"`
	VoiceActive  bool      `json:"voice_active"`
	At           time.Time `json:"at"`
}

// Server serves the diagnostics feed over a websocket, one connection per
// subscriber, adapted from audio_events.go's AudioEventBroadcaster: the
// same "one channel per subscriber, drop on backpressure" fan-out, wired
// to a websocket transport with github.com/coder/websocket instead of the
// teacher's WebRTC data channel.
type Server struct {
	monitor *audio.StateMonitor
	logger  *zerolog.Logger
}

// NewServer wraps a StateMonitor for websocket delivery.
func NewServer(monitor *audio.StateMonitor) *Server {
	return &Server{monitor: monitor, logger: logging.Get("diagnostics")}
}

// ServeHTTP upgrades the request to a websocket and streams state
// transitions to it until the client disconnects or the request context
// is cancelled.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	subscriberID := uuid.NewString()
	defer conn.CloseNow()

	ctx := r.Context()
	events, unsubscribe := s.monitor.Subscribe(32)
	defer unsubscribe()

	s.logger.Info().Str("subscriber", subscriberID).Msg("diagnostics subscriber connected")

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "monitor closed")
				return
			}
			msg := TransitionMessage{
				SubscriberID: subscriberID,
				Old:          ev.Old.String(),
				New:          ev.New.String(),
				Mode:         ev.Mode.String(),
				AecMode:      ev.AecMode.String(),
				VoiceActive:  ev.Voice,
				At:           time.Now(),
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, msg)
			cancel()
			if err != nil {
				s.logger.Debug().Str("subscriber", subscriberID).Err(err).Msg("diagnostics subscriber disconnected")
				return
			}
		}
	}
}
