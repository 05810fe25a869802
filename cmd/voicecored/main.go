// Command voicecored runs the audio/session orchestration core as a
// standalone process: it loads persisted settings, opens the MQTT
// transport, wires the Session and its pipelines, and serves the
// diagnostics feed and Prometheus metrics until terminated. The teacher
// repo has no cmd/ directory (main.go lives at its module root as
// package kvm); this package follows the idiomatic Go convention of a
// thin cmd/<binary> entrypoint over the reusable internal/ packages.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gwatts/rootcerts"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ccl-123/Aibox-ESP32-C3-demo/internal/audio"
	"github.com/ccl-123/Aibox-ESP32-C3-demo/internal/diagnostics"
	"github.com/ccl-123/Aibox-ESP32-C3-demo/internal/logging"
	"github.com/ccl-123/Aibox-ESP32-C3-demo/internal/settings"
	"github.com/ccl-123/Aibox-ESP32-C3-demo/internal/transport"
)

func main() {
	logger := logging.Get("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rootcerts.UpdateDefaultTransport(); err != nil {
		logger.Warn().Err(err).Msg("failed to load root CA certificates")
	} else {
		logger.Info().Int("ca_certs_loaded", len(rootcerts.Certs())).Msg("loaded root CA certificates")
	}

	settingsPath := settingsFilePath()
	store, err := settings.NewFileStore(settingsPath)
	if err != nil {
		logger.Error().Err(err).Str("path", settingsPath).Msg("failed to open settings store")
		os.Exit(1)
	}

	deviceID, err := settings.GetOrCreateDeviceID(store)
	if err != nil {
		logger.Error().Err(err).Msg("failed to establish device identity")
		os.Exit(1)
	}

	language, _ := store.GetString(settings.KeyLanguagesType)
	if language == "" {
		language = "en"
	}

	mqttCfg, err := store.MQTT()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load mqtt settings")
		os.Exit(1)
	}

	cfg := audio.DefaultConfig()
	workers := audio.NewWorkerPool("decode-encode", cfg.WorkerCount, cfg.WorkerSoftWarn, cfg.WorkerSoftLimit, cfg.WorkerHardLimit)
	scheduler := audio.NewPriorityScheduler()
	framePool := audio.NewFramePool(cfg.SampleRateHz*cfg.FrameDurationMs/1000, cfg.SampleRateHz)

	session := audio.NewSession(cfg, audio.SessionDeps{
		Workers:   workers,
		FramePool: framePool,
		Scheduler: scheduler,
	})

	adapter, err := transport.NewAdapter(mqttCfg, deviceID, language, transport.Callbacks{
		OnIncomingJSON:       makeJSONHandler(session),
		OnIncomingAudio:      session.OnIncomingAudio,
		OnServerVADDetected:  session.OnServerVADDetected,
		OnAudioChannelOpened: session.OnAudioChannelOpened,
		OnAudioChannelClosed: session.OnAudioChannelClosed,
		OnNetworkError:       session.OnNetworkError,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to construct transport adapter")
		os.Exit(1)
	}
	session.SetPublisher(adapter)

	if err := adapter.Connect(); err != nil {
		logger.Warn().Err(err).Msg("initial mqtt connect failed, will retry on demand")
	}
	defer adapter.Close()

	monitor := audio.NewStateMonitor(64)
	monitor.Attach(session)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/diagnostics", diagnostics.NewServer(monitor))
	mux.Handle("/health", makeHealthHandler(session))
	diagServer := &http.Server{Addr: ":8090", Handler: mux}
	go func() {
		if err := diagServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn().Err(err).Msg("diagnostics server stopped")
		}
	}()

	go session.Run(ctx)
	go session.Inbound().RunDecodeScheduler(ctx)
	go session.Outbound().RunCaptureLoop(ctx)
	go session.Playback().Run(ctx)

	session.SetState(audio.StateStarting)
	session.SetState(audio.StateIdle)

	logger.Info().Str("device_id", deviceID).Msg("voicecored started")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	logger.Info().Msg("voicecored shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = diagServer.Shutdown(shutdownCtx)
	workers.Shutdown()
}

func settingsFilePath() string {
	if p := os.Getenv("VOICECORE_SETTINGS_PATH"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "voicecore", "settings.json")
}

// makeHealthHandler serves the transport connectivity snapshot tracked by
// Session.Health, letting an external monitor poll reconnect/error state
// without subscribing to the diagnostics websocket feed.
func makeHealthHandler(s *audio.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.Health()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// makeJSONHandler dispatches a parsed transport event onto the Session
// loop, translating spec.md §4.6's message types into Session entry
// points.
func makeJSONHandler(s *audio.Session) func(transport.Event) {
	return func(ev transport.Event) {
		switch ev.Kind {
		case transport.EventTTS:
			switch ev.TTSState {
			case "start":
				s.Schedule(func() {
					if s.State() == audio.StateListening {
						s.SetState(audio.StateSpeaking)
					}
				})
			case "stop":
				s.OnTTSPlaybackStopped()
			}
		case transport.EventSystem:
			// e.g. reboot: not acted on here.
		case transport.EventControl:
			// numeric remote-actuation types (volume/shutdown/idle/suck/
			// vibration/heater) are out of this package's scope per
			// spec.md §1 ("board-specific peripheral controllers"); they
			// are not acted on or persisted here.
		}
	}
}
