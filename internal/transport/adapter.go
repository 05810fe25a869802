package transport

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/gwatts/rootcerts"
	"github.com/rs/zerolog"

	"github.com/ccl-123/Aibox-ESP32-C3-demo/internal/logging"
	"github.com/ccl-123/Aibox-ESP32-C3-demo/internal/settings"
)

// mqttClient is the subset of mqtt.Client the adapter drives, factored
// out so tests can substitute an in-memory fake without a broker. A real
// *paho mqtt.Client satisfies this structurally.
type mqttClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	IsConnected() bool
}

// Callbacks bundles the six callbacks the Session installs on the
// Transport Adapter at startup, per spec.md §4.6.
type Callbacks struct {
	OnIncomingJSON       func(Event)
	OnIncomingAudio      func(payload []byte)
	OnServerVADDetected  func()
	OnAudioChannelOpened func()
	OnAudioChannelClosed func()
	OnNetworkError       func(error)
}

// Adapter is the Transport Adapter of spec.md §4.6: it owns the pub/sub
// client, subscribes to the per-device topic set, demultiplexes inbound
// messages, and exposes the outbound half as internal/audio.Publisher.
// Grounded on original_source/main/protocols/mqtt_protocol.cc for
// connect/subscribe/dispatch shape, with github.com/eclipse/paho.mqtt.golang
// as the concrete client (named as an out-of-pack dependency in
// SPEC_FULL.md — no example repo ships a pub/sub client).
type Adapter struct {
	client mqttClient
	topics Topics
	cb     Callbacks
	logger *zerolog.Logger
}

// NewAdapter builds a paho MQTT client from settings and wires TLS root
// CAs the way the teacher's main.go wires them for its own outbound
// HTTPS calls (github.com/gwatts/rootcerts.UpdateDefaultTransport-style
// bundle, applied here to the MQTT TLS config instead).
func NewAdapter(cfg settings.MQTTConfig, deviceID, language string, cb Callbacks) (*Adapter, error) {
	if cfg.Endpoint == "" {
		return nil, ErrEmptyEndpoint
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "voicecore-" + uuid.NewString()
	}

	a := &Adapter{
		topics: NewTopics(deviceID, language, cfg.SubscribeTopic),
		cb:     cb,
		logger: logging.Get("transport"),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Endpoint).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(time.Duration(cfg.Keepalive) * time.Second).
		SetAutoReconnect(true).
		SetTLSConfig(&tls.Config{RootCAs: rootcerts.ServerCertPool()})

	// paho copies *ClientOptions by value inside NewClient, so the
	// connection-lost handler must be set on opts before that call or it
	// is never registered on the constructed client.
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		a.logger.Warn().Err(err).Msg("mqtt connection lost")
		if a.cb.OnNetworkError != nil {
			a.cb.OnNetworkError(newError(ErrorKindTransportUnavailable, err))
		}
		// In pure MQTT mode the audio channel is open exactly while the
		// connection is open (mqtt_protocol.cc), so a connection loss is
		// itself a genuine channel-close event.
		if a.cb.OnAudioChannelClosed != nil {
			a.cb.OnAudioChannelClosed()
		}
	})

	a.client = mqtt.NewClient(opts)
	return a, nil
}

// Connect opens the MQTT connection and subscribes to every topic in the
// per-device topic set, per spec.md §6.
func (a *Adapter) Connect() error {
	token := a.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return newError(ErrorKindTransportUnavailable, fmt.Errorf("connect timed out"))
	}
	if err := token.Error(); err != nil {
		return newError(ErrorKindTransportUnavailable, err)
	}

	subs := []struct {
		topic string
		qos   byte
	}{
		{a.topics.Audio, QoSAudio},
		{a.topics.Control, QoSControl},
		{a.topics.Settings, QoSSettings},
		{a.topics.Moan, QoSMoan},
		{a.topics.ServerVAD, QoSServerVAD},
	}
	for _, sub := range subs {
		if sub.topic == "" {
			continue
		}
		t := a.client.Subscribe(sub.topic, sub.qos, a.handleMessage)
		if !t.WaitTimeout(5*time.Second) || t.Error() != nil {
			return newError(ErrorKindTransportUnavailable, fmt.Errorf("subscribe %s: %w", sub.topic, t.Error()))
		}
	}

	if a.cb.OnAudioChannelOpened != nil {
		a.cb.OnAudioChannelOpened()
	}
	return nil
}

// handleMessage demultiplexes one inbound message by topic, matching
// mqtt_protocol.cc's OnMessage handler: JSON vs opaque-audio
// discrimination on the audio topic by leading '{', and the server-VAD
// topic checked separately for spec.md's expanded topic set.
func (a *Adapter) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	payload := msg.Payload()

	switch topic {
	case a.topics.ServerVAD:
		if IsServerVADEnd(payload) && a.cb.OnServerVADDetected != nil {
			a.cb.OnServerVADDetected()
		}
		return
	case a.topics.Audio:
		if len(payload) > 0 && payload[0] == '{' {
			a.dispatchJSON(payload)
			return
		}
		if a.cb.OnIncomingAudio != nil {
			a.cb.OnIncomingAudio(payload)
		}
		return
	case a.topics.Control, a.topics.Settings, a.topics.Moan:
		a.dispatchJSON(payload)
		return
	default:
		a.logger.Warn().Str("topic", topic).Msg("unhandled topic")
	}
}

func (a *Adapter) dispatchJSON(payload []byte) {
	ev, err := ParseEvent(payload)
	if err != nil {
		a.logger.Warn().Err(err).Msg("dropping malformed control message")
		return
	}
	if a.cb.OnIncomingJSON != nil {
		a.cb.OnIncomingJSON(ev)
	}
}

// PublishAudio implements internal/audio.Publisher: frame, chunk if
// needed, and publish at low QoS for chunks per spec.md §4.6.
func (a *Adapter) PublishAudio(payload []byte, timestamp uint32, hasTimestamp bool) error {
	if !a.client.IsConnected() {
		return newError(ErrorKindTransportTransient, ErrNotConnected)
	}
	ts := uint32(0)
	if hasTimestamp {
		ts = timestamp
	}
	framed := FrameAudio(payload, ts)
	chunks := ChunkPayload(framed)

	qos := byte(QoSAudio)
	if len(chunks) > 1 {
		qos = QoSChunked
	}
	for _, chunk := range chunks {
		token := a.client.Publish(a.topics.Publish, qos, false, chunk)
		if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			return newError(ErrorKindTransportTransient, fmt.Errorf("publish audio chunk: %w", token.Error()))
		}
	}
	return nil
}

// PublishControl publishes an arbitrary JSON-serializable control value
// to the publish topic (spec.md §4.6's outbound "JSON for text/control").
func (a *Adapter) PublishControl(v any) error {
	if !a.client.IsConnected() {
		return newError(ErrorKindTransportTransient, ErrNotConnected)
	}
	body, err := json.Marshal(v)
	if err != nil {
		return newError(ErrorKindProtocolViolation, err)
	}
	token := a.client.Publish(a.topics.Publish, QoSAudio, false, body)
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		return newError(ErrorKindTransportTransient, token.Error())
	}
	return nil
}

// PublishAudioEnd sends the explicit END sentinel (spec.md §4.6), matching
// mqtt_protocol.cc's CloseAudioChannel publish half. It only sends the
// sentinel; OnAudioChannelClosed is a separate, inbound notification fired
// by the transport itself on a real channel-close event, never re-raised
// from here.
func (a *Adapter) PublishAudioEnd() error {
	if !a.client.IsConnected() {
		return newError(ErrorKindTransportTransient, ErrNotConnected)
	}
	token := a.client.Publish(a.topics.Publish, 1, false, "END")
	token.WaitTimeout(5 * time.Second)
	return token.Error()
}

// PublishCancelTTS sends the cancel-TTS control message, matching
// mqtt_protocol.cc's SendCancelTTS.
func (a *Adapter) PublishCancelTTS(userID, action string) error {
	if !a.client.IsConnected() {
		return newError(ErrorKindTransportTransient, ErrNotConnected)
	}
	if action != "finish" && action != "stop" {
		action = "stop"
	}
	body, err := json.Marshal(map[string]string{"user_id": userID, "action": action})
	if err != nil {
		return newError(ErrorKindProtocolViolation, err)
	}
	token := a.client.Publish(a.topics.CancelTTS, QoSCancelTTS, false, body)
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		return newError(ErrorKindTransportTransient, token.Error())
	}
	return nil
}

// Close disconnects the client, quiescing outstanding work briefly.
func (a *Adapter) Close() {
	a.client.Disconnect(250)
}
