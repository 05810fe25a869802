package transport

import "fmt"

// Topics holds every per-device topic name the adapter subscribes or
// publishes to, derived once per connection from the device identity and
// current language setting. Names and QoS values follow
// original_source/main/protocols/mqtt_protocol.cc literally, except
// ServerVAD which the original folds into the audio topic's payload
// discrimination; spec.md §6 calls for a distinct server-VAD topic, so
// this is a documented addition rather than a literal port.
type Topics struct {
	// Subscribe topics.
	Audio     string // the operator-configured subscribe_topic, QoS 2
	Control   string // doll/control/<device_id>, QoS 0
	Settings  string // doll/set/<device_id>, QoS 0
	Moan      string // doll/control_moan/<device_id>, QoS 0
	ServerVAD string // doll/vad/<device_id>, QoS 1 (added per spec.md §6)

	// Publish topics.
	Publish   string // stt/doll/<device_id>/<language>
	CancelTTS string // tts/cancel, QoS 2
	IMUStatus string // doll/imu_status
}

// QoS values, named per mqtt_protocol.cc's literal Subscribe/Publish
// calls.
const (
	QoSAudio     = 2
	QoSControl   = 0
	QoSSettings  = 0
	QoSMoan      = 0
	QoSServerVAD = 1
	QoSCancelTTS = 2
	QoSChunked   = 0 // "published at low quality-of-service" per spec.md §4.6
)

// NewTopics derives the full topic set for a device identity and
// language, matching StartMqttClient/UpdateLanguage's string formats.
func NewTopics(deviceID, language, subscribeTopic string) Topics {
	return Topics{
		Audio:     subscribeTopic,
		Control:   fmt.Sprintf("doll/control/%s", deviceID),
		Settings:  fmt.Sprintf("doll/set/%s", deviceID),
		Moan:      fmt.Sprintf("doll/control_moan/%s", deviceID),
		ServerVAD: fmt.Sprintf("doll/vad/%s", deviceID),
		Publish:   fmt.Sprintf("stt/doll/%s/%s", deviceID, language),
		CancelTTS: "tts/cancel",
		IMUStatus: "doll/imu_status",
	}
}

// WithLanguage rederives the Publish topic after a language change,
// matching UpdateLanguage's behavior of leaving every other topic intact.
func (t Topics) WithLanguage(deviceID, language string) Topics {
	t.Publish = fmt.Sprintf("stt/doll/%s/%s", deviceID, language)
	return t
}
