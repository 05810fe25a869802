package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTopicsDerivesFromDeviceID(t *testing.T) {
	tp := NewTopics("123456", "en", "sub/audio/123456")
	assert.Equal(t, "sub/audio/123456", tp.Audio)
	assert.Equal(t, "doll/control/123456", tp.Control)
	assert.Equal(t, "doll/set/123456", tp.Settings)
	assert.Equal(t, "doll/control_moan/123456", tp.Moan)
	assert.Equal(t, "doll/vad/123456", tp.ServerVAD)
	assert.Equal(t, "stt/doll/123456/en", tp.Publish)
	assert.Equal(t, "tts/cancel", tp.CancelTTS)
	assert.Equal(t, "doll/imu_status", tp.IMUStatus)
}

func TestWithLanguageOnlyChangesPublishTopic(t *testing.T) {
	tp := NewTopics("123456", "en", "sub/audio/123456")
	updated := tp.WithLanguage("123456", "zh")
	assert.Equal(t, "stt/doll/123456/zh", updated.Publish)
	assert.Equal(t, tp.Control, updated.Control)
}
