package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventNamedTypes(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"tts","state":"sentence_start"}`))
	require.NoError(t, err)
	assert.Equal(t, EventTTS, ev.Kind)
	assert.Equal(t, "sentence_start", ev.TTSState)

	ev, err = ParseEvent([]byte(`{"type":"llm","emotion":"happy"}`))
	require.NoError(t, err)
	assert.Equal(t, EventLLM, ev.Kind)
	assert.Equal(t, "happy", ev.Emotion)

	for _, name := range []string{"stt", "iot", "mcp", "system", "alert"} {
		ev, err := ParseEvent([]byte(`{"type":"` + name + `"}`))
		require.NoError(t, err)
		assert.Equal(t, EventKind(name), ev.Kind)
	}
}

func TestParseEventNumericControlTypes(t *testing.T) {
	for _, code := range []int{0, 1, 3, 4, 5, 6} {
		ev, err := ParseEvent([]byte(`{"type":` + string(rune('0'+code)) + `}`))
		require.NoError(t, err)
		assert.Equal(t, EventControl, ev.Kind)
		assert.EqualValues(t, code, ev.Control)
	}
}

func TestParseEventRejectsUnknownControlCode(t *testing.T) {
	_, err := ParseEvent([]byte(`{"type":2}`))
	assert.Error(t, err)
}

func TestParseEventRejectsMalformedJSON(t *testing.T) {
	_, err := ParseEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseEventRejectsMissingType(t *testing.T) {
	_, err := ParseEvent([]byte(`{"foo":"bar"}`))
	assert.Error(t, err)
}
