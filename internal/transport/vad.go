package transport

import (
	"encoding/json"
	"strings"
)

type vadPayload struct {
	Type    string `json:"type"`
	Trigger string `json:"trigger"`
	Message string `json:"message"`
}

// IsServerVADEnd implements spec.md §4.6's server-VAD event detection: a
// plain "END" (trimmed, case-insensitive) or a JSON object with
// type=speech_end AND trigger in {vad_detection, valid_speech_confirmed}
// AND message=END.
func IsServerVADEnd(payload []byte) bool {
	trimmed := strings.TrimSpace(string(payload))
	if strings.EqualFold(trimmed, "END") {
		return true
	}

	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}

	var v vadPayload
	if err := json.Unmarshal(payload, &v); err != nil {
		return false
	}
	if v.Type != "speech_end" {
		return false
	}
	if v.Trigger != "vad_detection" && v.Trigger != "valid_speech_confirmed" {
		return false
	}
	return v.Message == "END"
}
