package transport

import "encoding/binary"

// MaxChunkBytes is the chunk-size cap of spec.md §4.6/§6: payloads above
// this are split into chunks no larger than this.
const MaxChunkBytes = 1024

// FrameAudio applies the outbound audio framing of spec.md §6: a 4-byte
// big-endian timestamp prefix when timestamp != 0 (matching
// mqtt_protocol.cc's SendAudio, which only prefixes on a nonzero
// timestamp), otherwise the payload alone.
func FrameAudio(payload []byte, timestamp uint32) []byte {
	if timestamp == 0 {
		return payload
	}
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out, timestamp)
	copy(out[4:], payload)
	return out
}

// ChunkPayload splits a framed audio payload into chunks of at most
// MaxChunkBytes, per spec.md §4.6/§6. Payloads at or below the cap are
// returned as a single chunk.
func ChunkPayload(payload []byte) [][]byte {
	if len(payload) <= MaxChunkBytes {
		return [][]byte{payload}
	}
	var chunks [][]byte
	for start := 0; start < len(payload); start += MaxChunkBytes {
		end := start + MaxChunkBytes
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[start:end])
	}
	return chunks
}
