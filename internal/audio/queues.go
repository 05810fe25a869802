package audio

// CompressedFrame is one opaque compressed audio frame (spec.md §3): no
// header, decode parameters fixed per session.
type CompressedFrame []byte

// PcmFrame is one 16-bit signed mono PCM frame at the output device's
// native rate (spec.md §3).
type PcmFrame []int16

// OutboundPacket is a compressed payload plus an optional monotonically
// advancing timestamp, used only when server-side AEC requires it
// (spec.md §3).
type OutboundPacket struct {
	Payload      []byte
	Timestamp    uint32
	HasTimestamp bool
}

// task is a deferred closure destined for the Session loop's main_tasks
// queue (spec.md §3).
type task func()

// thinQueue implements the thinning admission policy of spec.md §4.2 and
// §9: scan the queue in order and remove every Nth frame (stride N), up to
// maxRemovals frames, to release space without a perceptible gap. It is a
// pure function over a slice so it can be tested in isolation of any
// locking (spec.md §8 property 7).
//
// The original firmware's admission path (application.cc) drops on a
// full queue with no thinning visible in the excerpted sources; spec.md
// §9 explicitly calls for the stride-removal policy "preserved literally
// from the source" as the intended behavior, so that is what this
// function implements.
func thinQueue(frames []CompressedFrame, stride, maxRemovals int) ([]CompressedFrame, int) {
	if stride <= 0 || len(frames) == 0 {
		return frames, 0
	}
	out := make([]CompressedFrame, 0, len(frames))
	removed := 0
	for i, f := range frames {
		if removed < maxRemovals && (i+1)%stride == 0 {
			removed++
			continue
		}
		out = append(out, f)
	}
	return out, removed
}
