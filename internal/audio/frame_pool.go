package audio

import "sync"

// FramePool is a sync.Pool-backed reuse pool for decoded PCM frames,
// adapted from the teacher's SizedBufferPool (sized_buffer_pool.go): the
// pool hands out slices with at least the requested capacity and clears
// them on return so a stale sample never leaks into a fresh frame. It
// exists so the decode->playback hot path (spec.md §4.2, §4.4) performs
// no fresh allocation beyond what the caller already owns, extending the
// "never allocates on the hot path" invariant spec.md §4.4 states for
// Playback back into the decode stage that feeds it.
type FramePool struct {
	pool        sync.Pool
	defaultLen  int
	maxCapacity int
}

// NewFramePool creates a pool whose Get returns frames pre-sized to
// defaultLen samples; frames larger than maxCapacity are not retained on
// Put to avoid unbounded growth from one oversized outlier frame.
func NewFramePool(defaultLen, maxCapacity int) *FramePool {
	p := &FramePool{defaultLen: defaultLen, maxCapacity: maxCapacity}
	p.pool.New = func() any {
		buf := make(PcmFrame, defaultLen)
		return &buf
	}
	return p
}

// Get returns a frame with length exactly n, reusing a pooled backing
// array when it has sufficient capacity.
func (p *FramePool) Get(n int) PcmFrame {
	v := p.pool.Get()
	bufPtr, ok := v.(*PcmFrame)
	if !ok || bufPtr == nil {
		return make(PcmFrame, n)
	}
	buf := *bufPtr
	if cap(buf) < n {
		return make(PcmFrame, n)
	}
	return buf[:n]
}

// Put returns a frame to the pool for reuse. Callers must not touch the
// frame again after calling Put.
func (p *FramePool) Put(frame PcmFrame) {
	if cap(frame) > p.maxCapacity {
		return
	}
	for i := range frame {
		frame[i] = 0
	}
	buf := frame[:0]
	p.pool.Put(&buf)
}
