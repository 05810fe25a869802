package audio

import "sync"

type fakeCodec struct {
	mu          sync.Mutex
	decodeCalls int
	resets      int
	decodeErr   error
	encodeErr   error
}

func (c *fakeCodec) Decode(frame []byte) ([]int16, error) {
	c.mu.Lock()
	c.decodeCalls++
	err := c.decodeErr
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]int16, len(frame))
	for i, b := range frame {
		out[i] = int16(b)
	}
	return out, nil
}

func (c *fakeCodec) Encode(pcm []int16) ([]byte, error) {
	if c.encodeErr != nil {
		return nil, c.encodeErr
	}
	out := make([]byte, len(pcm))
	for i, s := range pcm {
		out[i] = byte(s)
	}
	return out, nil
}

func (c *fakeCodec) ResetState() {
	c.mu.Lock()
	c.resets++
	c.mu.Unlock()
}

type fakeCaptureDevice struct {
	mu      sync.Mutex
	frames  [][]int16
	enabled bool
}

func (d *fakeCaptureDevice) ReadFrame(samples int) ([]int16, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.frames) == 0 {
		return nil, false
	}
	f := d.frames[0]
	d.frames = d.frames[1:]
	return f, true
}

func (d *fakeCaptureDevice) InputSampleRate() int { return 16000 }
func (d *fakeCaptureDevice) InputChannels() int   { return 1 }
func (d *fakeCaptureDevice) InputEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

type fakePlaybackDevice struct {
	mu     sync.Mutex
	frames []PcmFrame
}

func (d *fakePlaybackDevice) WriteFrame(pcm []int16) error {
	d.mu.Lock()
	d.frames = append(d.frames, append(PcmFrame(nil), pcm...))
	d.mu.Unlock()
	return nil
}

func (d *fakePlaybackDevice) OutputSampleRate() int { return 16000 }

func (d *fakePlaybackDevice) written() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}

type fakeWakeWord struct {
	mu      sync.Mutex
	running bool
	fed     int
}

func (w *fakeWakeWord) IsDetectionRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
func (w *fakeWakeWord) StartDetection() { w.mu.Lock(); w.running = true; w.mu.Unlock() }
func (w *fakeWakeWord) StopDetection()  { w.mu.Lock(); w.running = false; w.mu.Unlock() }
func (w *fakeWakeWord) FeedSize() int   { return 512 }
func (w *fakeWakeWord) Feed(mono []int16) {
	w.mu.Lock()
	w.fed++
	w.mu.Unlock()
}

type fakeProcessor struct {
	mu       sync.Mutex
	running  bool
	onOutput func([]int16)
	onVoice  func(bool)
}

func (p *fakeProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
func (p *fakeProcessor) Start() { p.mu.Lock(); p.running = true; p.mu.Unlock() }
func (p *fakeProcessor) Stop()  { p.mu.Lock(); p.running = false; p.mu.Unlock() }
func (p *fakeProcessor) FeedSize() int { return 512 }
func (p *fakeProcessor) Feed(mono []int16) {
	p.mu.Lock()
	cb := p.onOutput
	p.mu.Unlock()
	if cb != nil {
		cb(mono)
	}
}
func (p *fakeProcessor) OnOutput(f func([]int16))    { p.mu.Lock(); p.onOutput = f; p.mu.Unlock() }
func (p *fakeProcessor) OnVoiceActivity(f func(bool)) { p.mu.Lock(); p.onVoice = f; p.mu.Unlock() }

type fakeNotifier struct {
	mu       sync.Mutex
	statuses []string
	alerts   int
}

func (n *fakeNotifier) SetStatus(status string) {
	n.mu.Lock()
	n.statuses = append(n.statuses, status)
	n.mu.Unlock()
}
func (n *fakeNotifier) Alert(status, message, emotion string) {
	n.mu.Lock()
	n.alerts++
	n.mu.Unlock()
}

type fakePublisher struct {
	mu        sync.Mutex
	published []OutboundPacket
	failNext  bool
	ended     int
	cancels   int
}

func (p *fakePublisher) PublishAudio(payload []byte, timestamp uint32, hasTimestamp bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext {
		p.failNext = false
		return errTransportFailure
	}
	p.published = append(p.published, OutboundPacket{Payload: payload, Timestamp: timestamp, HasTimestamp: hasTimestamp})
	return nil
}
func (p *fakePublisher) PublishControl(v any) error { return nil }
func (p *fakePublisher) PublishAudioEnd() error {
	p.mu.Lock()
	p.ended++
	p.mu.Unlock()
	return nil
}
func (p *fakePublisher) PublishCancelTTS(userID, action string) error {
	p.mu.Lock()
	p.cancels++
	p.mu.Unlock()
	return nil
}

var errTransportFailure = &Error{Kind: ErrorKindUnknown}

func newTestSession() (*Session, *fakeCodec, *fakePlaybackDevice, *fakePublisher) {
	cfg := DefaultConfig()
	codec := &fakeCodec{}
	playback := &fakePlaybackDevice{}
	publisher := &fakePublisher{}
	workers := NewWorkerPool("test", cfg.WorkerCount, cfg.WorkerSoftWarn, cfg.WorkerSoftLimit, cfg.WorkerHardLimit)

	s := NewSession(cfg, SessionDeps{
		Codec:     codec,
		Playback:  playback,
		Publisher: publisher,
		Workers:   workers,
		FramePool: NewFramePool(960, 4096),
		Notifier:  &fakeNotifier{},
	})
	return s, codec, playback, publisher
}
