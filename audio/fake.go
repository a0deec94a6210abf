package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext synthesizes a steady tone instead of touching real
// hardware. Used by the headless test mode and package tests.
type FakeContext struct{}

func NewFakeContext() *FakeContext { return &FakeContext{} }

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "synthetic tone"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, cfg CaptureConfig) (CaptureDevice, error) {
	if cfg.SampleRate == 0 {
		cfg = DefaultCaptureConfig()
	}
	return &FakeCapture{rate: int(cfg.SampleRate)}, nil
}

type FakeCapture struct {
	rate int

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
	phase    float64
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

// Start feeds tone chunks at the real-time rate until Stop.
func (f *FakeCapture) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopCh != nil {
		select {
		case <-f.stopCh:
		default:
			return nil // already running
		}
	}
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	stop, done := f.stopCh, f.feedDone
	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(f.rate)
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case <-time.After(interval):
			}
			f.mu.Lock()
			cb := f.cb
			f.mu.Unlock()
			if cb != nil {
				cb(f.nextChunk(), fakeFrameSize)
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stop, done := f.stopCh, f.feedDone
	f.mu.Unlock()
	if stop == nil {
		return
	}
	select {
	case <-stop:
	default:
		close(stop)
	}
	<-done
}

func (f *FakeCapture) Close() {
	f.Stop()
}

// nextChunk renders the next 440 Hz slice, continuous across calls.
func (f *FakeCapture) nextChunk() []byte {
	const freq = 440.0
	step := 2 * math.Pi * freq / float64(f.rate)
	out := make([]byte, fakeFrameSize*fakeBytesPerFrame)
	f.mu.Lock()
	phase := f.phase
	f.mu.Unlock()
	for i := 0; i < fakeFrameSize; i++ {
		s := int16(math.Sin(phase) * 0.2 * math.MaxInt16)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
		phase += step
	}
	f.mu.Lock()
	f.phase = math.Mod(phase, 2*math.Pi)
	f.mu.Unlock()
	return out
}
