package audio

import (
	"sync/atomic"
	"testing"
	"time"
)

func newFakeCapture(t *testing.T) CaptureDevice {
	t.Helper()
	ctx := NewFakeContext()
	dev, err := ctx.NewCapture(nil, DefaultCaptureConfig())
	if err != nil {
		t.Fatal(err)
	}
	return dev
}

func TestFakeCaptureDeliversPCM(t *testing.T) {
	dev := newFakeCapture(t)

	var chunks atomic.Int64
	dev.SetCallback(func(data []byte, frameCount uint32) {
		if len(data) != int(frameCount)*fakeBytesPerFrame {
			t.Errorf("chunk size %d does not match %d frames", len(data), frameCount)
		}
		chunks.Add(1)
	})

	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(2 * time.Second)
	for chunks.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no PCM delivered")
		case <-time.After(10 * time.Millisecond):
		}
	}
	dev.Stop()

	after := chunks.Load()
	time.Sleep(200 * time.Millisecond)
	if chunks.Load() != after {
		t.Error("chunks kept arriving after Stop")
	}
}

func TestFakeCaptureRestart(t *testing.T) {
	dev := newFakeCapture(t)

	var chunks atomic.Int64
	dev.SetCallback(func([]byte, uint32) { chunks.Add(1) })

	for i := 0; i < 2; i++ {
		if err := dev.Start(); err != nil {
			t.Fatal(err)
		}
		deadline := time.After(2 * time.Second)
		start := chunks.Load()
		for chunks.Load() == start {
			select {
			case <-deadline:
				t.Fatalf("run %d delivered nothing", i)
			case <-time.After(10 * time.Millisecond):
			}
		}
		dev.Stop()
	}
}

func TestFakeCaptureClearCallback(t *testing.T) {
	dev := newFakeCapture(t)
	var chunks atomic.Int64
	dev.SetCallback(func([]byte, uint32) { chunks.Add(1) })
	dev.ClearCallback()

	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	dev.Stop()

	if chunks.Load() != 0 {
		t.Error("callback ran after ClearCallback")
	}
}

func TestStopWithoutStart(t *testing.T) {
	dev := newFakeCapture(t)
	dev.Stop() // must not hang or panic
}
