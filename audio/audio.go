// Package audio abstracts microphone capture behind a small context
// and device pair. Capture delivers 16-bit little-endian mono PCM to
// a callback on the backend's own thread.
package audio

const (
	SampleRate = 16000
	Channels   = 1
)

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{SampleRate: SampleRate, Channels: Channels}
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

// CaptureDevice is restartable: Start/Stop may be called repeatedly,
// once per voice turn. The callback may be swapped while stopped.
type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
}
