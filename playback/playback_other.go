//go:build !linux

package playback

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"vesper/log"
)

// Player owns one malgo playback device fed from an atomic sample
// pointer. The data callback streams the current cue and falls back
// to silence, so Stop is just clearing the pointer.
type Player struct {
	enabled bool
	cues    map[Cue][]byte

	initOnce sync.Once
	ctx      *malgo.AllocatedContext
	device   *malgo.Device

	mu      sync.Mutex
	samples atomic.Pointer[[]byte]
	pos     atomic.Uint32
	paused  atomic.Bool
}

func NewPlayer(enabled bool) *Player {
	p := &Player{enabled: enabled}
	if enabled {
		p.cues = make(map[Cue][]byte, 3)
		for cue, samples := range renderCues() {
			p.cues[cue] = toBytes(samples)
		}
	}
	return p
}

func toBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func (p *Player) init() {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Debugf("playback: malgo context: %v", err)
		return
	}
	p.ctx = ctx
	if err := p.initDevice(); err != nil {
		log.Debugf("playback: malgo device: %v", err)
		ctx.Uninit()
		p.ctx = nil
	}
}

func (p *Player) initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	dev, err := malgo.InitDevice(p.ctx.Context, config, malgo.DeviceCallbacks{
		Data: p.dataCallback,
	})
	if err != nil {
		return err
	}
	p.device = dev
	return nil
}

func (p *Player) dataCallback(out, _ []byte, frameCount uint32) {
	zero := func(from uint32) {
		for i := from; i < frameCount*2; i++ {
			out[i] = 0
		}
	}

	samples := p.samples.Load()
	if samples == nil || p.paused.Load() {
		zero(0)
		return
	}

	pos := p.pos.Load()
	remaining := uint32(len(*samples)) - pos
	if remaining == 0 {
		p.samples.Store(nil)
		zero(0)
		return
	}

	n := frameCount * 2
	if n > remaining {
		n = remaining
	}
	copy(out[:n], (*samples)[pos:pos+n])
	p.pos.Store(pos + n)
	zero(n)
}

func (p *Player) Play(c Cue) {
	if !p.enabled {
		return
	}
	samples := p.cues[c]
	if len(samples) == 0 {
		return
	}
	p.initOnce.Do(p.init)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return
	}
	p.pos.Store(0)
	p.paused.Store(false)
	p.samples.Store(&samples)

	if err := p.device.Start(); err != nil {
		// Device handles go stale across sleep/wake; rebuild once.
		p.device.Uninit()
		if err := p.initDevice(); err != nil {
			p.samples.Store(nil)
			p.device = nil
			return
		}
		if err := p.device.Start(); err != nil {
			p.samples.Store(nil)
		}
	}
}

func (p *Player) Stop() {
	p.samples.Store(nil)
}

func (p *Player) Pause() {
	p.paused.Store(true)
}

func (p *Player) Resume() {
	p.paused.Store(false)
}

func (p *Player) Close() {
	p.Stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device != nil {
		p.device.Uninit()
		p.device = nil
	}
	if p.ctx != nil {
		p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
}
