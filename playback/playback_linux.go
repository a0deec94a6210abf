//go:build linux

package playback

import (
	"sync"

	"github.com/jfreymuth/pulse"

	"vesper/log"
)

// Player plays each cue on a short-lived pulse stream. Stop aborts
// whatever is in flight; Pause and Resume gate the current stream.
type Player struct {
	enabled bool
	cues    map[Cue][]int16

	mu     sync.Mutex
	abort  chan struct{}
	stream *pulse.PlaybackStream
	paused bool
}

func NewPlayer(enabled bool) *Player {
	p := &Player{enabled: enabled}
	if enabled {
		p.cues = renderCues()
	}
	return p
}

func (p *Player) Play(c Cue) {
	if !p.enabled {
		return
	}
	samples := p.cues[c]
	if len(samples) == 0 {
		return
	}
	go p.play(samples)
}

// Stop aborts the in-flight stream, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.abortLocked()
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil && !p.paused {
		p.stream.Stop()
		p.paused = true
	}
}

func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil && p.paused {
		p.stream.Start()
		p.paused = false
	}
}

func (p *Player) Close() {
	p.Stop()
}

func (p *Player) abortLocked() {
	if p.abort == nil {
		return
	}
	select {
	case <-p.abort:
	default:
		close(p.abort)
	}
}

func (p *Player) play(samples []int16) {
	c, err := pulse.NewClient()
	if err != nil {
		log.Debugf("playback: pulse client: %v", err)
		return
	}
	defer c.Close()

	abort := make(chan struct{})
	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		select {
		case <-abort:
			return 0, pulse.EndOfData
		default:
		}
		if pos >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[pos:])
		pos += n
		return n, nil
	})

	stream, err := c.NewPlayback(reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
	)
	if err != nil {
		log.Debugf("playback: open stream: %v", err)
		return
	}

	p.mu.Lock()
	p.abortLocked() // a new cue supersedes the previous one
	p.abort = abort
	p.stream = stream
	p.paused = false
	p.mu.Unlock()

	stream.Start()
	stream.Drain()

	p.mu.Lock()
	if p.stream == stream {
		p.stream = nil
		p.abort = nil
	}
	p.mu.Unlock()

	stream.Stop()
	stream.Close()
}
