// Package playback renders short feedback cues and exposes the
// controls the coordinator uses to abort or pause reply audio. All
// calls are fire-and-forget and safe from any goroutine.
package playback

import "math"

const (
	sampleRate = 44100

	// Capture-start cue: high pitch, short.
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// Capture-end cue: medium pitch, slightly longer.
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Error cue: low pitch double tone.
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

// Cue identifies one of the built-in feedback tones.
type Cue int

const (
	CueStart Cue = iota
	CueEnd
	CueError
)

func tone(freq, duration, volume, decay float64) []int16 {
	n := int(sampleRate * duration)
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRate
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func doubleTone(freq, toneDur, gapDur, volume, decay float64) []int16 {
	single := tone(freq, toneDur, volume, decay)
	gap := make([]int16, int(sampleRate*gapDur))
	out := make([]int16, 0, len(single)*2+len(gap))
	out = append(out, single...)
	out = append(out, gap...)
	out = append(out, single...)
	return out
}

func renderCues() map[Cue][]int16 {
	return map[Cue][]int16{
		CueStart: tone(startFreq, 0.2, startVolume, startDecay),
		CueEnd:   tone(endFreq, 0.2, endVolume, endDecay),
		CueError: doubleTone(errorFreq, 0.08, 0.05, errorVolume, errorDecay),
	}
}
