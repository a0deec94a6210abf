package session

import (
	"context"
	"time"

	"vesper/bus"
	"vesper/key"
	"vesper/log"
	"vesper/mode"
	"vesper/remote"
)

// Bus topics published by the coordinator.
const (
	TopicPress             = "keyboard.press"
	TopicShortPress        = "keyboard.short_press"
	TopicRelease           = "keyboard.release"
	TopicPlaybackCancelled = "playback.cancelled"
	TopicRecognized        = "capture.recognized"
	TopicRemoteCompleted   = "remote.completed"
	TopicRemoteFailed      = "remote.failed"
)

// Payload is the value published on every coordinator topic.
type Payload struct {
	SessionID time.Time
	Text      string
}

// Capture is the recording collaborator. Both calls are commands;
// results come back asynchronously as Recognition events.
type Capture interface {
	Start(id time.Time) error
	Stop(id time.Time) error
}

// Playback is the reply-audio collaborator, fire-and-forget.
type Playback interface {
	Stop()
	Pause()
	Resume()
}

// Recognition is the async outcome of a capture stop: recognized
// text, or a failure/timeout that should recover the whole turn.
type Recognition struct {
	ID     time.Time
	Text   string
	Failed bool
}

type Config struct {
	DebounceWindow time.Duration
}

func DefaultConfig() Config {
	return Config{DebounceWindow: 120 * time.Millisecond}
}

// Coordinator is the session tracker and interrupt coordinator in
// one: it consumes classified key events plus async remote and
// recognition events, mutates the single Session, and commands the
// collaborators. Handle* methods must only be called from one
// goroutine (Run does this).
type Coordinator struct {
	cfg      Config
	modes    *mode.Controller
	bus      *bus.Bus
	capture  Capture
	playback Playback
	remote   remote.Client

	sess Session
	// Timestamp of the last short press accepted while listening;
	// anchors the debounce window.
	lastListenTap time.Time
}

func NewCoordinator(cfg Config, modes *mode.Controller, b *bus.Bus, capture Capture, playback Playback, rc remote.Client) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		modes:    modes,
		bus:      b,
		capture:  capture,
		playback: playback,
		remote:   rc,
	}
}

// Session returns a snapshot of the live session.
func (c *Coordinator) Session() Session {
	return c.sess
}

// Run drains all event sources until ctx is done. This is the only
// goroutine that touches Session and the mode controller.
func (c *Coordinator) Run(ctx context.Context, keys <-chan key.Event, recog <-chan Recognition) {
	remoteEvents := c.remote.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-keys:
			if !ok {
				return
			}
			c.HandleKey(ev)
		case ev := <-remoteEvents:
			c.HandleRemote(ev)
		case ev := <-recog:
			c.HandleRecognition(ev)
		}
	}
}

// HandleKey dispatches one semantic key event. A panicking handler
// is logged and swallowed; the next event still runs.
func (c *Coordinator) HandleKey(ev key.Event) {
	defer c.recoverHandler("key_" + ev.Kind.String())
	switch ev.Kind {
	case key.Press:
		c.onPress(ev)
	case key.LongPress:
		c.onLongPress(ev)
	case key.ShortPress:
		c.onShortPress(ev)
	case key.Release:
		c.onRelease(ev)
	}
}

func (c *Coordinator) onPress(ev key.Event) {
	if !c.sess.Active() {
		c.sess = Session{ID: ev.At}
		log.SessionBegin(ev.At)
	} else {
		// Previous turn still resolving; keep its id (a new one must
		// not be allocated while a remote exchange is pending).
		log.Debugf("press while session %d active", c.sess.ID.UnixNano())
	}
	// Published before any capture starts so subscribers (e.g. a
	// screen-reader muter) can react first.
	c.bus.Publish(TopicPress, Payload{SessionID: c.sess.ID})
}

func (c *Coordinator) onLongPress(ev key.Event) {
	if !c.sess.Active() {
		log.Warn("long press with no session, ignored")
		return
	}
	if c.sess.RecordingStarted {
		return
	}
	if err := c.capture.Start(c.sess.ID); err != nil {
		// No exchange is open, so the session must not end up waiting
		// on one; the release will resolve it instead.
		log.Errorf("capture start: %v", err)
		return
	}
	c.sess.RecordingStarted = true
	c.switchMode(mode.Listening)
}

func (c *Coordinator) onShortPress(ev key.Event) {
	// A tap within the window of one already accepted while listening
	// is switch bounce, even though that first tap has since moved the
	// mode away.
	if !c.lastListenTap.IsZero() && ev.At.Sub(c.lastListenTap) < c.cfg.DebounceWindow {
		log.Debug("short press debounced")
		return
	}
	if c.modes.Current() == mode.Listening {
		c.lastListenTap = ev.At
	}

	id := c.sess.ID
	c.bus.Publish(TopicShortPress, Payload{SessionID: id})

	// Let the current mode's handler react before its mode is torn
	// down (e.g. the speaking handler silences reply audio).
	c.modes.HandleInterrupt()

	// A short press after a long hold substitutes for the release on
	// some keyboard backends.
	if c.sess.RecordingStarted {
		if err := c.capture.Stop(id); err != nil {
			log.Errorf("capture stop: %v", err)
		}
		c.sess.WaitingForRemote = true
		c.sess.ActiveRemoteID = id
	}

	c.remote.Cancel(id)

	if c.modes.Current() == mode.Processing {
		c.bus.Publish(TopicPlaybackCancelled, Payload{SessionID: id})
	}

	c.switchMode(mode.Sleeping)
	c.sess.RecordingStarted = false

	if !c.sess.WaitingForRemote {
		if c.sess.Active() {
			log.SessionResolved(c.sess.ID, "short_press")
		}
		c.sess.reset()
	}
}

func (c *Coordinator) onRelease(ev key.Event) {
	if !c.sess.Active() {
		// Hook glitch: a release with no matching press.
		log.Warn("release with no session, ignored")
		return
	}
	id := c.sess.ID
	c.bus.Publish(TopicRelease, Payload{SessionID: id})

	if c.sess.RecordingStarted {
		if err := c.capture.Stop(id); err != nil {
			log.Errorf("capture stop: %v", err)
		}
		c.switchMode(mode.Processing)
		c.sess.WaitingForRemote = true
		c.sess.ActiveRemoteID = id
	}
	c.sess.RecordingStarted = false

	if !c.sess.WaitingForRemote {
		log.SessionResolved(id, "released")
		c.sess.reset()
	}
}

// HandleRemote resolves the session against a completion or failure
// from the remote exchange. Events for ids the session does not know
// are stale callbacks of superseded turns.
func (c *Coordinator) HandleRemote(ev remote.Event) {
	defer c.recoverHandler("remote_" + ev.Kind.String())

	if !c.sess.matches(ev.ID) {
		log.Debugf("stale remote %s for session %d", ev.Kind, ev.ID.UnixNano())
		return
	}

	switch ev.Kind {
	case remote.Completed:
		if ev.Text != "" {
			c.bus.Publish(TopicRecognized, Payload{SessionID: ev.ID, Text: ev.Text})
		}
		c.bus.Publish(TopicRemoteCompleted, Payload{SessionID: ev.ID, Text: ev.Text})
		log.SessionResolved(c.sess.ID, "remote_completed")
	case remote.Failed:
		c.bus.Publish(TopicRemoteFailed, Payload{SessionID: ev.ID, Text: ev.Err})
		log.SessionResolved(c.sess.ID, "remote_failed")
	}

	c.sess.reset()
	// The turn is over either way; bring the assistant back to rest.
	if c.modes.Current() != mode.Sleeping {
		c.switchMode(mode.Sleeping)
	}
}

// HandleRecognition applies a speech-recognition outcome. Failures
// recover the whole turn regardless of key state.
func (c *Coordinator) HandleRecognition(ev Recognition) {
	defer c.recoverHandler("recognition")

	if ev.Failed {
		if c.sess.Active() {
			log.SessionResolved(c.sess.ID, "recognition_failed")
		}
		c.sess.reset()
		c.switchMode(mode.Sleeping)
		return
	}

	if !c.sess.matches(ev.ID) {
		log.Debugf("stale recognition for session %d", ev.ID.UnixNano())
		return
	}
	c.sess.Recognized = true
}

// switchMode requests a transition and tolerates rejection: an
// unregistered pair is logged by the controller and leaves the mode
// unchanged.
func (c *Coordinator) switchMode(target mode.Mode) {
	if err := c.modes.Switch(target); err != nil {
		log.Debugf("mode switch to %s rejected: %v", target, err)
	}
}

func (c *Coordinator) recoverHandler(name string) {
	if r := recover(); r != nil {
		log.Errorf("handler %s panicked: %v", name, r)
	}
}
