// Package key turns raw key edges plus a hold timer into semantic
// press events. Edges arrive from the OS hook thread; a watcher
// goroutine polls held keys for the long-press threshold. The two
// share only the small per-key state triple, guarded by one mutex.
package key

import (
	"fmt"
	"sync"
	"time"

	"vesper/hook"
	"vesper/log"
)

type Kind int

const (
	Press Kind = iota
	ShortPress
	LongPress
	Release
)

func (k Kind) String() string {
	switch k {
	case Press:
		return "press"
	case ShortPress:
		return "short_press"
	case LongPress:
		return "long_press"
	case Release:
		return "release"
	default:
		return "unknown"
	}
}

// Event is one semantic key event. Duration is zero for Press and
// the time since key-down for the other kinds.
type Event struct {
	Key      hook.KeyID
	Kind     Kind
	At       time.Time
	Duration time.Duration
}

type Config struct {
	ShortPress   time.Duration // key-up under this is a tap
	LongPress    time.Duration // held past this emits LongPress
	Cooldown     time.Duration // min gap between accepted presses (0 = off)
	PollInterval time.Duration // hold watcher tick
}

func DefaultConfig() Config {
	return Config{
		ShortPress:   600 * time.Millisecond,
		LongPress:    time.Second,
		Cooldown:     100 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
	}
}

// Validate rejects threshold orderings that would let a key-up after
// LongPress compute a duration under the short-press threshold.
func (c Config) Validate() error {
	if c.ShortPress <= 0 {
		return fmt.Errorf("short press threshold must be positive, got %v", c.ShortPress)
	}
	if c.LongPress <= c.ShortPress {
		return fmt.Errorf("long press threshold %v must exceed short press threshold %v", c.LongPress, c.ShortPress)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative, got %v", c.Cooldown)
	}
	return nil
}

// keyState is written by the edge consumer and read by the hold
// watcher. pressStartedAt is never cleared before key-up; longSent
// alone suppresses duplicate LongPress emission, so the key-up
// duration is always computed from the true press start.
type keyState struct {
	isDown         bool
	pressStartedAt time.Time
	longSent       bool
}

type Classifier struct {
	cfg    Config
	events chan Event

	mu        sync.Mutex
	keys      map[hook.KeyID]*keyState
	lastPress time.Time

	stop chan struct{}
	once sync.Once
}

func NewClassifier(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		cfg:    cfg,
		events: make(chan Event, 16),
		keys:   make(map[hook.KeyID]*keyState),
		stop:   make(chan struct{}),
	}, nil
}

// Events returns the semantic event stream. Events for the same key
// are emitted in classification order.
func (c *Classifier) Events() <-chan Event {
	return c.events
}

// Run consumes edges until the channel closes or Stop is called.
// It starts the hold watcher and blocks; run it on its own goroutine.
func (c *Classifier) Run(edges <-chan hook.Edge) {
	go c.watch()
	for {
		select {
		case <-c.stop:
			return
		case e, ok := <-edges:
			if !ok {
				c.Stop()
				return
			}
			c.handleEdge(e)
		}
	}
}

func (c *Classifier) Stop() {
	c.once.Do(func() {
		close(c.stop)
	})
}

func (c *Classifier) handleEdge(e hook.Edge) {
	if e.Down {
		c.keyDown(e)
	} else {
		c.keyUp(e)
	}
}

func (c *Classifier) keyDown(e hook.Edge) {
	c.mu.Lock()
	st := c.state(e.Key)
	if st.isDown {
		// OS key-repeat while held.
		c.mu.Unlock()
		return
	}
	if c.cfg.Cooldown > 0 && !c.lastPress.IsZero() && e.At.Sub(c.lastPress) < c.cfg.Cooldown {
		c.mu.Unlock()
		log.Debugf("key %s: press within cooldown, ignored", e.Key)
		return
	}
	st.isDown = true
	st.pressStartedAt = e.At
	st.longSent = false
	c.lastPress = e.At
	c.mu.Unlock()

	c.emit(Event{Key: e.Key, Kind: Press, At: e.At})
}

func (c *Classifier) keyUp(e hook.Edge) {
	c.mu.Lock()
	st := c.state(e.Key)
	if !st.isDown {
		c.mu.Unlock()
		log.Warnf("key %s: up edge with no matching down, ignored", e.Key)
		return
	}
	duration := e.At.Sub(st.pressStartedAt)
	st.isDown = false
	flushLong := duration >= c.cfg.LongPress && !st.longSent
	if flushLong {
		st.longSent = true
	}
	c.mu.Unlock()

	// A hold can outlast the threshold between two watcher ticks; the
	// long press still has to precede the release it belongs to.
	if flushLong {
		c.emit(Event{Key: e.Key, Kind: LongPress, At: e.At, Duration: duration})
	}

	kind := Release
	if duration < c.cfg.ShortPress {
		kind = ShortPress
	}
	c.emit(Event{Key: e.Key, Kind: kind, At: e.At, Duration: duration})
}

// watch polls held keys and emits LongPress at most once per press.
func (c *Classifier) watch() {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			// Emitted under the lock so a concurrent key-up cannot
			// classify its release ahead of this long press.
			c.mu.Lock()
			for id, st := range c.keys {
				if st.isDown && !st.longSent && now.Sub(st.pressStartedAt) >= c.cfg.LongPress {
					st.longSent = true
					c.emit(Event{
						Key:      id,
						Kind:     LongPress,
						At:       now,
						Duration: now.Sub(st.pressStartedAt),
					})
				}
			}
			c.mu.Unlock()
		}
	}
}

// state must be called with c.mu held.
func (c *Classifier) state(id hook.KeyID) *keyState {
	st, ok := c.keys[id]
	if !ok {
		st = &keyState{}
		c.keys[id] = st
	}
	return st
}

func (c *Classifier) emit(ev Event) {
	select {
	case <-c.stop:
	case c.events <- ev:
	}
}
