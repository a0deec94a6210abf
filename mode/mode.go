// Package mode is the application-mode state machine. Transitions
// are registered up front; Switch rejects anything not in the table.
// The controller is owned by the coordinator loop and is not safe
// for concurrent use.
package mode

import (
	"errors"
	"fmt"
	"time"

	"vesper/log"
)

type Mode int

const (
	Sleeping Mode = iota
	Listening
	Processing
	Speaking
)

func (m Mode) String() string {
	switch m {
	case Sleeping:
		return "sleeping"
	case Listening:
		return "listening"
	case Processing:
		return "processing"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

type Kind int

const (
	Automatic Kind = iota
	Manual
	Interrupt
)

func (k Kind) String() string {
	switch k {
	case Automatic:
		return "automatic"
	case Manual:
		return "manual"
	case Interrupt:
		return "interrupt"
	default:
		return "unknown"
	}
}

// Transition declares one legal (From, To) pair. Timeout is carried
// for diagnostics only; deadline enforcement on handlers belongs to
// the handlers themselves.
type Transition struct {
	From     Mode
	To       Mode
	Kind     Kind
	Priority int
	Timeout  time.Duration
}

// Handler is the pluggable per-mode collaborator. Enter reports
// whether the mode activated fully; a false result does not block
// the switch, the controller just flags the mode inactive.
type Handler interface {
	Enter() bool
	Exit()
	HandleInterrupt()
}

// NopHandler activates unconditionally and does nothing.
type NopHandler struct{}

func (NopHandler) Enter() bool      { return true }
func (NopHandler) Exit()            {}
func (NopHandler) HandleInterrupt() {}

// Change is delivered to registered callbacks after each switch.
type Change struct {
	Mode   Mode
	Active bool
	At     time.Time
}

type ChangeFunc func(Change)

type Metrics struct {
	TotalTransitions      int
	SuccessfulTransitions int
	TransitionsByKind     map[Kind]int
	TimeInMode            map[Mode]time.Duration
}

var (
	ErrUnregisteredTransition = errors.New("transition not registered")
	ErrDuplicateTransition    = errors.New("transition already registered")
)

type pair struct {
	from, to Mode
}

type Controller struct {
	current   Mode
	previous  Mode
	active    bool
	enteredAt time.Time

	table     map[pair]Transition
	handlers  map[Mode]Handler
	callbacks []ChangeFunc
	metrics   Metrics

	now func() time.Time
}

func NewController() *Controller {
	return &Controller{
		current:   Sleeping,
		previous:  Sleeping,
		active:    true,
		table:     make(map[pair]Transition),
		handlers:  make(map[Mode]Handler),
		enteredAt: time.Now(),
		metrics: Metrics{
			TransitionsByKind: make(map[Kind]int),
			TimeInMode:        make(map[Mode]time.Duration),
		},
		now: time.Now,
	}
}

// Register adds a transition to the table. Duplicate (From, To)
// pairs fail fast.
func (c *Controller) Register(t Transition) error {
	p := pair{t.From, t.To}
	if _, ok := c.table[p]; ok {
		return fmt.Errorf("%w: %s -> %s", ErrDuplicateTransition, t.From, t.To)
	}
	c.table[p] = t
	return nil
}

func (c *Controller) SetHandler(m Mode, h Handler) {
	c.handlers[m] = h
}

func (c *Controller) OnChange(fn ChangeFunc) {
	c.callbacks = append(c.callbacks, fn)
}

func (c *Controller) Current() Mode  { return c.current }
func (c *Controller) Previous() Mode { return c.previous }

// Active reports whether the current mode's handler activated fully.
func (c *Controller) Active() bool { return c.active }

// Switch moves to target if (current, target) is registered.
// Switching to the current mode is an idempotent no-op: handlers do
// not re-run and metrics are untouched.
func (c *Controller) Switch(target Mode) error {
	if target == c.current {
		return nil
	}

	t, ok := c.table[pair{c.current, target}]
	if !ok {
		log.Warnf("mode switch %s -> %s rejected: not registered", c.current, target)
		log.Transition(c.current.String(), target.String(), "", false)
		return fmt.Errorf("%w: %s -> %s", ErrUnregisteredTransition, c.current, target)
	}

	c.handler(c.current).Exit()

	now := c.now()
	c.metrics.TimeInMode[c.current] += now.Sub(c.enteredAt)

	entered := c.handler(target).Enter()

	c.previous = c.current
	c.current = target
	c.active = entered
	c.enteredAt = now

	c.metrics.TotalTransitions++
	c.metrics.TransitionsByKind[t.Kind]++
	if entered {
		c.metrics.SuccessfulTransitions++
	}

	log.Transition(c.previous.String(), c.current.String(), t.Kind.String(), entered)

	for _, fn := range c.callbacks {
		fn(Change{Mode: target, Active: entered, At: now})
	}
	return nil
}

// HandleInterrupt forwards to the current mode's handler.
func (c *Controller) HandleInterrupt() {
	c.handler(c.current).HandleInterrupt()
}

// Metrics returns a copy of the accumulated counters.
func (c *Controller) Metrics() Metrics {
	out := Metrics{
		TotalTransitions:      c.metrics.TotalTransitions,
		SuccessfulTransitions: c.metrics.SuccessfulTransitions,
		TransitionsByKind:     make(map[Kind]int, len(c.metrics.TransitionsByKind)),
		TimeInMode:            make(map[Mode]time.Duration, len(c.metrics.TimeInMode)),
	}
	for k, v := range c.metrics.TransitionsByKind {
		out.TransitionsByKind[k] = v
	}
	for m, d := range c.metrics.TimeInMode {
		out.TimeInMode[m] = d
	}
	return out
}

func (c *Controller) handler(m Mode) Handler {
	if h, ok := c.handlers[m]; ok {
		return h
	}
	return NopHandler{}
}
