package mode

import (
	"errors"
	"testing"
	"time"
)

type recordingHandler struct {
	enterResult bool
	enters      int
	exits       int
	interrupts  int
}

func (h *recordingHandler) Enter() bool      { h.enters++; return h.enterResult }
func (h *recordingHandler) Exit()            { h.exits++ }
func (h *recordingHandler) HandleInterrupt() { h.interrupts++ }

func newTestController(t *testing.T) *Controller {
	t.Helper()
	c := NewController()
	transitions := []Transition{
		{From: Sleeping, To: Listening, Kind: Automatic},
		{From: Listening, To: Processing, Kind: Automatic},
		{From: Listening, To: Sleeping, Kind: Interrupt},
		{From: Processing, To: Speaking, Kind: Automatic},
		{From: Processing, To: Sleeping, Kind: Interrupt},
		{From: Speaking, To: Sleeping, Kind: Interrupt},
	}
	for _, tr := range transitions {
		if err := c.Register(tr); err != nil {
			t.Fatal(err)
		}
	}
	return c
}

func TestSwitchRegistered(t *testing.T) {
	c := newTestController(t)

	if err := c.Switch(Listening); err != nil {
		t.Fatal(err)
	}
	if c.Current() != Listening {
		t.Errorf("current = %v, want listening", c.Current())
	}
	if c.Previous() != Sleeping {
		t.Errorf("previous = %v, want sleeping", c.Previous())
	}
}

func TestSwitchUnregistered(t *testing.T) {
	c := newTestController(t)

	err := c.Switch(Speaking) // sleeping -> speaking is not in the table
	if !errors.Is(err, ErrUnregisteredTransition) {
		t.Fatalf("got %v, want ErrUnregisteredTransition", err)
	}
	if c.Current() != Sleeping {
		t.Errorf("current changed on rejected switch: %v", c.Current())
	}
	if c.Metrics().TotalTransitions != 0 {
		t.Error("rejected switch must not count")
	}
}

func TestDuplicateRegistration(t *testing.T) {
	c := newTestController(t)

	err := c.Register(Transition{From: Sleeping, To: Listening, Kind: Manual})
	if !errors.Is(err, ErrDuplicateTransition) {
		t.Fatalf("got %v, want ErrDuplicateTransition", err)
	}
}

func TestHandlersRunOnSwitch(t *testing.T) {
	c := newTestController(t)
	sleeping := &recordingHandler{enterResult: true}
	listening := &recordingHandler{enterResult: true}
	c.SetHandler(Sleeping, sleeping)
	c.SetHandler(Listening, listening)

	if err := c.Switch(Listening); err != nil {
		t.Fatal(err)
	}
	if sleeping.exits != 1 {
		t.Errorf("sleeping exits = %d, want 1", sleeping.exits)
	}
	if listening.enters != 1 {
		t.Errorf("listening enters = %d, want 1", listening.enters)
	}
}

func TestFailedEnterStillSwitches(t *testing.T) {
	c := newTestController(t)
	listening := &recordingHandler{enterResult: false}
	c.SetHandler(Listening, listening)

	if err := c.Switch(Listening); err != nil {
		t.Fatal(err)
	}
	if c.Current() != Listening {
		t.Error("failed enter must not block the mode change")
	}
	if c.Active() {
		t.Error("mode should be flagged inactive after failed enter")
	}
	m := c.Metrics()
	if m.TotalTransitions != 1 {
		t.Errorf("total = %d, want 1", m.TotalTransitions)
	}
	if m.SuccessfulTransitions != 0 {
		t.Errorf("successful = %d, want 0", m.SuccessfulTransitions)
	}
}

func TestReentrantSwitchIsNoop(t *testing.T) {
	c := newTestController(t)
	sleeping := &recordingHandler{enterResult: true}
	c.SetHandler(Sleeping, sleeping)

	if err := c.Switch(Sleeping); err != nil {
		t.Fatal(err)
	}
	if sleeping.enters != 0 || sleeping.exits != 0 {
		t.Error("re-entrant switch must not re-run handlers")
	}
	if c.Metrics().TotalTransitions != 0 {
		t.Error("re-entrant switch must not count as a transition")
	}
}

func TestMetricsByKind(t *testing.T) {
	c := newTestController(t)
	if err := c.Register(Transition{From: Sleeping, To: Processing, Kind: Manual}); err != nil {
		t.Fatal(err)
	}
	if err := c.Register(Transition{From: Speaking, To: Listening, Kind: Manual}); err != nil {
		t.Fatal(err)
	}

	// 3 automatic, 2 manual, 1 interrupt.
	for _, m := range []Mode{Listening, Processing, Speaking} { // automatic x3
		if err := c.Switch(m); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Switch(Listening); err != nil { // manual (speaking -> listening)
		t.Fatal(err)
	}
	if err := c.Switch(Sleeping); err != nil { // interrupt (listening -> sleeping)
		t.Fatal(err)
	}
	if err := c.Switch(Processing); err != nil { // manual (sleeping -> processing)
		t.Fatal(err)
	}

	m := c.Metrics()
	if m.TotalTransitions != 6 {
		t.Errorf("total = %d, want 6", m.TotalTransitions)
	}
	if m.TransitionsByKind[Manual] != 2 {
		t.Errorf("manual = %d, want 2", m.TransitionsByKind[Manual])
	}
	if m.TransitionsByKind[Automatic] != 3 {
		t.Errorf("automatic = %d, want 3", m.TransitionsByKind[Automatic])
	}
	if m.SuccessfulTransitions != 6 {
		t.Errorf("successful = %d, want 6", m.SuccessfulTransitions)
	}
}

func TestHandleInterruptReachesCurrentHandler(t *testing.T) {
	c := newTestController(t)
	sleeping := &recordingHandler{enterResult: true}
	listening := &recordingHandler{enterResult: true}
	c.SetHandler(Sleeping, sleeping)
	c.SetHandler(Listening, listening)

	if err := c.Switch(Listening); err != nil {
		t.Fatal(err)
	}
	c.HandleInterrupt()

	if listening.interrupts != 1 {
		t.Errorf("listening interrupts = %d, want 1", listening.interrupts)
	}
	if sleeping.interrupts != 0 {
		t.Error("interrupt must only reach the current mode's handler")
	}
}

func TestTimeInModeAccumulates(t *testing.T) {
	c := newTestController(t)
	base := time.Now()
	tick := base
	c.now = func() time.Time { return tick }
	c.enteredAt = base

	tick = base.Add(250 * time.Millisecond)
	if err := c.Switch(Listening); err != nil {
		t.Fatal(err)
	}
	if got := c.Metrics().TimeInMode[Sleeping]; got != 250*time.Millisecond {
		t.Errorf("time in sleeping = %v, want 250ms", got)
	}
}

func TestOnChangeCallback(t *testing.T) {
	c := newTestController(t)
	var got []Change
	c.OnChange(func(ch Change) { got = append(got, ch) })

	if err := c.Switch(Listening); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("callbacks = %d, want 1", len(got))
	}
	if got[0].Mode != Listening || !got[0].Active {
		t.Errorf("change = %+v", got[0])
	}
}
