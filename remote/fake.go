package remote

import (
	"sync"
	"time"
)

// FakeClient records Cancel calls and lets tests inject completion
// and failure events.
type FakeClient struct {
	events chan Event

	mu      sync.Mutex
	cancels []time.Time
}

func NewFake() *FakeClient {
	return &FakeClient{events: make(chan Event, 16)}
}

func (f *FakeClient) Events() <-chan Event { return f.events }

func (f *FakeClient) Cancel(id time.Time) {
	f.mu.Lock()
	f.cancels = append(f.cancels, id)
	f.mu.Unlock()
}

// Cancels returns every id Cancel was called with, in order.
func (f *FakeClient) Cancels() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.cancels))
	copy(out, f.cancels)
	return out
}

func (f *FakeClient) Complete(id time.Time, text string) {
	f.events <- Event{ID: id, Kind: Completed, Text: text}
}

func (f *FakeClient) Fail(id time.Time, reason string) {
	f.events <- Event{ID: id, Kind: Failed, Err: reason}
}
