package hook

import "time"

// KeyID identifies a monitored key combination.
type KeyID string

// PTT is the push-to-talk combination (Ctrl+Shift+Space).
const PTT KeyID = "ptt"

// Edge is one raw key transition as seen by the OS hook thread.
// The OS may repeat down edges while the key is held; consumers
// must de-duplicate.
type Edge struct {
	Key  KeyID
	Down bool
	At   time.Time
}

// Hook delivers raw key edges on a bounded channel. Implementations
// run on their own thread inside the platform's event-delivery path
// and must never block: an edge is dropped when the consumer falls
// behind, never queued synchronously.
type Hook interface {
	Register() error
	Unregister()
	Edges() <-chan Edge
}
