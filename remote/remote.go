// Package remote talks to the streaming assistant backend. One
// stream per session id; completion and failure come back as async
// events the coordinator resolves sessions against.
package remote

import "time"

type EventKind int

const (
	Completed EventKind = iota
	Failed
)

func (k EventKind) String() string {
	switch k {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event reports the terminal outcome of one remote exchange. ID is
// the session id the exchange was opened with.
type Event struct {
	ID   time.Time
	Kind EventKind
	Text string // recognized/reply text on Completed
	Err  string // reason on Failed
}

// Client is the slice of the remote contract the coordinator
// consumes. Cancel is best-effort and idempotent: calling it twice,
// or after the exchange completed, changes nothing.
type Client interface {
	Cancel(id time.Time)
	Events() <-chan Event
}
