// Package session owns the lifecycle of one voice turn and maps
// semantic key events to side effects on the capture, playback and
// remote collaborators. All state here is owned by the single
// coordinator loop; other threads only feed its input channels.
package session

import "time"

// Session is the state of one logical voice turn. The id is the
// press timestamp (monotonic clock reading used as a unique token);
// the zero time means no session is active.
type Session struct {
	ID               time.Time
	RecordingStarted bool
	WaitingForRemote bool
	ActiveRemoteID   time.Time
	Recognized       bool
}

func (s Session) Active() bool {
	return !s.ID.IsZero()
}

func (s *Session) reset() {
	*s = Session{}
}

// matches reports whether id belongs to this session, either as the
// live id or as the remote exchange it is waiting on.
func (s Session) matches(id time.Time) bool {
	if !s.Active() {
		return false
	}
	if s.ID.Equal(id) {
		return true
	}
	return !s.ActiveRemoteID.IsZero() && s.ActiveRemoteID.Equal(id)
}
