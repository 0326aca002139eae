package session

import "errors"

// Status is the broadcast lifecycle state. No transition skips a state and
// ended is terminal for a session; a new broadcast requires a new session.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusWaiting Status = "waiting"
	StatusLive    Status = "live"
	StatusEnded   Status = "ended"
)

// ErrInvalidTransition is returned when a lifecycle call is made from the
// wrong state (e.g. going live before a session exists).
var ErrInvalidTransition = errors.New("invalid session state transition")

// The ended -> waiting edge lets a finished controller host a fresh
// broadcast: the session, transport, tracks and peer state were all released
// on end and are rebuilt on create.
var transitions = map[Status][]Status{
	StatusIdle:    {StatusWaiting},
	StatusWaiting: {StatusLive, StatusEnded},
	StatusLive:    {StatusEnded},
	StatusEnded:   {StatusWaiting},
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}
