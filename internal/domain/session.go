package domain

import "time"

// SessionState names the step a verification session is waiting on.
type SessionState string

const (
	// StateAwaitingTrigger is implicit: no session record exists.
	StateAwaitingTrigger SessionState = "AWAITING_TRIGGER"
	StateAwaitingPhone   SessionState = "AWAITING_PHONE"
	StateAwaitingHandle  SessionState = "AWAITING_HANDLE"
	StateAwaitingImage   SessionState = "AWAITING_IMAGE"
)

// Step is the state-specific part of a session. Only the variants below implement it,
// so a step always carries exactly the fields collected so far.
type Step interface {
	State() SessionState
	step()
}

// AwaitingPhone is entered when the trigger keyword is accepted.
type AwaitingPhone struct{}

// AwaitingHandle holds the phone number collected in the previous step.
type AwaitingHandle struct {
	Phone string
}

// AwaitingImage holds everything needed to write the record once the image arrives.
type AwaitingImage struct {
	Phone  string
	Handle string
}

func (AwaitingPhone) State() SessionState  { return StateAwaitingPhone }
func (AwaitingHandle) State() SessionState { return StateAwaitingHandle }
func (AwaitingImage) State() SessionState  { return StateAwaitingImage }

func (AwaitingPhone) step()  {}
func (AwaitingHandle) step() {}
func (AwaitingImage) step()  {}

// Session is one user's in-progress verification attempt.
type Session struct {
	UserID    string
	Step      Step
	StartedAt time.Time
	UpdatedAt time.Time
}

// State reports the session state, treating a nil step as the implicit trigger state.
func (s Session) State() SessionState {
	if s.Step == nil {
		return StateAwaitingTrigger
	}
	return s.Step.State()
}

// Advance returns a copy of the session moved to next.
func (s Session) Advance(next Step, now time.Time) Session {
	s.Step = next
	s.UpdatedAt = now
	return s
}
