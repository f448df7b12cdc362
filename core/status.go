package core

// Status is the externally observable state of a ClearNode session
type Status string

const (
	StatusIdle           Status = "idle"
	StatusConnecting     Status = "connecting"
	StatusSigning        Status = "signing"
	StatusAuthenticating Status = "authenticating"
	StatusAuthenticated  Status = "authenticated"
	StatusError          Status = "error"
)

// Statuses lists every status in display order
var Statuses = []Status{
	StatusIdle,
	StatusConnecting,
	StatusSigning,
	StatusAuthenticating,
	StatusAuthenticated,
	StatusError,
}

// Outcome records how the last authentication attempt settled
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

// DeriveStatus computes the observable status from the last settled outcome
// and the step marker of the in-flight attempt. It is the only place where
// a status is produced; nothing stores a Status directly.
func DeriveStatus(outcome Outcome, step Status) Status {
	switch outcome {
	case OutcomeSucceeded:
		return StatusAuthenticated
	case OutcomeFailed:
		return StatusError
	}

	switch step {
	case StatusConnecting, StatusSigning, StatusAuthenticating:
		return step
	default:
		return StatusIdle
	}
}

// InFlight reports whether the status belongs to an unresolved attempt
func (s Status) InFlight() bool {
	return s == StatusConnecting || s == StatusSigning || s == StatusAuthenticating
}

// Label returns the human-readable text shown for the status
func (s Status) Label() string {
	switch s {
	case StatusConnecting:
		return "Connecting to ClearNode..."
	case StatusSigning:
		return "Waiting for signature"
	case StatusAuthenticating:
		return "Authenticating..."
	case StatusAuthenticated:
		return "Connected"
	case StatusError:
		return "Connection failed"
	default:
		return "Connect to ClearNode"
	}
}

// Color returns the indicator color paired with the label
func (s Status) Color() string {
	switch s {
	case StatusConnecting:
		return "blue"
	case StatusSigning:
		return "amber"
	case StatusAuthenticating:
		return "purple"
	case StatusAuthenticated:
		return "green"
	case StatusError:
		return "red"
	default:
		return "gray"
	}
}

func (s Status) String() string {
	return string(s)
}
