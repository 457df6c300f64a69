package auth

// Status is the authentication lifecycle state. The zero value, StatusNone,
// is the state immediately after construction, before Start is called;
// StatusIdle is the state Stop returns to. The original C source labels the
// post-construction state AUTHENTICATION_STATUS_NONE but a code comment
// there claims IDLE — this core treats None and Idle as distinct (spec.md §9
// Open Question 5).
type Status int

const (
	StatusNone Status = iota
	StatusIdle
	StatusStarted
	StatusAuthenticating
	StatusAuthenticated
	StatusRefreshing
	StatusFailedTimeout
	StatusFailed
	StatusDeauthenticating
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusIdle:
		return "idle"
	case StatusStarted:
		return "started"
	case StatusAuthenticating:
		return "authenticating"
	case StatusAuthenticated:
		return "authenticated"
	case StatusRefreshing:
		return "refreshing"
	case StatusFailedTimeout:
		return "failed_timeout"
	case StatusFailed:
		return "failed"
	case StatusDeauthenticating:
		return "deauthenticating"
	default:
		return "unknown"
	}
}

// terminal reports whether destroy is permitted from this status.
func (s Status) terminal() bool {
	switch s {
	case StatusNone, StatusIdle, StatusFailed, StatusFailedTimeout:
		return true
	default:
		return false
	}
}

// StopResult is the outcome delivered to a one-shot StopCompletedFunc.
type StopResult int

const (
	// StopSuccess indicates a clean teardown.
	StopSuccess StopResult = iota
	// StopError indicates the delete-token request could not be
	// submitted or its CBS completion reported an error; the
	// authenticator lands in StatusFailed.
	StopError
)

// StatusChangedFunc is invoked synchronously on every distinct status
// transition, before the triggering call (DoWork, a completion callback, or
// Stop) returns. It is never invoked for a same-to-same transition. Stop
// from Failed/FailedTimeout clears the listener before moving to Idle, so
// that last transition is not reported.
type StatusChangedFunc func(old, new Status)

// StopCompletedFunc is armed by Stop and fires exactly once, the first time
// the corresponding teardown completes (immediately for Failed/FailedTimeout
// or when the delete-token request cannot be submitted, or on the
// delete-token completion otherwise).
type StopCompletedFunc func(result StopResult)
