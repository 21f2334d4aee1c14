package driver

import "fmt"

// AbortReason is the machine readable classification attached to a
// probe that could not reach the results page. The orchestrator maps
// it into the outcome's failure reason.
type AbortReason string

const (
	ReasonCategoryNotFound AbortReason = "category_not_found"
	ReasonServiceNotFound  AbortReason = "service_not_found"
	ReasonQuantityRejected AbortReason = "quantity_rejected"
	ReasonContinueDisabled AbortReason = "continue_disabled"
	ReasonTerminalTimeout  AbortReason = "terminal_timeout"
	ReasonNavigation       AbortReason = "navigation"
)

// AbortError is the absorbing failure state of the navigation state
// machine. It records the state the machine was in when it gave up.
// The driver never retries internally; a fresh attempt starts over
// from Start because the site's session state is not resumable.
type AbortError struct {
	State  State
	Reason AbortReason
	Err    error
}

func (e *AbortError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("aborted in state %s: %s", e.State, e.Reason)
	}
	return fmt.Sprintf("aborted in state %s: %s: %v", e.State, e.Reason, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}
