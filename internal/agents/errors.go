package agents

import "errors"

// Recoverable coordination outcomes. They are reported on events and the
// agent falls back to another state; none of them escape the simulation.
var (
	ErrClaimConflict       = errors.New("claim conflict")
	ErrNoResourceAvailable = errors.New("no resource available")
	ErrNoSiteFound         = errors.New("no build site found")
)

// ErrInvalidTransition marks a broken state machine invariant. The agent
// panics with an error wrapping it.
var ErrInvalidTransition = errors.New("invalid state transition")
