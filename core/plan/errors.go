package plan

import "errors"

var (
	// ErrNoDeviceSource is returned when the engine has no device inventory.
	ErrNoDeviceSource = errors.New("plan: no device source configured")
	// ErrRebuildPanic wraps a panic recovered from a plan cycle.
	ErrRebuildPanic = errors.New("plan: rebuild panicked")
	// ErrActionInFlight is returned when a device already has a pending
	// command of the same kind.
	ErrActionInFlight = errors.New("plan: action already in flight")
)
