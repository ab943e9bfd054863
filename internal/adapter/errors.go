package adapter

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable means the device could not be reached in a poll cycle:
	// the mode probe failed or every group request failed.
	ErrUnreachable = errors.New("adapter: device unreachable")

	// ErrUnauthenticated means the device rejected the configured credentials.
	ErrUnauthenticated = errors.New("adapter: authentication failed")

	// ErrNoView is returned before the first successful poll.
	ErrNoView = errors.New("adapter: no view available yet")

	// ErrUnknownProperty is returned for a control of a property that is
	// neither a filter nor writable.
	ErrUnknownProperty = errors.New("adapter: unknown property")

	// ErrEmptyBatch is returned by ApplyBatch for an empty request list.
	ErrEmptyBatch = errors.New("adapter: empty control batch")

	// ErrInvalidValue is wrapped in a CommandError when a control value
	// cannot be encoded for the device.
	ErrInvalidValue = errors.New("adapter: invalid control value")

	// ErrPingDisabled is returned by Ping when no pinger is configured.
	ErrPingDisabled = errors.New("adapter: ping not configured")
)

// CommandError reports a failed control action.
type CommandError struct {
	Property string
	Value    string
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("adapter: control %s=%q failed: %v", e.Property, e.Value, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
