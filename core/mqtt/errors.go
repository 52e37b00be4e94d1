package mqtt

import "errors"

// ErrAckTimeout is returned when no acknowledgment is received before the timeout.
var ErrAckTimeout = errors.New("timeout waiting for ack")

// ErrNack is returned when a device acknowledges a command with an error.
var ErrNack = errors.New("command rejected by device")

// ErrUnknownCommand is returned when waiting on a command id that was never sent.
var ErrUnknownCommand = errors.New("unknown command")
