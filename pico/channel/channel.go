package channel

import (
	"fmt"
	"io"
)

// Channel is a line-oriented byte stream over one serial device.
//
// ReadLine blocks for at most a short read window and returns ("", nil)
// when no complete line arrived in time, so a caller can poll a stop flag
// between reads. ReadLine is not safe for concurrent use; a channel has
// exactly one reader.
type Channel interface {
	io.Closer
	Open() error
	WriteLine(line string) error
	ReadLine() (string, error)
	// ToggleControlLines pulses DTR off/on and drops RTS so the peripheral
	// sees a fresh logical connection.
	ToggleControlLines() error
	// Drain discards buffered input, both driver-side and in-process.
	Drain() error
}

// Error is a channel-level failure: the underlying device could not be
// opened or maintained. It is fatal to the owning session.
type Error struct {
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("channel %s: %s", e.Name, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
