package schedmock

import "errors"

var (
	// ErrConfiguration reports a harness misuse detected at connect time
	// (empty identity, agent without a core).
	ErrConfiguration = errors.New("schedule harness: configuration error")
	// ErrAlreadyConnected is returned when an identity is connected twice.
	ErrAlreadyConnected = errors.New("schedule harness: agent already connected")
	ErrInvalidArgument  = errors.New("schedule harness: invalid argument")
	// ErrInvalidState is returned when triggering a cancelled event or one the
	// registry no longer tracks.
	ErrInvalidState      = errors.New("schedule harness: invalid state")
	ErrLifecycleNotFound = errors.New("schedule harness: lifecycle hook not implemented")
	// ErrJoinTimeout is returned by Task.Wait when the task is still running.
	// The task itself is not cancelled.
	ErrJoinTimeout   = errors.New("schedule harness: join timed out")
	ErrCallbackPanic = errors.New("schedule harness: callback panicked")
	ErrClosed        = errors.New("schedule harness: closed")
)
