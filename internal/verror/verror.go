// Package verror is the orchestrator's error vocabulary. It mirrors the
// tagged error enum of the system this module is modelled on, rendered as
// Go sentinel and typed errors composable with errors.Is/errors.As rather
// than a closed sum type.
package verror

import (
	"errors"
	"fmt"
)

var (
	// ErrBadSpecType is returned when a specification file has an
	// extension the loader doesn't know how to decode.
	ErrBadSpecType = errors.New("specification file has an unsupported extension")

	// ErrNoSpecification is returned when neither an external
	// specification file nor an embedded one could be found.
	ErrNoSpecification = errors.New("no specification provided and none embedded in the binary")

	// ErrBadTriggerArgument is returned when an entrypoint with a
	// Startup trigger declares a Trigger argument.
	ErrBadTriggerArgument = errors.New("trigger argument used by an entrypoint whose trigger is not Pipe or FileSocket")
)

// BadPipeError reports a pipe topology violation: wrong reader/writer
// multiplicity, or a second attempt to take an already-consumed endpoint.
type BadPipeError struct {
	Name string
}

func (e *BadPipeError) Error() string {
	return fmt.Sprintf("bad pipe %q", e.Name)
}

// BadFileSocketError reports a file-socket topology violation, analogous
// to BadPipeError.
type BadFileSocketError struct {
	Name string
}

func (e *BadFileSocketError) Error() string {
	return fmt.Sprintf("bad file socket %q", e.Name)
}

// SyscallError wraps a failing syscall with the operation name that was
// attempted, the Go rendition of this project's Nix{msg, src} error.
type SyscallError struct {
	Op  string
	Err error
}

func (e *SyscallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *SyscallError) Unwrap() error {
	return e.Err
}

// Syscall wraps err with the name of the operation that failed. Returns
// nil if err is nil, so it's safe to use as `return verror.Syscall("mount", err)`.
func Syscall(op string, err error) error {
	if err == nil {
		return nil
	}
	return &SyscallError{Op: op, Err: err}
}
