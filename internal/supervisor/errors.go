package supervisor

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/rectcircle/nsboot/internal/namespace"
)

var (
	// ErrNotParent is returned by Supervise when called from the spawned
	// process itself. The bootstrapper execs before that can happen.
	ErrNotParent = errors.New("supervisor: not the parent of an isolated process")
	// ErrSealed is returned when an execution context is changed after the
	// clone was issued.
	ErrSealed = errors.New("supervisor: execution context is sealed")
)

// SpawnError reports a failed clone of the isolated process.
type SpawnError struct {
	Flags namespace.Set
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("supervisor: spawn with %s namespaces: %v", e.Flags, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Errno returns the errno the kernel reported, or 0.
func (e *SpawnError) Errno() syscall.Errno {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno
	}
	return 0
}

// ExecError reports a failed replacement of the supervisor image. It is
// returned after the recovery wait.
type ExecError struct {
	Argv []string
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("supervisor: exec %v: %v", e.Argv, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// WaitError reports a failed wait for the isolated process.
type WaitError struct {
	Pid int
	Err error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("supervisor: wait %d: %v", e.Pid, e.Err)
}

func (e *WaitError) Unwrap() error {
	return e.Err
}
