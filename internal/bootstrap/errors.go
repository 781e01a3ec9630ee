package bootstrap

import "fmt"

// Step names one stage of the bootstrap sequence.
type Step string

const (
	StepNet   Step = "net"
	StepPID   Step = "pid"
	StepInit  Step = "init"
	StepMount Step = "mount"
	StepExec  Step = "exec"
)

// Severity tells whether a failed step stops the bootstrap.
type Severity int

const (
	// Soft failures are reported and the sequence continues without that
	// kind of isolation.
	Soft Severity = iota
	// Hard failures abort the process before exec.
	Hard
)

func (s Severity) String() string {
	if s == Soft {
		return "soft"
	}
	return "hard"
}

// Classify returns the severity of a failure in step. Network and PID
// isolation are optional; a half-built mount namespace, a failed PID 1
// handoff or a failed exec are not recoverable.
func Classify(step Step) Severity {
	switch step {
	case StepNet, StepPID:
		return Soft
	}
	return Hard
}

// StepError is a failure of one operation in a step.
type StepError struct {
	Step     Step
	Op       string
	Severity Severity
	Err      error
}

func newStepError(step Step, op string, err error) *StepError {
	return &StepError{Step: step, Op: op, Severity: Classify(step), Err: err}
}

func (e *StepError) Error() string {
	return fmt.Sprintf("bootstrap: %s: %s: %v", e.Step, e.Op, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ExitStatus is returned by Run after the rest of the bootstrap was handed
// to PID 1 of the new namespace and that process finished. The caller must
// exit with Code.
type ExitStatus struct {
	Code int
}

func (e *ExitStatus) Error() string {
	return fmt.Sprintf("bootstrap: init process exited with status %d", e.Code)
}
