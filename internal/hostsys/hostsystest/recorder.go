// Package hostsystest provides a recording hostsys.Sys for tests.
package hostsystest

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/rectcircle/nsboot/internal/hostsys"
)

// Call is one recorded operation, e.g. "unshare", "mount", "exec".
type Call struct {
	Op    string
	Flags uintptr
	Mount hostsys.MountParams
	Path  string
	Argv  []string
	Env   []string
	Pid   int
}

func (c Call) String() string {
	switch c.Op {
	case "mount":
		return c.Mount.String()
	case "unshare":
		return fmt.Sprintf("unshare(%#x)", c.Flags)
	case "exec":
		return fmt.Sprintf("exec(%s %s)", c.Path, strings.Join(c.Argv, " "))
	case "wait":
		return fmt.Sprintf("wait(%d)", c.Pid)
	}
	return fmt.Sprintf("%s(%s)", c.Op, c.Path)
}

// Recorder records every call and returns errors configured per operation.
// Exec never replaces the process; it returns ExecErr (nil by default).
type Recorder struct {
	mu    sync.Mutex
	calls []Call

	// UnshareErr maps a single unshare flag to the error it fails with.
	UnshareErr map[uintptr]error
	// MountErr maps a mount target to the error it fails with.
	MountErr  map[string]error
	ChrootErr error
	ChdirErr  error
	// MkdirErr fails MkdirAll. With RealMkdir set the directory is created
	// on the real filesystem.
	MkdirErr  error
	RealMkdir bool
	ExecErr   error
	StartErr  error
	// StartPid is the pid given to started processes, 4242 by default.
	StartPid   int
	WaitStatus unix.WaitStatus
	WaitErr    error
	// Paths is the PATH lookup table; missing names resolve to themselves
	// when they are absolute and fail otherwise.
	Paths map[string]string
}

var _ hostsys.Sys = (*Recorder)(nil)

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Ops returns the recorded operation names in order.
func (r *Recorder) Ops() []string {
	calls := r.Calls()
	ops := make([]string, 0, len(calls))
	for _, c := range calls {
		ops = append(ops, c.Op)
	}
	return ops
}

// Index returns the position of the first call matching op, or -1.
func (r *Recorder) Index(op string) int {
	for i, c := range r.Calls() {
		if c.Op == op {
			return i
		}
	}
	return -1
}

func (r *Recorder) Unshare(flags uintptr) error {
	r.record(Call{Op: "unshare", Flags: flags})
	return r.UnshareErr[flags]
}

func (r *Recorder) Mount(p hostsys.MountParams) error {
	r.record(Call{Op: "mount", Mount: p, Path: p.Target})
	return r.MountErr[p.Target]
}

func (r *Recorder) Chroot(path string) error {
	r.record(Call{Op: "chroot", Path: path})
	return r.ChrootErr
}

func (r *Recorder) Chdir(path string) error {
	r.record(Call{Op: "chdir", Path: path})
	return r.ChdirErr
}

func (r *Recorder) MkdirAll(path string, perm os.FileMode) error {
	r.record(Call{Op: "mkdir", Path: path})
	if r.MkdirErr != nil {
		return r.MkdirErr
	}
	if r.RealMkdir {
		return os.MkdirAll(path, perm)
	}
	return nil
}

func (r *Recorder) LookPath(file string) (string, error) {
	if p, ok := r.Paths[file]; ok {
		return p, nil
	}
	if strings.HasPrefix(file, "/") {
		return file, nil
	}
	return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
}

func (r *Recorder) Exec(argv0 string, argv []string, env []string) error {
	r.record(Call{Op: "exec", Path: argv0, Argv: append([]string(nil), argv...), Env: append([]string(nil), env...)})
	return r.ExecErr
}

func (r *Recorder) Start(cmd *exec.Cmd) error {
	r.record(Call{Op: "start", Path: cmd.Path, Argv: append([]string(nil), cmd.Args...), Env: append([]string(nil), cmd.Env...)})
	if r.StartErr != nil {
		return r.StartErr
	}
	pid := r.StartPid
	if pid == 0 {
		pid = 4242
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	cmd.Process = p
	return nil
}

func (r *Recorder) Wait(pid int) (unix.WaitStatus, error) {
	r.record(Call{Op: "wait", Pid: pid})
	return r.WaitStatus, r.WaitErr
}

func (r *Recorder) IgnoreSignal(sig syscall.Signal) {
	r.record(Call{Op: "ignore", Path: sig.String()})
}
