// Package supervisor creates the isolated process and manages it from the
// original process.
//
// Spawn has the two-sided contract of fork: the original process gets a
// Parent holding the child's handle, and the isolated process, which is
// this same binary started again inside the new namespaces, gets a Child.
// Callers switch on the returned Role.
package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/rectcircle/nsboot/internal/config"
	"github.com/rectcircle/nsboot/internal/hostsys"
	"github.com/rectcircle/nsboot/internal/logger"
	"github.com/rectcircle/nsboot/internal/namespace"
	"github.com/rectcircle/nsboot/internal/procinfo"
	"github.com/rectcircle/nsboot/internal/stage"
)

// Role is either Parent or Child.
type Role interface {
	role()
}

// Parent is returned to the original process.
type Parent struct {
	Handle  Handle
	Context *ExecContext
}

// Child is returned inside the isolated process.
type Child struct{}

func (Parent) role() {}
func (Child) role()  {}

// Handle identifies the spawned process. It is valid until the supervisor
// waited for it or replaced its own image.
type Handle struct {
	Pid     int
	Process *os.Process
}

// Supervisor spawns and supervises one isolated process.
type Supervisor struct {
	sys      hostsys.Sys
	getenv   func(string) string
	environ  []string
	args     []string
	self     string
	fallback []string
	describe func(int) (procinfo.Info, error)
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithSys replaces the host syscall boundary.
func WithSys(s hostsys.Sys) Option {
	return func(sv *Supervisor) { sv.sys = s }
}

// WithEnv replaces the environment the role and run id are read from.
func WithEnv(env []string) Option {
	return func(sv *Supervisor) {
		sv.environ = env
		sv.getenv = lookup(env)
	}
}

// WithDescribe replaces the process description used for logging.
func WithDescribe(f func(int) (procinfo.Info, error)) Option {
	return func(sv *Supervisor) { sv.describe = f }
}

// New returns a Supervisor that falls back to cfg.Fallback.
func New(cfg config.Config, opts ...Option) *Supervisor {
	sv := &Supervisor{
		sys:      hostsys.Host{},
		getenv:   os.Getenv,
		environ:  os.Environ(),
		args:     os.Args,
		self:     "/proc/self/exe",
		fallback: cfg.Fallback,
		describe: procinfo.Describe,
	}
	for _, o := range opts {
		o(sv)
	}
	return sv
}

func lookup(env []string) func(string) string {
	return func(key string) string {
		for i := len(env) - 1; i >= 0; i-- {
			if len(env[i]) > len(key) && env[i][:len(key)] == key && env[i][len(key)] == '=' {
				return env[i][len(key)+1:]
			}
		}
		return ""
	}
}

// Spawn creates the isolated process in new namespaces of flags, running
// this binary again as the bootstrapper. Inside that process Spawn returns
// Child without creating anything.
func (sv *Supervisor) Spawn(flags namespace.Set) (Role, error) {
	if stage.Current(sv.getenv) != stage.Supervisor {
		return Child{}, nil
	}

	runID := sv.getenv(stage.RunIDEnv)
	if runID == "" {
		runID = uuid.NewString()
	}

	// nolint:gosec
	cmd := exec.Command(sv.self)
	if len(sv.args) > 0 {
		cmd.Args = append([]string(nil), sv.args...)
	}
	cmd.Env = stage.With(sv.environ, stage.Child)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: flags.CloneFlags(),
	}

	ctx := newExecContext(cmd, flags, runID)
	if err := ctx.Setenv(stage.RunIDEnv + "=" + runID); err != nil {
		return nil, err
	}
	ctx.seal()

	if err := sv.sys.Start(cmd); err != nil {
		ctx.release()
		return nil, &SpawnError{Flags: flags, Err: err}
	}
	logger.Info("spawned isolated process",
		zap.Int("pid", cmd.Process.Pid),
		zap.Stringer("namespaces", flags),
		zap.String("run_id", runID))

	return Parent{
		Handle:  Handle{Pid: cmd.Process.Pid, Process: cmd.Process},
		Context: ctx,
	}, nil
}

// IgnoreChildSignals sets SIGCHLD to SIG_IGN for the whole process. The
// kernel then reaps every child, including descendants reparented to this
// process, without a wait. It is set once, never reset, survives exec and
// ends with the process.
func IgnoreChildSignals(sys hostsys.Sys) {
	sys.IgnoreSignal(syscall.SIGCHLD)
}

// Supervise takes over after Spawn. For a Parent it ignores SIGCHLD and
// replaces this process with the fallback program, without waiting for the
// child. Only when that exec fails does it block on the child, and it then
// returns an *ExecError.
func (sv *Supervisor) Supervise(r Role) error {
	p, ok := r.(Parent)
	if !ok {
		// unreachable in the normal flow: the child execs its workload
		logger.Warn("supervise called from the isolated process")
		return ErrNotParent
	}

	if info, err := sv.describe(p.Handle.Pid); err == nil {
		logger.Info("isolated process", zap.Stringer("process", info))
	} else {
		logger.Debug("cannot describe isolated process", zap.Error(err))
	}

	IgnoreChildSignals(sv.sys)

	err := sv.execFallback()
	if err == nil {
		return nil
	}
	logger.Error("cannot exec fallback program, waiting for isolated process",
		zap.Strings("argv", sv.fallback), zap.Error(err))

	if _, werr := sv.Wait(p); werr != nil {
		return werr
	}
	return &ExecError{Argv: sv.fallback, Err: err}
}

func (sv *Supervisor) execFallback() error {
	path, err := sv.sys.LookPath(sv.fallback[0])
	if err != nil {
		return err
	}
	logger.Info("executing fallback program", zap.Strings("argv", sv.fallback))
	logger.Sync()
	return sv.sys.Exec(path, sv.fallback, stage.Strip(sv.environ))
}

// Wait blocks until the isolated process exits and releases its context.
// With SIGCHLD ignored the kernel reaps the child itself and wait reports
// ECHILD once it is gone; that counts as terminated.
func (sv *Supervisor) Wait(p Parent) (unix.WaitStatus, error) {
	ws, err := sv.sys.Wait(p.Handle.Pid)
	if err != nil && !errors.Is(err, unix.ECHILD) {
		return ws, &WaitError{Pid: p.Handle.Pid, Err: err}
	}
	if p.Context != nil {
		p.Context.release()
	}
	if err != nil {
		logger.Info("isolated process reaped by the kernel", zap.Int("pid", p.Handle.Pid))
	} else {
		logger.Info("isolated process terminated", zap.Int("pid", p.Handle.Pid), zap.Int("status", ws.ExitStatus()))
	}
	return ws, nil
}
