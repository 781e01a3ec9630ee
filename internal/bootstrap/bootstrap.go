// Package bootstrap runs inside the isolated process. It moves the process
// into new network, PID and mount namespaces, in that order, prepares the
// mount tree and replaces the process image with the workload.
//
// Unshare happens again inside a process that was already cloned with the
// same flags. For the PID namespace this is what puts the process's future
// children in a namespace of their own, and for the mount namespace it gives
// the process the view it is about to change. It is not a duplicate.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/rectcircle/nsboot/internal/config"
	"github.com/rectcircle/nsboot/internal/hostsys"
	"github.com/rectcircle/nsboot/internal/logger"
	"github.com/rectcircle/nsboot/internal/namespace"
	"github.com/rectcircle/nsboot/internal/netinspect"
	"github.com/rectcircle/nsboot/internal/reaper"
	"github.com/rectcircle/nsboot/internal/stage"
)

// Bootstrapper runs the namespace sequence once.
type Bootstrapper struct {
	cfg       config.Config
	sys       hostsys.Sys
	inspector netinspect.Inspector
	nsID      func() (string, error)
	reap      func(context.Context, int) (unix.WaitStatus, error)
	out       io.Writer
	env       []string
	self      string

	// from is the state the sequence resumes at
	from     State
	state    State
	isolated namespace.Set
}

// Option configures a Bootstrapper.
type Option func(*Bootstrapper)

// WithSys replaces the host syscall boundary.
func WithSys(s hostsys.Sys) Option {
	return func(b *Bootstrapper) { b.sys = s }
}

// WithInspector replaces the network inspector.
func WithInspector(i netinspect.Inspector) Option {
	return func(b *Bootstrapper) { b.inspector = i }
}

// WithNamespaceID replaces the network namespace identity lookup.
func WithNamespaceID(f func() (string, error)) Option {
	return func(b *Bootstrapper) { b.nsID = f }
}

// WithReaper replaces the PID 1 child collector.
func WithReaper(f func(context.Context, int) (unix.WaitStatus, error)) Option {
	return func(b *Bootstrapper) { b.reap = f }
}

// WithOutput sets where progress lines are printed, os.Stdout by default.
func WithOutput(w io.Writer) Option {
	return func(b *Bootstrapper) { b.out = w }
}

// WithEnv sets the environment handed to the workload.
func WithEnv(env []string) Option {
	return func(b *Bootstrapper) { b.env = env }
}

// ResumeAt starts the sequence after s. The init process created by the
// PID step resumes at PidIsolated.
func ResumeAt(s State) Option {
	return func(b *Bootstrapper) { b.from = s }
}

// New returns a Bootstrapper for cfg.
func New(cfg config.Config, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		cfg:       cfg,
		sys:       hostsys.Host{},
		inspector: netinspect.New(cfg.Inspect),
		nsID:      netinspect.Namespace,
		reap:      reaper.Reap,
		out:       os.Stdout,
		env:       os.Environ(),
		self:      "/proc/self/exe",
	}
	for _, o := range opts {
		o(b)
	}
	b.state = b.from
	return b
}

// State returns the last state reached.
func (b *Bootstrapper) State() State {
	return b.state
}

// Isolated returns the namespaces the process actually unshared into.
func (b *Bootstrapper) Isolated() namespace.Set {
	return b.isolated
}

// Run performs the sequence and execs the workload. On the host it only
// returns on failure, with a hard *StepError, or with *ExitStatus after a
// PID 1 handoff. A nil return means Sys.Exec reported success.
//
// The OS thread stays locked for good: unshare only changes the calling
// thread, and exec must happen on that same thread.
func (b *Bootstrapper) Run(ctx context.Context) error {
	runtime.LockOSThread()

	if b.state < NetIsolated {
		b.isolateNet(ctx)
		b.state = NetIsolated
	}
	if b.state < PidIsolated {
		ok := b.isolatePID()
		b.state = PidIsolated
		if ok && b.cfg.PIDInit {
			return b.handoff(ctx)
		}
	}
	if b.state < MountIsolated {
		if err := b.isolateMount(); err != nil {
			logger.Error("mount isolation failed", zap.Error(err))
			return err
		}
		b.state = MountIsolated
	}
	return b.exec()
}

func (b *Bootstrapper) unshare(k namespace.Kind) error {
	if err := b.sys.Unshare(k.Flag()); err != nil {
		return err
	}
	b.isolated = namespace.NewSet(append(b.isolated.Kinds(), k)...)
	return nil
}

// isolateNet unshares the network namespace and shows what is visible in it.
func (b *Bootstrapper) isolateNet(ctx context.Context) {
	before, _ := b.nsID()
	if err := b.unshare(namespace.Net); err != nil {
		se := newStepError(StepNet, "unshare", err)
		fmt.Fprintf(b.out, "Failed to create new network namespace: %v\n", err)
		logger.Warn("network isolation skipped", zap.Error(se))
		return
	}
	after, err := b.nsID()
	switch {
	case err != nil:
		logger.Warn("cannot read network namespace", zap.Error(err))
	case before == after:
		logger.Warn("network namespace unchanged after unshare", zap.String("netns", after))
	default:
		logger.Debug("network namespace changed", zap.String("from", before), zap.String("to", after))
	}

	listing, err := b.inspector.Inspect(ctx)
	if err != nil {
		logger.Warn("network inspection failed", zap.Error(newStepError(StepNet, "inspect", err)))
		return
	}
	fmt.Fprintf(b.out, "Network configuration within the new network namespace:\n%s\n", listing)
}

// isolatePID unshares the PID namespace. The process keeps its own PID;
// only children created afterwards are numbered in the new namespace.
func (b *Bootstrapper) isolatePID() bool {
	if err := b.unshare(namespace.PID); err != nil {
		se := newStepError(StepPID, "unshare", err)
		fmt.Fprintf(b.out, "Failed to create new PID namespace: %v\n", err)
		logger.Warn("pid isolation skipped", zap.Error(se))
		return false
	}
	fmt.Fprintln(b.out, "We are in the new PID namespace!")
	return true
}

// handoff starts this binary again as PID 1 of the new PID namespace, to
// finish the sequence there, and waits for it as its reaper.
func (b *Bootstrapper) handoff(ctx context.Context) error {
	// nolint:gosec
	cmd := exec.Command(b.self, os.Args[1:]...)
	cmd.Args[0] = os.Args[0]
	cmd.Env = stage.With(b.env, stage.Init)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := b.sys.Start(cmd); err != nil {
		se := newStepError(StepInit, "start", err)
		logger.Error("cannot start init process", zap.Error(se))
		return se
	}
	logger.Info("init process started", zap.Int("pid", cmd.Process.Pid))

	ws, err := b.reap(ctx, cmd.Process.Pid)
	if err != nil {
		se := newStepError(StepInit, "wait", err)
		logger.Error("cannot wait for init process", zap.Error(se))
		return se
	}
	return &ExitStatus{Code: reaper.ExitCode(ws)}
}

// isolateMount unshares the mount namespace and prepares the mount tree.
// The order below is fixed: / must be private before anything is mounted,
// otherwise the mounts would propagate back to the host.
func (b *Bootstrapper) isolateMount() error {
	if err := b.unshare(namespace.Mount); err != nil {
		return newStepError(StepMount, "unshare", err)
	}
	if err := b.sys.MkdirAll(b.cfg.NewRoot, 0o755); err != nil {
		return newStepError(StepMount, "mkdir "+b.cfg.NewRoot, err)
	}
	private := hostsys.MountParams{Target: "/", Flags: unix.MS_PRIVATE | unix.MS_REC}
	if err := b.sys.Mount(private); err != nil {
		return newStepError(StepMount, "make / private", err)
	}
	proc := hostsys.MountParams{Source: "proc", Target: b.cfg.ProcTarget, FsType: "proc", Flags: unix.MS_PRIVATE}
	if err := b.sys.Mount(proc); err != nil {
		return newStepError(StepMount, "mount proc", err)
	}
	// chroot to "/" changes nothing; it is where a populated root goes
	if err := b.sys.Chroot(b.cfg.Chroot); err != nil {
		return newStepError(StepMount, "chroot "+b.cfg.Chroot, err)
	}
	if b.cfg.Chroot != "/" {
		if err := b.sys.Chdir("/"); err != nil {
			return newStepError(StepMount, "chdir /", err)
		}
	}
	fmt.Fprintln(b.out, "We are in the new mount namespace!")
	return nil
}

// exec replaces the process with the workload.
func (b *Bootstrapper) exec() error {
	argv := b.cfg.Workload
	path, err := b.sys.LookPath(argv[0])
	if err != nil {
		se := newStepError(StepExec, "lookup "+argv[0], err)
		logger.Error("cannot find workload", zap.Error(se))
		return se
	}
	logger.Info("executing workload", zap.Strings("argv", argv), zap.Stringer("isolated", b.isolated))
	logger.Sync()
	b.state = Execd
	if err := b.sys.Exec(path, argv, stage.Strip(b.env)); err != nil {
		b.state = MountIsolated
		se := newStepError(StepExec, "exec "+path, err)
		logger.Error("cannot exec workload", zap.Error(se))
		return se
	}
	return nil
}
