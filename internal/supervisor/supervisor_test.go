package supervisor

import (
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/rectcircle/nsboot/internal/config"
	"github.com/rectcircle/nsboot/internal/hostsys/hostsystest"
	"github.com/rectcircle/nsboot/internal/namespace"
	"github.com/rectcircle/nsboot/internal/procinfo"
)

func noDescribe(pid int) (procinfo.Info, error) {
	return procinfo.Info{Pid: pid, Name: "nsboot"}, nil
}

func newTestSupervisor(rec *hostsystest.Recorder, env ...string) *Supervisor {
	return New(config.Default(),
		WithSys(rec),
		WithEnv(append([]string{"PATH=/bin"}, env...)),
		WithDescribe(noDescribe))
}

func spawnParent(t *testing.T, sv *Supervisor) Parent {
	t.Helper()
	role, err := sv.Spawn(namespace.All())
	if err != nil {
		t.Fatal(err)
	}
	p, ok := role.(Parent)
	if !ok {
		t.Fatalf("expected Parent, got %T", role)
	}
	return p
}

func TestSpawnChild(t *testing.T) {
	rec := &hostsystest.Recorder{}
	sv := newTestSupervisor(rec, "NSBOOT_STAGE=child")
	role, err := sv.Spawn(namespace.All())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := role.(Child); !ok {
		t.Fatalf("expected Child, got %T", role)
	}
	if len(rec.Calls()) != 0 {
		t.Fatalf("child must not clone: %v", rec.Calls())
	}
}

func TestSpawnParent(t *testing.T) {
	rec := &hostsystest.Recorder{StartPid: 31337}
	sv := newTestSupervisor(rec)
	p := spawnParent(t, sv)

	if p.Handle.Pid != 31337 || p.Handle.Process == nil {
		t.Fatalf("unexpected handle %+v", p.Handle)
	}
	start := rec.Calls()[0]
	if start.Op != "start" || start.Path != "/proc/self/exe" {
		t.Fatalf("unexpected call %v", start)
	}
	env := strings.Join(start.Env, " ")
	if !strings.Contains(env, "NSBOOT_STAGE=child") {
		t.Fatalf("stage marker missing: %s", env)
	}
	if !strings.Contains(env, "NSBOOT_RUN_ID="+p.Context.RunID()) || p.Context.RunID() == "" {
		t.Fatalf("run id missing: %s", env)
	}
	if p.Context.Flags() != namespace.All() {
		t.Fatalf("flags = %v", p.Context.Flags())
	}
}

func TestSpawnKeepsRunID(t *testing.T) {
	rec := &hostsystest.Recorder{}
	sv := newTestSupervisor(rec, "NSBOOT_RUN_ID=fixed")
	p := spawnParent(t, sv)
	if p.Context.RunID() != "fixed" {
		t.Fatalf("run id = %q", p.Context.RunID())
	}
}

func TestSpawnFailure(t *testing.T) {
	rec := &hostsystest.Recorder{
		StartErr: &os.PathError{Op: "fork/exec", Path: "/proc/self/exe", Err: syscall.EPERM},
	}
	sv := newTestSupervisor(rec)
	role, err := sv.Spawn(namespace.All())
	if role != nil {
		t.Fatalf("unexpected role %T", role)
	}
	var se *SpawnError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SpawnError, got %v", err)
	}
	if se.Errno() != syscall.EPERM || !errors.Is(err, syscall.EPERM) {
		t.Fatalf("errno = %v", se.Errno())
	}
	if !strings.Contains(err.Error(), "net|pid|mnt") {
		t.Fatalf("flags missing from %q", err)
	}
}

func TestContextPinnedUntilWait(t *testing.T) {
	rec := &hostsystest.Recorder{}
	sv := newTestSupervisor(rec)
	p := spawnParent(t, sv)

	args := p.Context.Args()
	env := p.Context.Env()
	if !p.Context.Sealed() || p.Context.Released() {
		t.Fatal("context must be sealed and held after spawn")
	}
	if err := p.Context.Setenv("X=1"); !errors.Is(err, ErrSealed) {
		t.Fatalf("expected ErrSealed, got %v", err)
	}
	if strings.Join(p.Context.Env(), " ") != strings.Join(env, " ") ||
		strings.Join(p.Context.Args(), " ") != strings.Join(args, " ") {
		t.Fatal("context changed after spawn")
	}

	if _, err := sv.Wait(p); err != nil {
		t.Fatal(err)
	}
	if !p.Context.Released() {
		t.Fatal("context not released after wait")
	}
}

func TestSuperviseExecsFallback(t *testing.T) {
	rec := &hostsystest.Recorder{}
	sv := newTestSupervisor(rec)
	p := spawnParent(t, sv)

	if err := sv.Supervise(p); err != nil {
		t.Fatal(err)
	}
	ops := strings.Join(rec.Ops(), ",")
	if ops != "start,ignore,exec" {
		t.Fatalf("ops = %s", ops)
	}
	ignore := rec.Calls()[1]
	if ignore.Path != unix.SIGCHLD.String() {
		t.Fatalf("ignored %s", ignore.Path)
	}
	exec := rec.Calls()[2]
	want := "/bin/sh -c echo Hello from the new PID namespace"
	if strings.Join(exec.Argv, " ") != want {
		t.Fatalf("fallback argv = %q", exec.Argv)
	}
	for _, kv := range exec.Env {
		if strings.HasPrefix(kv, "NSBOOT_STAGE=") {
			t.Fatal("stage marker leaked to fallback")
		}
	}
	if p.Context.Released() {
		t.Fatal("context released without observing the child")
	}
}

func TestSuperviseExecFailureWaits(t *testing.T) {
	tests := []struct {
		name    string
		waitErr error
		check   func(*testing.T, error)
	}{
		{"exited", nil, func(t *testing.T, err error) {
			var ee *ExecError
			if !errors.As(err, &ee) || !errors.Is(err, unix.ENOENT) {
				t.Fatalf("expected *ExecError, got %v", err)
			}
		}},
		{"reaped", unix.ECHILD, func(t *testing.T, err error) {
			var ee *ExecError
			if !errors.As(err, &ee) {
				t.Fatalf("expected *ExecError, got %v", err)
			}
		}},
		{"wait failure", unix.EINVAL, func(t *testing.T, err error) {
			var we *WaitError
			if !errors.As(err, &we) || we.Pid != 4242 {
				t.Fatalf("expected *WaitError, got %v", err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &hostsystest.Recorder{ExecErr: unix.ENOENT, WaitErr: tt.waitErr}
			sv := newTestSupervisor(rec)
			p := spawnParent(t, sv)

			err := sv.Supervise(p)
			tt.check(t, err)
			if ops := strings.Join(rec.Ops(), ","); ops != "start,ignore,exec,wait" {
				t.Fatalf("ops = %s", ops)
			}
			if released := p.Context.Released(); released != (tt.waitErr != unix.EINVAL) {
				t.Fatalf("released = %v", released)
			}
		})
	}
}

func TestSuperviseFallbackNotFound(t *testing.T) {
	rec := &hostsystest.Recorder{}
	cfg := config.Default()
	cfg.Fallback = []string{"nsboot-missing"}
	sv := New(cfg, WithSys(rec), WithEnv(nil), WithDescribe(noDescribe))
	p := spawnParent(t, sv)

	err := sv.Supervise(p)
	var ee *ExecError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *ExecError, got %v", err)
	}
	if rec.Index("exec") >= 0 || rec.Index("wait") < 0 {
		t.Fatalf("ops = %v", rec.Ops())
	}
}

func TestSuperviseChild(t *testing.T) {
	rec := &hostsystest.Recorder{}
	sv := newTestSupervisor(rec)
	if err := sv.Supervise(Child{}); !errors.Is(err, ErrNotParent) {
		t.Fatalf("expected ErrNotParent, got %v", err)
	}
	if len(rec.Calls()) != 0 {
		t.Fatalf("unexpected calls %v", rec.Calls())
	}
}

func TestLookup(t *testing.T) {
	get := lookup([]string{"A=1", "AB=2", "A=3", "B"})
	if get("A") != "3" || get("AB") != "2" || get("B") != "" || get("C") != "" {
		t.Fatal("lookup mismatch")
	}
}
