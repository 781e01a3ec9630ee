// Package hostsys is the boundary between nsboot and the host kernel.
//
// Every namespace, mount, root, exec and wait operation goes through Sys so
// that the order of operations can be observed and failures injected.
package hostsys

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// MountParams holds the arguments of one mount syscall
type MountParams struct {
	Source string
	Target string
	FsType string
	Flags  uintptr
	Data   string
}

func (p MountParams) String() string {
	return fmt.Sprintf("mount(%q, %q, %q, %#x, %q)", p.Source, p.Target, p.FsType, p.Flags, p.Data)
}

// Sys is the set of host operations used by the supervisor and bootstrapper.
type Sys interface {
	// Unshare moves the calling thread into new namespaces of the given flags.
	Unshare(flags uintptr) error
	Mount(p MountParams) error
	Chroot(path string) error
	Chdir(path string) error
	MkdirAll(path string, perm os.FileMode) error

	// LookPath resolves file through PATH.
	LookPath(file string) (string, error)
	// Exec replaces the process image and only returns on failure.
	Exec(argv0 string, argv []string, env []string) error

	// Start starts cmd and fills cmd.Process.
	Start(cmd *exec.Cmd) error
	// Wait blocks until pid changes state to exited or signaled.
	Wait(pid int) (unix.WaitStatus, error)

	// IgnoreSignal sets the process-wide disposition of sig to SIG_IGN.
	IgnoreSignal(sig syscall.Signal)
}

// Host implements Sys on the running kernel.
type Host struct{}

var _ Sys = Host{}

// Unshare calls unshare(2). In a Go program the new namespaces only apply to
// the calling OS thread, so the caller must hold runtime.LockOSThread.
func (Host) Unshare(flags uintptr) error {
	return unix.Unshare(int(flags))
}

func (Host) Mount(p MountParams) error {
	return unix.Mount(p.Source, p.Target, p.FsType, p.Flags, p.Data)
}

func (Host) Chroot(path string) error {
	return unix.Chroot(path)
}

func (Host) Chdir(path string) error {
	return os.Chdir(path)
}

func (Host) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (Host) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (Host) Exec(argv0 string, argv []string, env []string) error {
	return unix.Exec(argv0, argv, env)
}

func (Host) Start(cmd *exec.Cmd) error {
	return cmd.Start()
}

// Wait retries wait4 on EINTR.
func (Host) Wait(pid int) (unix.WaitStatus, error) {
	var ws unix.WaitStatus
	_, err := unix.Wait4(pid, &ws, 0, nil)
	for err == unix.EINTR {
		_, err = unix.Wait4(pid, &ws, 0, nil)
	}
	return ws, err
}

func (Host) IgnoreSignal(sig syscall.Signal) {
	ignoreSignal(sig)
}
