// Package reaper implements the PID 1 duty of collecting exited children.
//
// A process that is PID 1 of a PID namespace adopts every orphan in it. If
// those are never waited for they stay zombies and the namespace cannot be
// torn down, so the init process drains them on each SIGCHLD.
package reaper

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/rectcircle/nsboot/internal/logger"
)

// Reap collects every exited child until main exits, and returns main's
// wait status. Orphans reaped on the way are logged.
func Reap(ctx context.Context, main int) (unix.WaitStatus, error) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGCHLD)
	defer signal.Stop(sigs)

	for {
		// drain before blocking so a SIGCHLD sent before Notify is not lost
		ws, done, err := drain(main)
		if err != nil || done {
			return ws, err
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-sigs:
		}
	}
}

// drain waits for every child that has already exited without blocking.
func drain(main int) (unix.WaitStatus, bool, error) {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.ECHILD:
			// nothing left to wait for: main was collected elsewhere
			return 0, true, err
		case err != nil:
			return 0, false, err
		case pid <= 0:
			return 0, false, nil
		case pid == main:
			return ws, true, nil
		}
		logger.Debug("reaped orphan", zap.Int("pid", pid), zap.Int("status", exitCode(ws)))
	}
}

// ExitCode converts a wait status to a shell style exit code.
func ExitCode(ws unix.WaitStatus) int {
	return exitCode(ws)
}

func exitCode(ws unix.WaitStatus) int {
	if ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ws.ExitStatus()
}
