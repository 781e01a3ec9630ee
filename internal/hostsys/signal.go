package hostsys

import (
	"os/signal"
	"syscall"
)

// ignoreSignal goes through os/signal so the Go runtime installs SIG_IGN in
// the kernel and stops forwarding the signal. For SIGCHLD the kernel then
// reaps exited children itself, and the disposition is kept across execve.
func ignoreSignal(sig syscall.Signal) {
	signal.Ignore(sig)
}
