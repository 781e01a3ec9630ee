// Package netinspect lists the network interfaces visible to the calling
// thread. It is run right after the network namespace unshare to show that
// the new namespace starts with loopback only.
package netinspect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Inspector returns a human readable listing of the network interfaces.
type Inspector interface {
	Inspect(ctx context.Context) (string, error)
}

// CommandInspector runs an external listing command such as "ip a" and
// returns its standard output.
type CommandInspector struct {
	Args []string
}

func (c CommandInspector) Inspect(ctx context.Context) (string, error) {
	if len(c.Args) == 0 {
		return "", errors.New("netinspect: empty command")
	}
	var stdout, stderr bytes.Buffer
	// nolint:gosec
	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return stdout.String(), fmt.Errorf("netinspect: %s: %w: %s", c.Args[0], err, bytes.TrimSpace(stderr.Bytes()))
		}
		return stdout.String(), fmt.Errorf("netinspect: %s: %w", c.Args[0], err)
	}
	return stdout.String(), nil
}

// Auto tries Primary and uses Fallback when the primary command is not
// installed on the host.
type Auto struct {
	Primary  Inspector
	Fallback Inspector
}

func (a Auto) Inspect(ctx context.Context) (string, error) {
	out, err := a.Primary.Inspect(ctx)
	if err != nil && a.Fallback != nil && errors.Is(err, exec.ErrNotFound) {
		return a.Fallback.Inspect(ctx)
	}
	return out, err
}

// New returns the default inspector: the given command, falling back to
// netlink.
func New(args []string) Inspector {
	return Auto{
		Primary:  CommandInspector{Args: args},
		Fallback: LinkInspector{},
	}
}
