package supervisor

import (
	"os/exec"
	"sync"

	"github.com/rectcircle/nsboot/internal/namespace"
)

// ExecContext owns what the clone of the isolated process reads: the
// argument and environment vectors, the standard files and the clone
// flags. It is sealed when the clone is issued and released once the
// supervisor saw the child terminate. Nothing in it may change or be freed
// in between.
//
// The Go runtime clones on its own stack with fork semantics, so there is
// no separate stack buffer to hand over; this record is what stays pinned.
type ExecContext struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	flags    namespace.Set
	runID    string
	sealed   bool
	released bool
}

func newExecContext(cmd *exec.Cmd, flags namespace.Set, runID string) *ExecContext {
	return &ExecContext{cmd: cmd, flags: flags, runID: runID}
}

// Flags returns the namespaces requested for the child.
func (c *ExecContext) Flags() namespace.Set {
	return c.flags
}

// RunID returns the id shared with the child.
func (c *ExecContext) RunID() string {
	return c.runID
}

// Args returns a copy of the child's argument vector.
func (c *ExecContext) Args() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cmd.Args...)
}

// Env returns a copy of the child's environment.
func (c *ExecContext) Env() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cmd.Env...)
}

// Setenv adds kv to the child's environment. It fails once sealed.
func (c *ExecContext) Setenv(kv string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return ErrSealed
	}
	c.cmd.Env = append(c.cmd.Env, kv)
	return nil
}

// Sealed reports whether the clone was issued.
func (c *ExecContext) Sealed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sealed
}

// Released reports whether the child was seen to terminate.
func (c *ExecContext) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

func (c *ExecContext) seal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
}

func (c *ExecContext) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	c.cmd = &exec.Cmd{}
}
