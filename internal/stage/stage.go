// Package stage marks which role a re-executed nsboot process plays.
//
// The supervisor starts /proc/self/exe again inside the new namespaces; the
// marker in the environment is what tells the new process it is the child.
package stage

import "strings"

const (
	// Env is the environment variable carrying the stage.
	Env = "NSBOOT_STAGE"
	// RunIDEnv carries the id shared by every process of one bootstrap.
	RunIDEnv = "NSBOOT_RUN_ID"
)

// Stage is the role of the current process.
type Stage string

const (
	// Supervisor is the original process.
	Supervisor Stage = ""
	// Child is the isolated process created by the supervisor.
	Child Stage = "child"
	// Init is PID 1 of the PID namespace unshared by the child.
	Init Stage = "init"
)

// Current returns the stage found through getenv.
func Current(getenv func(string) string) Stage {
	switch s := Stage(getenv(Env)); s {
	case Child, Init:
		return s
	}
	return Supervisor
}

// With returns env without any previous stage marker, plus the marker for s.
func With(env []string, s Stage) []string {
	env = Strip(env)
	if s == Supervisor {
		return env
	}
	return append(env, Env+"="+string(s))
}

// Strip returns a copy of env without the stage marker, so that programs
// started by the workload do not inherit a role.
func Strip(env []string) []string {
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if strings.HasPrefix(kv, Env+"=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}
