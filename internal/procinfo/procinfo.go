// Package procinfo describes processes through gopsutil.
package procinfo

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
)

// Info is a snapshot of a process.
type Info struct {
	Pid     int
	Ppid    int
	Name    string
	Cmdline string
}

func (i Info) String() string {
	return fmt.Sprintf("pid=%d ppid=%d name=%s cmdline=%q", i.Pid, i.Ppid, i.Name, i.Cmdline)
}

// Describe reads name, command line and parent of pid.
func Describe(pid int) (Info, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return Info{}, fmt.Errorf("procinfo: %d: %w", pid, err)
	}
	info := Info{Pid: pid}
	if info.Name, err = p.Name(); err != nil {
		return info, fmt.Errorf("procinfo: %d name: %w", pid, err)
	}
	// cmdline may be empty for a process that is still in the middle of exec
	info.Cmdline, _ = p.Cmdline()
	ppid, err := p.Ppid()
	if err != nil {
		return info, fmt.Errorf("procinfo: %d ppid: %w", pid, err)
	}
	info.Ppid = int(ppid)
	return info, nil
}

// Exists reports whether pid is a live (or zombie) process.
func Exists(pid int) bool {
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}
