// Package namespace describes the set of Linux namespaces an isolated
// process is created in and later unshared into.
//
// Only network, PID and mount namespaces are handled. The order returned by
// Set.Kinds is the order the bootstrapper unshares them in.
package namespace

import (
	"strings"

	"golang.org/x/sys/unix"
)

// Kind is a single namespace type.
type Kind int

const (
	Net Kind = iota
	PID
	Mount
)

// order is the unshare order inside the isolated process
var order = [...]Kind{Net, PID, Mount}

// Flag returns the clone / unshare flag for the kind.
func (k Kind) Flag() uintptr {
	switch k {
	case Net:
		return unix.CLONE_NEWNET
	case PID:
		return unix.CLONE_NEWPID
	case Mount:
		return unix.CLONE_NEWNS
	}
	return 0
}

func (k Kind) String() string {
	switch k {
	case Net:
		return "net"
	case PID:
		return "pid"
	case Mount:
		return "mnt"
	}
	return "unknown"
}

// Set is an immutable combination of namespace kinds requested when the
// isolated process is created.
type Set struct {
	flags uintptr
}

// NewSet returns the set holding all given kinds.
func NewSet(kinds ...Kind) Set {
	var s Set
	for _, k := range kinds {
		s.flags |= k.Flag()
	}
	return s
}

// All is the set used by the bootstrap: new PID, network and mount namespaces.
func All() Set {
	return NewSet(order[:]...)
}

// Has reports whether k is in the set.
func (s Set) Has(k Kind) bool {
	f := k.Flag()
	return f != 0 && s.flags&f == f
}

// CloneFlags returns the union of clone flags for the set.
func (s Set) CloneFlags() uintptr {
	return s.flags
}

// Kinds lists the kinds of the set in unshare order: net, pid, mnt.
func (s Set) Kinds() []Kind {
	kinds := make([]Kind, 0, len(order))
	for _, k := range order {
		if s.Has(k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Empty reports whether no kind is set.
func (s Set) Empty() bool {
	return s.flags == 0
}

func (s Set) String() string {
	kinds := s.Kinds()
	if len(kinds) == 0 {
		return "none"
	}
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, k.String())
	}
	return strings.Join(names, "|")
}
