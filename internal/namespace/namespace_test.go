package namespace

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestSetCloneFlags(t *testing.T) {
	tests := []struct {
		name  string
		set   Set
		flags uintptr
		str   string
	}{
		{"empty", NewSet(), 0, "none"},
		{"net", NewSet(Net), unix.CLONE_NEWNET, "net"},
		{"all", All(), unix.CLONE_NEWNET | unix.CLONE_NEWPID | unix.CLONE_NEWNS, "net|pid|mnt"},
		{"duplicate", NewSet(PID, PID), unix.CLONE_NEWPID, "pid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.set.CloneFlags(); got != tt.flags {
				t.Fatalf("CloneFlags() = %#x, want %#x", got, tt.flags)
			}
			if got := tt.set.String(); got != tt.str {
				t.Fatalf("String() = %q, want %q", got, tt.str)
			}
		})
	}
}

func TestSetKindsOrder(t *testing.T) {
	// construction order must not leak into the unshare order
	s := NewSet(Mount, Net, PID)
	got := s.Kinds()
	want := []Kind{Net, PID, Mount}
	if len(got) != len(want) {
		t.Fatalf("Kinds() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Kinds()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSetHas(t *testing.T) {
	s := NewSet(Net, Mount)
	if !s.Has(Net) || !s.Has(Mount) {
		t.Fatal("expected net and mnt in set")
	}
	if s.Has(PID) {
		t.Fatal("pid should not be in set")
	}
	if s.Has(Kind(42)) {
		t.Fatal("unknown kind should never be in set")
	}
	if !NewSet().Empty() || s.Empty() {
		t.Fatal("Empty() mismatch")
	}
}
