package netinspect

import (
	"fmt"

	"github.com/vishvananda/netns"
)

// Namespace returns an identifier of the calling thread's network namespace,
// e.g. "NS(4:4026531992)". The caller should hold runtime.LockOSThread.
func Namespace() (string, error) {
	h, err := netns.Get()
	if err != nil {
		return "", fmt.Errorf("netinspect: current netns: %w", err)
	}
	defer h.Close()
	return h.UniqueId(), nil
}
