package netinspect

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/vishvananda/netlink"
)

// LinkInspector lists links over netlink, rendered close to "ip a".
type LinkInspector struct{}

func (LinkInspector) Inspect(ctx context.Context) (string, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return "", fmt.Errorf("netinspect: list links: %w", err)
	}
	addrs := make(map[int][]netlink.Addr, len(links))
	for _, l := range links {
		a, err := netlink.AddrList(l, netlink.FAMILY_ALL)
		if err != nil {
			return "", fmt.Errorf("netinspect: list addresses of %s: %w", l.Attrs().Name, err)
		}
		addrs[l.Attrs().Index] = a
	}
	return Render(links, addrs), nil
}

// Render formats links and their addresses, keyed by link index.
func Render(links []netlink.Link, addrs map[int][]netlink.Addr) string {
	var b strings.Builder
	for _, l := range links {
		attrs := l.Attrs()
		fmt.Fprintf(&b, "%d: %s: <%s> mtu %d state %s\n",
			attrs.Index, attrs.Name, flagString(attrs.Flags), attrs.MTU, operState(attrs.OperState))
		fmt.Fprintf(&b, "    link/%s", l.Type())
		if len(attrs.HardwareAddr) > 0 {
			fmt.Fprintf(&b, " %s", attrs.HardwareAddr)
		}
		b.WriteString("\n")
		for _, a := range addrs[attrs.Index] {
			fmt.Fprintf(&b, "    %s %s\n", family(a.IPNet), a.IPNet)
		}
	}
	return b.String()
}

func flagString(f net.Flags) string {
	if f == 0 {
		return ""
	}
	return strings.ToUpper(strings.ReplaceAll(f.String(), "|", ","))
}

func operState(s netlink.LinkOperState) string {
	if s == netlink.OperUnknown {
		return "UNKNOWN"
	}
	return strings.ToUpper(s.String())
}

func family(n *net.IPNet) string {
	if n != nil && n.IP.To4() == nil {
		return "inet6"
	}
	return "inet"
}
