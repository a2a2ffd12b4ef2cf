//go:build linux

package lxd

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/vishvananda/netlink"
)

// NetlinkRoutes reads the host's IPv4 routing table over netlink.
type NetlinkRoutes struct{}

func (NetlinkRoutes) SourceAddress(_ context.Context, device string) (netip.Addr, error) {
	link, err := netlink.LinkByName(device)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("find link %s: %w", device, err)
	}
	routes, err := netlink.RouteList(link, netlink.FAMILY_V4)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("list routes on %s: %w", device, err)
	}
	for _, rt := range routes {
		if addr, ok := netip.AddrFromSlice(rt.Src); ok {
			return addr.Unmap(), nil
		}
	}
	return netip.Addr{}, fmt.Errorf("no route with a source address on %s", device)
}
