package lxd

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/edvin/fetchctl/internal/cmdexec"
)

// IPRouteTable reads routes with `ip route show dev DEVICE` and takes the
// last field, the "src" address of the link route.
type IPRouteTable struct {
	Runner cmdexec.Runner
}

func (t IPRouteTable) SourceAddress(ctx context.Context, device string) (netip.Addr, error) {
	out, err := t.Runner.Run(ctx, cmdexec.Command{Name: "ip", Args: []string{"route", "show", "dev", device}})
	if err != nil {
		return netip.Addr{}, err
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return netip.Addr{}, fmt.Errorf("no routes on %s", device)
	}
	addr, err := netip.ParseAddr(fields[len(fields)-1])
	if err != nil {
		return netip.Addr{}, fmt.Errorf("parse route source on %s: %w", device, err)
	}
	return addr, nil
}
