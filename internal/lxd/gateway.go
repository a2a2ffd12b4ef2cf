package lxd

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/edvin/fetchctl/internal/fetch"
)

// RouteTable finds the host's source address on a network device.
type RouteTable interface {
	SourceAddress(ctx context.Context, device string) (netip.Addr, error)
}

// RouteTables tries each table in order and returns the first address found.
type RouteTables []RouteTable

func (ts RouteTables) SourceAddress(ctx context.Context, device string) (netip.Addr, error) {
	var errs []error
	for _, t := range ts {
		addr, err := t.SourceAddress(ctx, device)
		if err == nil {
			return addr, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return netip.Addr{}, fmt.Errorf("no route table to look up %s", device)
	}
	return netip.Addr{}, errors.Join(errs...)
}

// GatewayResolver resolves the gateway of LXD instances: the host address on
// the bridge the instance's eth0 is attached to.
type GatewayResolver struct {
	Routes RouteTable
}

func (r GatewayResolver) ResolveGateway(ctx context.Context, inst fetch.RemoteInstance) (netip.Addr, error) {
	li, ok := inst.(*Instance)
	if !ok {
		return netip.Addr{}, fetch.UnsupportedInstance(inst)
	}

	network, err := li.Network(ctx)
	if err != nil {
		return netip.Addr{}, err
	}
	addr, err := r.Routes.SourceAddress(ctx, network)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("resolve gateway of %s on %s: %w", li.Name, network, err)
	}
	return addr, nil
}
