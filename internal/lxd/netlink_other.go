//go:build !linux

package lxd

import (
	"context"
	"errors"
	"net/netip"
)

// NetlinkRoutes is only available on Linux.
type NetlinkRoutes struct{}

func (NetlinkRoutes) SourceAddress(context.Context, string) (netip.Addr, error) {
	return netip.Addr{}, errors.ErrUnsupported
}
