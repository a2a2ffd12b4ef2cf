package lxd

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/fetchctl/internal/cmdexec"
	"github.com/edvin/fetchctl/internal/fetch"
)

type staticRoutes map[string]netip.Addr

func (s staticRoutes) SourceAddress(_ context.Context, device string) (netip.Addr, error) {
	addr, ok := s[device]
	if !ok {
		return netip.Addr{}, errors.New("no route on " + device)
	}
	return addr, nil
}

func TestGatewayResolver(t *testing.T) {
	r := &mockRunner{}
	r.On("Run", "lxc", mock.Anything, "").Return([]byte(expandedConfig), nil)
	inst := NewInstance(r, "", "craft", "build")

	gw := netip.MustParseAddr("10.42.0.1")
	addr, err := GatewayResolver{Routes: staticRoutes{"lxdbr0": gw}}.ResolveGateway(t.Context(), inst)
	require.NoError(t, err)
	assert.Equal(t, gw, addr)
}

func TestGatewayResolver_NoRoute(t *testing.T) {
	r := &mockRunner{}
	r.On("Run", "lxc", mock.Anything, "").Return([]byte(expandedConfig), nil)

	_, err := GatewayResolver{Routes: staticRoutes{}}.ResolveGateway(t.Context(), NewInstance(r, "", "", "build"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lxdbr0")
}

type otherInstance struct{ fetch.RemoteInstance }

func TestGatewayResolver_UnsupportedInstance(t *testing.T) {
	_, err := GatewayResolver{Routes: staticRoutes{}}.ResolveGateway(t.Context(), otherInstance{})
	assert.ErrorIs(t, err, fetch.ErrUnsupportedInstance)
}

func TestGatewayResolver_InChain(t *testing.T) {
	r := &mockRunner{}
	r.On("Run", "lxc", mock.Anything, "").Return([]byte(expandedConfig), nil)
	gw := netip.MustParseAddr("10.42.0.1")

	chain := fetch.Resolvers{GatewayResolver{Routes: staticRoutes{"lxdbr0": gw}}}

	addr, err := chain.ResolveGateway(t.Context(), NewInstance(r, "", "", "build"))
	require.NoError(t, err)
	assert.Equal(t, gw, addr)

	_, err = chain.ResolveGateway(t.Context(), otherInstance{})
	assert.ErrorIs(t, err, fetch.ErrUnsupportedInstance)
}

func TestIPRouteTable(t *testing.T) {
	r := &mockRunner{}
	r.On("Run", "ip", []string{"route", "show", "dev", "lxdbr0"}, "").
		Return([]byte("10.42.0.0/24 proto kernel scope link src 10.42.0.1 \n"), nil)

	addr, err := IPRouteTable{Runner: r}.SourceAddress(t.Context(), "lxdbr0")
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("10.42.0.1"), addr)
}

func TestIPRouteTable_Errors(t *testing.T) {
	r := &mockRunner{}
	r.On("Run", "ip", []string{"route", "show", "dev", "empty0"}, "").Return([]byte("\n"), nil)
	r.On("Run", "ip", []string{"route", "show", "dev", "odd0"}, "").Return([]byte("default via gateway"), nil)
	r.On("Run", "ip", []string{"route", "show", "dev", "gone0"}, "").
		Return(nil, &cmdexec.Error{Command: "ip route", ExitCode: 1, Err: errors.New("exit status 1")})

	table := IPRouteTable{Runner: r}
	for _, dev := range []string{"empty0", "odd0", "gone0"} {
		_, err := table.SourceAddress(t.Context(), dev)
		assert.Error(t, err, dev)
	}
}

func TestRouteTables_FallsBack(t *testing.T) {
	gw := netip.MustParseAddr("10.42.0.1")
	tables := RouteTables{staticRoutes{}, staticRoutes{"lxdbr0": gw}}

	addr, err := tables.SourceAddress(t.Context(), "lxdbr0")
	require.NoError(t, err)
	assert.Equal(t, gw, addr)

	_, err = tables.SourceAddress(t.Context(), "missing0")
	assert.Error(t, err)

	_, err = RouteTables{}.SourceAddress(t.Context(), "lxdbr0")
	assert.Error(t, err)
}
