package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
)

// ExecOptions controls a command run inside an instance.
type ExecOptions struct {
	Env map[string]string
	// Check makes a non-zero exit status an error.
	Check bool
}

// ExecResult is the outcome of a command run inside an instance.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// RemoteInstance is the build environment being configured. Errors it
// returns are propagated to callers unchanged.
type RemoteInstance interface {
	PushFile(ctx context.Context, localPath, remotePath string) error
	PushBytes(ctx context.Context, remotePath string, content []byte, mode fs.FileMode) error
	Exec(ctx context.Context, argv []string, opts ExecOptions) (ExecResult, error)
}

// GatewayResolver finds the host address an instance routes through to
// reach the host. A resolver that does not handle the instance's backend
// returns an error matching ErrUnsupportedInstance.
type GatewayResolver interface {
	ResolveGateway(ctx context.Context, inst RemoteInstance) (netip.Addr, error)
}

// Resolvers tries each resolver in order until one supports the instance.
type Resolvers []GatewayResolver

func (rs Resolvers) ResolveGateway(ctx context.Context, inst RemoteInstance) (netip.Addr, error) {
	for _, r := range rs {
		addr, err := r.ResolveGateway(ctx, inst)
		if errors.Is(err, ErrUnsupportedInstance) {
			continue
		}
		return addr, err
	}
	return netip.Addr{}, UnsupportedInstance(inst)
}

// UnsupportedInstance returns the error for an instance no resolver handles.
func UnsupportedInstance(inst RemoteInstance) error {
	return &Error{
		Kind:    ErrUnsupportedInstance,
		Message: fmt.Sprintf("don't know how to resolve the gateway of %T instances", inst),
	}
}
