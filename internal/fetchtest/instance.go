package fetchtest

import (
	"context"
	"io/fs"
	"net/netip"
	"strings"
	"sync"

	"github.com/edvin/fetchctl/internal/certauth"
	"github.com/edvin/fetchctl/internal/fetch"
)

// OpKind identifies a recorded instance operation.
type OpKind string

const (
	OpPushFile  OpKind = "push-file"
	OpPushBytes OpKind = "push-bytes"
	OpExec      OpKind = "exec"
)

// Op is one operation performed against an Instance.
type Op struct {
	Kind       OpKind
	LocalPath  string
	RemotePath string
	Content    []byte
	Mode       fs.FileMode
	Argv       []string
	Env        map[string]string
	Check      bool
}

// Command returns the space-joined argv of an exec op.
func (o Op) Command() string { return strings.Join(o.Argv, " ") }

type failure struct {
	match string
	err   error
}

// Instance records every push and exec and fails the ones matched by FailOn.
type Instance struct {
	Name string

	mu       sync.Mutex
	ops      []Op
	failures []failure
}

// NewInstance returns a recording instance.
func NewInstance(name string) *Instance {
	return &Instance{Name: name}
}

// FailOn makes any exec whose command contains match return err. The failing
// op is still recorded.
func (i *Instance) FailOn(match string, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.failures = append(i.failures, failure{match: match, err: err})
}

func (i *Instance) PushFile(_ context.Context, localPath, remotePath string) error {
	i.add(Op{Kind: OpPushFile, LocalPath: localPath, RemotePath: remotePath})
	return nil
}

func (i *Instance) PushBytes(_ context.Context, remotePath string, content []byte, mode fs.FileMode) error {
	i.add(Op{Kind: OpPushBytes, RemotePath: remotePath, Content: append([]byte(nil), content...), Mode: mode})
	return nil
}

func (i *Instance) Exec(_ context.Context, argv []string, opts fetch.ExecOptions) (fetch.ExecResult, error) {
	op := Op{Kind: OpExec, Argv: append([]string(nil), argv...), Env: opts.Env, Check: opts.Check}
	i.add(op)

	i.mu.Lock()
	defer i.mu.Unlock()
	for _, f := range i.failures {
		if strings.Contains(op.Command(), f.match) {
			return fetch.ExecResult{ExitCode: 1}, f.err
		}
	}
	return fetch.ExecResult{}, nil
}

func (i *Instance) add(op Op) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ops = append(i.ops, op)
}

// Ops returns every recorded operation in order.
func (i *Instance) Ops() []Op {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Op(nil), i.ops...)
}

// Pushes returns the push-file and push-bytes operations in order.
func (i *Instance) Pushes() []Op {
	var out []Op
	for _, op := range i.Ops() {
		if op.Kind != OpExec {
			out = append(out, op)
		}
	}
	return out
}

// Commands returns the joined argv of every exec in order.
func (i *Instance) Commands() []string {
	var out []string
	for _, op := range i.Ops() {
		if op.Kind == OpExec {
			out = append(out, op.Command())
		}
	}
	return out
}

// StaticResolver resolves every instance to Addr, or fails with Err.
type StaticResolver struct {
	Addr netip.Addr
	Err  error
}

func (r StaticResolver) ResolveGateway(context.Context, fetch.RemoteInstance) (netip.Addr, error) {
	if r.Err != nil {
		return netip.Addr{}, r.Err
	}
	return r.Addr, nil
}

// StaticCerts hands out a fixed bundle without touching the filesystem.
type StaticCerts certauth.Bundle

func (c StaticCerts) Obtain(context.Context) (certauth.Bundle, error) {
	return certauth.Bundle(c), nil
}
