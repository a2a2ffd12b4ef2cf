// Package lxd adapts LXD instances, driven through the lxc CLI, to the
// fetch-service instance configurator.
package lxd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/edvin/fetchctl/internal/cmdexec"
	"github.com/edvin/fetchctl/internal/fetch"
)

// DefaultBinary is the lxc client looked up on PATH.
const DefaultBinary = "lxc"

// Instance is one LXD container or VM.
type Instance struct {
	Name    string
	Project string

	runner cmdexec.Runner
	binary string
}

// NewInstance returns an Instance addressed as name in project. An empty
// project selects the lxc default.
func NewInstance(runner cmdexec.Runner, binary, project, name string) *Instance {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Instance{Name: name, Project: project, runner: runner, binary: binary}
}

func (i *Instance) command(args ...string) cmdexec.Command {
	if i.Project != "" {
		args = append([]string{"--project", i.Project}, args...)
	}
	return cmdexec.Command{Name: i.binary, Args: args}
}

func (i *Instance) target(remotePath string) string {
	return i.Name + remotePath
}

func (i *Instance) PushFile(ctx context.Context, localPath, remotePath string) error {
	_, err := i.runner.Run(ctx, i.command("file", "push", localPath, i.target(remotePath)))
	return err
}

func (i *Instance) PushBytes(ctx context.Context, remotePath string, content []byte, mode fs.FileMode) error {
	cmd := i.command("file", "push", "-", i.target(remotePath), fmt.Sprintf("--mode=%04o", mode.Perm()))
	cmd.Stdin = bytes.NewReader(content)
	_, err := i.runner.Run(ctx, cmd)
	return err
}

// Exec runs argv inside the instance. Without Check a non-zero exit is
// reported through ExecResult only.
func (i *Instance) Exec(ctx context.Context, argv []string, opts fetch.ExecOptions) (fetch.ExecResult, error) {
	args := []string{"exec", i.Name}
	for _, k := range slices.Sorted(maps.Keys(opts.Env)) {
		args = append(args, "--env", k+"="+opts.Env[k])
	}
	args = append(args, "--")
	args = append(args, argv...)

	out, err := i.runner.Run(ctx, i.command(args...))
	res := fetch.ExecResult{Stdout: string(out)}
	if err == nil {
		return res, nil
	}

	var ce *cmdexec.Error
	if !errors.As(err, &ce) || ce.ExitCode < 0 {
		res.ExitCode = -1
		return res, err
	}
	res.ExitCode = ce.ExitCode
	res.Stderr = ce.Stderr
	if opts.Check {
		return res, err
	}
	return res, nil
}

// Network returns the LXD network attached to the instance's eth0.
func (i *Instance) Network(ctx context.Context) (string, error) {
	out, err := i.runner.Run(ctx, i.command("config", "show", i.Name, "--expanded"))
	if err != nil {
		return "", fmt.Errorf("show config of %s: %w", i.Name, err)
	}

	var cfg struct {
		Devices map[string]map[string]any `yaml:"devices"`
	}
	if err := yaml.Unmarshal(out, &cfg); err != nil {
		return "", fmt.Errorf("parse config of %s: %w", i.Name, err)
	}
	network, _ := cfg.Devices["eth0"]["network"].(string)
	if network == "" {
		return "", fmt.Errorf("instance %s has no eth0 network device", i.Name)
	}
	return network, nil
}
