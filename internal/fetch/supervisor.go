package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sys/unix"

	"github.com/edvin/fetchctl/internal/certauth"
)

const (
	DefaultBinary        = "/snap/bin/fetch-service"
	DefaultStartupWait   = 100 * time.Millisecond
	DefaultProbeAttempts = 10
	DefaultProbeInterval = 500 * time.Millisecond
	DefaultStopTimeout   = time.Second

	envAuth       = "FETCH_SERVICE_AUTH"
	envArchiveKey = "FETCH_APT_RELEASE_PUBLIC_KEY"

	// addrInUseOutput is what the daemon prints when it cannot bind. Only
	// consulted after an early exit, when the preflight check missed it.
	addrInUseOutput = "bind: address already in use"
)

// CertificateSource provides the CA bundle the daemon re-signs traffic with.
type CertificateSource interface {
	Obtain(ctx context.Context) (certauth.Bundle, error)
}

// KeyExporter provides the armored archive public key passed to the daemon.
type KeyExporter interface {
	Export(ctx context.Context) (string, error)
}

// BaseDirResolver locates the directory holding the daemon's config and spool.
type BaseDirResolver interface {
	BaseDir(ctx context.Context) (string, error)
}

// SupervisorOptions wires a Supervisor's collaborators. Zero durations and
// counts select the package defaults.
type SupervisorOptions struct {
	Launcher     ProcessLauncher
	Certificates CertificateSource
	ArchiveKey   KeyExporter
	BaseDir      BaseDirResolver

	Binary        string
	StartupWait   time.Duration
	ProbeAttempts int
	ProbeInterval time.Duration
	StopTimeout   time.Duration

	// PortCheck runs before spawning. Nil selects a bind probe of both ports.
	PortCheck func(ServiceEndpoint) error
}

// Status is the result of a health probe.
type Status struct {
	Online bool
	Raw    map[string]any
	Err    error
}

// Supervisor starts, probes and stops the fetch-service daemon.
type Supervisor struct {
	client *Client
	opts   SupervisorOptions
	logger zerolog.Logger
}

// NewSupervisor creates a Supervisor for the daemon behind client.
func NewSupervisor(logger zerolog.Logger, client *Client, opts SupervisorOptions) *Supervisor {
	if opts.Launcher == nil {
		opts.Launcher = ExecLauncher{}
	}
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.StartupWait == 0 {
		opts.StartupWait = DefaultStartupWait
	}
	if opts.ProbeAttempts <= 0 {
		opts.ProbeAttempts = DefaultProbeAttempts
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = DefaultProbeInterval
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.PortCheck == nil {
		opts.PortCheck = checkPortsFree
	}
	return &Supervisor{
		client: client,
		opts:   opts,
		logger: logger.With().Str("component", "fetch-supervisor").Logger(),
	}
}

// Probe queries the daemon status. The daemon is online when the status
// request succeeds and reports an uptime.
func (s *Supervisor) Probe(ctx context.Context) Status {
	raw, err := s.client.Status(ctx)
	if err != nil {
		return Status{Err: err}
	}
	_, ok := raw["uptime"]
	return Status{Online: ok, Raw: raw}
}

// EnsureRunning starts the daemon unless it already answers a probe, in
// which case it returns a nil Process and no error. A started daemon that
// never becomes healthy is stopped before the error is returned.
func (s *Supervisor) EnsureRunning(ctx context.Context) (Process, error) {
	if st := s.Probe(ctx); st.Online {
		s.logger.Debug().Interface("uptime", st.Raw["uptime"]).Msg("fetch-service already running")
		return nil, nil
	}

	p, err := s.start(ctx)
	daemonStartsTotal.WithLabelValues(startResult(err)).Inc()
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Supervisor) start(ctx context.Context) (Process, error) {
	ep := s.client.Endpoint()

	if err := s.opts.PortCheck(ep); err != nil {
		return nil, err
	}

	spec, err := s.launchSpec(ctx, ep)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("binary", spec.Path).
		Int("proxy_port", ep.ProxyPort).
		Int("control_port", ep.ControlPort).
		Msg("starting fetch-service")

	p, err := s.opts.Launcher.Start(ctx, spec)
	if err != nil {
		return nil, &Error{Kind: ErrSpawn, Message: "error spawning the fetch-service", Err: err}
	}

	// Catch an immediate crash, such as failing to bind.
	if p.Wait(s.opts.StartupWait) {
		return nil, spawnFailure(ep, p)
	}

	if err := s.waitHealthy(ctx, p); err != nil {
		if stopErr := s.Stop(p); stopErr != nil {
			s.logger.Warn().Err(stopErr).Int("pid", p.Pid()).Msg("failed to stop unhealthy fetch-service")
		}
		return nil, err
	}

	s.logger.Info().Int("pid", p.Pid()).Msg("fetch-service is online")
	return p, nil
}

func (s *Supervisor) launchSpec(ctx context.Context, ep ServiceEndpoint) (LaunchSpec, error) {
	key, err := s.opts.ArchiveKey.Export(ctx)
	if err != nil {
		return LaunchSpec{}, &Error{Kind: ErrSpawn, Message: "error preparing the fetch-service", Err: err}
	}

	base, err := s.opts.BaseDir.BaseDir(ctx)
	if err != nil {
		return LaunchSpec{}, &Error{Kind: ErrSpawn, Message: "error preparing the fetch-service", Err: err}
	}

	args := []string{
		"--control-port=" + strconv.Itoa(ep.ControlPort),
		"--proxy-port=" + strconv.Itoa(ep.ProxyPort),
	}
	for _, name := range []string{"config", "spool"} {
		dir := filepath.Join(base, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return LaunchSpec{}, fmt.Errorf("create fetch-service %s directory: %w", name, err)
		}
		args = append(args, "--"+name+"="+dir)
	}

	bundle, err := s.opts.Certificates.Obtain(ctx)
	if err != nil {
		return LaunchSpec{}, fmt.Errorf("obtain fetch-service certificate: %w", err)
	}
	args = append(args, "--cert="+bundle.CertificatePath, "--key="+bundle.KeyPath)

	return LaunchSpec{
		Path: s.opts.Binary,
		Args: args,
		Env: []string{
			envAuth + "=" + ep.Auth(),
			envArchiveKey + "=" + key,
		},
	}, nil
}

// waitHealthy polls the status endpoint on a bounded constant schedule.
func (s *Supervisor) waitHealthy(ctx context.Context, p Process) error {
	var last Status
	backoff := retry.WithMaxRetries(uint64(s.opts.ProbeAttempts-1), retry.NewConstant(s.opts.ProbeInterval))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if p.Exited() {
			return &Error{
				Kind:    ErrExited,
				Message: fmt.Sprintf("fetch-service exited with code %d before becoming healthy", p.ExitCode()),
				Details: p.Output(),
			}
		}
		last = s.Probe(ctx)
		if last.Online {
			return nil
		}
		return retry.RetryableError(errors.New("no uptime in status"))
	})
	if err == nil {
		return nil
	}

	var fe *Error
	if errors.As(err, &fe) && fe.Kind == ErrExited {
		return fe
	}

	e := &Error{Kind: ErrNotHealthy, Message: "fetch-service did not start correctly"}
	switch {
	case ctx.Err() != nil:
		e.Err = ctx.Err()
	case last.Err != nil:
		e.Err = last.Err
	default:
		e.Details = fmt.Sprintf("status: %v", last.Raw)
	}
	return e
}

// Stop terminates p, escalating to a kill if it has not exited within the
// stop timeout. A nil p is a no-op.
func (s *Supervisor) Stop(p Process) error {
	if p == nil {
		return nil
	}

	if err := p.Terminate(); err != nil {
		return fmt.Errorf("terminate fetch-service: %w", err)
	}
	if p.Wait(s.opts.StopTimeout) {
		s.logger.Info().Int("pid", p.Pid()).Msg("fetch-service stopped")
		return nil
	}

	s.logger.Warn().Int("pid", p.Pid()).Dur("timeout", s.opts.StopTimeout).Msg("fetch-service ignored SIGTERM, killing")
	if err := p.Kill(); err != nil {
		return fmt.Errorf("kill fetch-service: %w", err)
	}
	p.Wait(s.opts.StopTimeout)
	return nil
}

func spawnFailure(ep ServiceEndpoint, p Process) error {
	out := p.Output()
	if strings.Contains(out, addrInUseOutput) {
		return portsInUse(ep)
	}
	return &Error{
		Kind:    ErrSpawn,
		Message: fmt.Sprintf("error spawning the fetch-service (exit code %d)", p.ExitCode()),
		Details: out,
	}
}

func portsInUse(ep ServiceEndpoint) *Error {
	return &Error{
		Kind:       ErrPortsInUse,
		Message:    fmt.Sprintf("fetch-service ports %d and %d are already in use", ep.ProxyPort, ep.ControlPort),
		Resolution: "Stop the process listening on those ports, or set FETCH_PROXY_PORT and FETCH_CONTROL_PORT.",
	}
}

// checkPortsFree binds each daemon port briefly to detect a conflict before
// spawning. Errors other than EADDRINUSE are left for the daemon to report.
func checkPortsFree(ep ServiceEndpoint) error {
	for _, port := range []int{ep.ProxyPort, ep.ControlPort} {
		ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
		if err != nil {
			if errors.Is(err, unix.EADDRINUSE) {
				return portsInUse(ep)
			}
			continue
		}
		ln.Close()
	}
	return nil
}

func startResult(err error) string {
	switch {
	case err == nil:
		return "started"
	case errors.Is(err, ErrPortsInUse):
		return "ports_in_use"
	case errors.Is(err, ErrExited):
		return "exited"
	case errors.Is(err, ErrNotHealthy):
		return "unhealthy"
	default:
		return "error"
	}
}
