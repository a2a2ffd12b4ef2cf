package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options configures a ControlPlane.
type Options struct {
	Endpoint       ServiceEndpoint
	ControlTimeout time.Duration
	Supervisor     SupervisorOptions
	Resolver       GatewayResolver
}

// ControlPlane owns one fetch-service daemon endpoint and everything that
// talks to it. Its lifecycle is New, EnsureRunning, sessions, then Stop.
// Sessions it hands out are not safe for concurrent use.
type ControlPlane struct {
	client       *Client
	supervisor   *Supervisor
	sessions     *SessionManager
	configurator *Configurator
	logger       zerolog.Logger

	mu      sync.Mutex
	process Process
}

// New builds a ControlPlane. The certificate source in opts.Supervisor is
// shared by the supervisor and the instance configurator.
func New(logger zerolog.Logger, opts Options) *ControlPlane {
	client := NewClient(logger, opts.Endpoint, opts.ControlTimeout)
	return &ControlPlane{
		client:       client,
		supervisor:   NewSupervisor(logger, client, opts.Supervisor),
		sessions:     NewSessionManager(logger, client),
		configurator: NewConfigurator(logger, opts.Resolver, opts.Supervisor.Certificates, opts.Endpoint.ProxyPort),
		logger:       logger.With().Str("component", "fetch-controlplane").Logger(),
	}
}

func (cp *ControlPlane) Client() *Client { return cp.client }

func (cp *ControlPlane) Supervisor() *Supervisor { return cp.supervisor }

func (cp *ControlPlane) Sessions() *SessionManager { return cp.sessions }

func (cp *ControlPlane) Configurator() *Configurator { return cp.configurator }

// Status probes the daemon.
func (cp *ControlPlane) Status(ctx context.Context) Status {
	return cp.supervisor.Probe(ctx)
}

// EnsureRunning starts the daemon if it is not already online and reports
// whether this call started it. A daemon started here is stopped by Stop.
func (cp *ControlPlane) EnsureRunning(ctx context.Context) (bool, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	p, err := cp.supervisor.EnsureRunning(ctx)
	if err != nil {
		return false, err
	}
	if p == nil {
		return false, nil
	}
	cp.process = p
	return true, nil
}

// Stop stops the daemon if this ControlPlane started it. Daemons started
// elsewhere are left running.
func (cp *ControlPlane) Stop() error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if cp.process == nil {
		return nil
	}
	err := cp.supervisor.Stop(cp.process)
	cp.process = nil
	return err
}

func (cp *ControlPlane) CreateSession(ctx context.Context) (Session, error) {
	return cp.sessions.Create(ctx)
}

func (cp *ControlPlane) Configure(ctx context.Context, inst RemoteInstance, s Session) (map[string]string, error) {
	return cp.configurator.Configure(ctx, inst, s)
}

func (cp *ControlPlane) Teardown(ctx context.Context, s Session) (json.RawMessage, error) {
	return cp.sessions.Teardown(ctx, s)
}

// RunSession creates a session, configures inst for it and runs build with
// the proxy environment. Once a session exists it is always torn down, even
// when configuration or build fails or ctx is cancelled; all failures are
// joined into the returned error.
func (cp *ControlPlane) RunSession(ctx context.Context, inst RemoteInstance, build func(ctx context.Context, env map[string]string) error) (json.RawMessage, error) {
	s, err := cp.sessions.Create(ctx)
	if err != nil {
		return nil, err
	}

	env, err := cp.configurator.Configure(ctx, inst, s)
	if err == nil {
		err = build(ctx, env)
	}

	report, teardownErr := cp.sessions.Teardown(context.WithoutCancel(ctx), s)
	return report, errors.Join(err, teardownErr)
}
