package fetch

import (
	"context"
	"fmt"
	"path"

	"github.com/rs/zerolog"
)

// Paths inside the build instance.
const (
	InstanceCertPath = "/usr/local/share/ca-certificates/local-ca.crt"
	pipConfigDir     = "/root/.pip"
	aptProxyPath     = "/etc/apt/apt.conf.d/99proxy"
	aptListsDir      = "/var/lib/apt/lists"
)

// Configurator points a build instance at a fetch-service session.
type Configurator struct {
	resolver  GatewayResolver
	certs     CertificateSource
	proxyPort int
	logger    zerolog.Logger
}

// NewConfigurator creates a Configurator. proxyPort is the daemon's proxy
// port as seen from the instance's gateway.
func NewConfigurator(logger zerolog.Logger, resolver GatewayResolver, certs CertificateSource, proxyPort int) *Configurator {
	return &Configurator{
		resolver:  resolver,
		certs:     certs,
		proxyPort: proxyPort,
		logger:    logger.With().Str("component", "fetch-configurator").Logger(),
	}
}

// NetworkInfo resolves the gateway for inst and pairs it with the session.
func (c *Configurator) NetworkInfo(ctx context.Context, inst RemoteInstance, s Session) (NetworkInfo, error) {
	gw, err := c.resolver.ResolveGateway(ctx, inst)
	if err != nil {
		return NetworkInfo{}, err
	}
	return NetworkInfo{Gateway: gw, ProxyPort: c.proxyPort, Credentials: s.Credentials()}, nil
}

// Configure installs the CA certificate into inst and routes pip, snapd and
// apt through the session's proxy, returning the environment the build
// should run with. Steps run in a fixed order: the trust store is refreshed
// before snapd restarts and before apt fetches through the proxy. The first
// failure aborts; the instance may be left partially configured.
func (c *Configurator) Configure(ctx context.Context, inst RemoteInstance, s Session) (map[string]string, error) {
	ni, err := c.NetworkInfo(ctx, inst, s)
	if err != nil {
		return nil, err
	}

	log := c.logger.With().Object("session", s).Str("gateway", ni.Gateway.String()).Logger()
	log.Info().Msg("configuring instance for fetch-service")

	steps := []struct {
		name string
		run  func(context.Context, RemoteInstance, NetworkInfo) error
	}{
		{"install certificate", c.installCertificate},
		{"configure pip", c.configurePip},
		{"configure snapd", c.configureSnapd},
		{"configure apt", c.configureApt},
	}
	for _, step := range steps {
		if err := step.run(ctx, inst, ni); err != nil {
			log.Error().Err(err).Str("step", step.name).Msg("instance configuration failed")
			return nil, fmt.Errorf("%s: %w", step.name, err)
		}
		log.Debug().Str("step", step.name).Msg("instance configuration step done")
	}

	return ni.Env(), nil
}

func (c *Configurator) installCertificate(ctx context.Context, inst RemoteInstance, _ NetworkInfo) error {
	bundle, err := c.certs.Obtain(ctx)
	if err != nil {
		return err
	}
	if err := inst.PushFile(ctx, bundle.CertificatePath, InstanceCertPath); err != nil {
		return err
	}
	return run(ctx, inst, nil, "/bin/sh", "-c", "/usr/sbin/update-ca-certificates > /dev/null")
}

func (c *Configurator) configurePip(ctx context.Context, inst RemoteInstance, _ NetworkInfo) error {
	if err := run(ctx, inst, nil, "mkdir", "-p", pipConfigDir); err != nil {
		return err
	}
	conf := "[global]\ncert=" + InstanceCertPath
	return inst.PushBytes(ctx, path.Join(pipConfigDir, "pip.conf"), []byte(conf), 0o644)
}

// configureSnapd must run after installCertificate: the restart is what
// makes snapd load the new trust anchor.
func (c *Configurator) configureSnapd(ctx context.Context, inst RemoteInstance, ni NetworkInfo) error {
	if err := run(ctx, inst, nil, "systemctl", "restart", "snapd"); err != nil {
		return err
	}
	proxy := ni.ProxyURL()
	for _, key := range []string{"proxy.http", "proxy.https"} {
		if err := run(ctx, inst, nil, "snap", "set", "system", key+"="+proxy); err != nil {
			return err
		}
	}
	return nil
}

func (c *Configurator) configureApt(ctx context.Context, inst RemoteInstance, ni NetworkInfo) error {
	proxy := ni.ProxyURL()
	conf := fmt.Sprintf("Acquire::http::Proxy %q;\nAcquire::https::Proxy %q;\n", proxy, proxy)
	if err := inst.PushBytes(ctx, aptProxyPath, []byte(conf), 0o644); err != nil {
		return err
	}

	// Dropping the cached lists forces apt to refetch them through the proxy.
	if err := run(ctx, inst, nil, "/bin/rm", "-Rf", aptListsDir); err != nil {
		return err
	}
	return run(ctx, inst, ni.Env(), "apt", "update")
}

func run(ctx context.Context, inst RemoteInstance, env map[string]string, argv ...string) error {
	_, err := inst.Exec(ctx, argv, ExecOptions{Env: env, Check: true})
	return err
}
