package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/fetchctl/internal/certauth"
	"github.com/edvin/fetchctl/internal/cmdexec"
	"github.com/edvin/fetchctl/internal/config"
	"github.com/edvin/fetchctl/internal/fetch"
	"github.com/edvin/fetchctl/internal/lxd"
)

// app holds the wiring shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	runner cmdexec.Runner
	ca     *certauth.Authority
	cp     *fetch.ControlPlane
}

func (a *app) init(cfg *config.Config, logger zerolog.Logger, runner cmdexec.Runner) error {
	certDir := cfg.CertDir
	if certDir == "" {
		dir, err := certauth.DefaultDir(cfg.AppName)
		if err != nil {
			return err
		}
		certDir = dir
	}

	var gen certauth.Generator = certauth.OpenSSL{Runner: runner}
	if cfg.CertGenerator == "native" {
		gen = certauth.Native{}
	}
	ca := certauth.New(logger, certDir, gen)

	var baseDir fetch.BaseDirResolver = fetch.SnapBaseDir{Runner: runner}
	if cfg.ServiceBaseDir != "" {
		baseDir = fetch.StaticBaseDir(cfg.ServiceBaseDir)
	}

	a.cfg = cfg
	a.logger = logger
	a.runner = runner
	a.ca = ca
	a.cp = fetch.New(logger, fetch.Options{
		Endpoint: fetch.ServiceEndpoint{
			Host:        cfg.Host,
			ProxyPort:   cfg.ProxyPort,
			ControlPort: cfg.ControlPort,
			Username:    cfg.Username,
			Password:    cfg.Password,
		},
		ControlTimeout: cfg.ControlTimeout,
		Supervisor: fetch.SupervisorOptions{
			Certificates: ca,
			ArchiveKey: fetch.ArchiveKeyExporter{
				Runner:  runner,
				Keyring: cfg.ArchiveKeyring,
				KeyID:   cfg.ArchiveKeyID,
			},
			BaseDir:       baseDir,
			Binary:        cfg.ServiceBinary,
			StartupWait:   cfg.StartupWait,
			ProbeAttempts: cfg.ProbeAttempts,
			ProbeInterval: cfg.ProbeInterval,
			StopTimeout:   cfg.StopTimeout,
		},
		Resolver: fetch.Resolvers{
			lxd.GatewayResolver{Routes: lxd.RouteTables{
				lxd.NetlinkRoutes{},
				lxd.IPRouteTable{Runner: runner},
			}},
		},
	})
	return nil
}

func (a *app) instance(project, name string) *lxd.Instance {
	return lxd.NewInstance(a.runner, a.cfg.LXCBinary, project, name)
}

// health fails unless the daemon answers with an uptime.
func (a *app) health(ctx context.Context) error {
	st := a.cp.Status(ctx)
	switch {
	case st.Online:
		return nil
	case st.Err != nil:
		return fmt.Errorf("fetch-service offline: %w", st.Err)
	default:
		return errors.New("fetch-service reports no uptime")
	}
}
