// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/bureau-foundation/ssh-gpg-agent/lib/config"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/identity"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/metrics"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/sealed"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/service"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/signer"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/sshagent"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/version"
)

// serveFlags holds the serve flag values. Only flags the user
// actually set override the config file.
type serveFlags struct {
	set *pflag.FlagSet

	configPath    string
	socketPath    string
	keyDirectory  string
	backend       string
	gpgBinary     string
	ageIdentities string
	controlSocket string
	metricsListen string
	logLevel      string
	showVersion   bool
}

func newServeFlags(stderr io.Writer) *serveFlags {
	flags := &serveFlags{set: pflag.NewFlagSet("serve", pflag.ContinueOnError)}
	set := flags.set
	set.SetOutput(stderr)
	set.StringVar(&flags.configPath, "config", "", "config file (default: $"+config.EnvironmentVariable+")")
	set.StringVar(&flags.socketPath, "socket", "", "agent socket path")
	set.StringVar(&flags.keyDirectory, "key-dir", "", "directory holding identity triples")
	set.StringVar(&flags.backend, "backend", "", "decryption backend: gpg or age")
	set.StringVar(&flags.gpgBinary, "gpg-binary", "", "gpg executable")
	set.StringVar(&flags.ageIdentities, "age-identities", "", "age identities file")
	set.StringVar(&flags.controlSocket, "control-socket", "", "control socket path (empty disables)")
	set.StringVar(&flags.metricsListen, "metrics-listen", "", "Prometheus listen address (empty disables)")
	set.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn, or error")
	set.BoolVar(&flags.showVersion, "version", false, "print version and exit")
	return flags
}

// config loads the config file, applies flag overrides, and validates
// the result.
func (f *serveFlags) config() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if f.configPath != "" {
		cfg, err = config.LoadFile(f.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	overrides := []struct {
		flag   string
		target *string
		value  string
	}{
		{"socket", &cfg.SocketPath, f.socketPath},
		{"key-dir", &cfg.KeyDirectory, f.keyDirectory},
		{"gpg-binary", &cfg.GPG.Binary, f.gpgBinary},
		{"age-identities", &cfg.Age.IdentitiesFile, f.ageIdentities},
		{"control-socket", &cfg.ControlSocketPath, f.controlSocket},
		{"metrics-listen", &cfg.MetricsListen, f.metricsListen},
		{"log-level", &cfg.LogLevel, f.logLevel},
	}
	for _, override := range overrides {
		if f.set.Changed(override.flag) {
			*override.target = override.value
		}
	}
	if f.set.Changed("backend") {
		cfg.Backend = config.Backend(f.backend)
	}

	cfg.ExpandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := newServeFlags(stderr)
	if err := flags.set.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.showVersion {
		fmt.Fprintf(stdout, "ssh-gpg-agent %s\n", version.Info())
		return nil
	}
	if flags.set.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flags.set.Arg(0))
	}

	cfg, err := flags.config()
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := newLogger(stderr, level)

	decrypter, err := newDecrypter(cfg, logger)
	if err != nil {
		return err
	}

	registry := signer.Default()
	agentMetrics := metrics.New()
	server, err := sshagent.NewServer(sshagent.Config{
		SocketPath: cfg.SocketPath,
		Scanner: &identity.Scanner{
			Directory:           cfg.KeyDirectory,
			CiphertextExtension: cfg.Extension(),
			Keys:                registry,
			Logger:              logger,
		},
		Decrypter: decrypter,
		Signer:    registry,
		Logger:    logger,
		Recorder:  agentMetrics,
	})
	if err != nil {
		return err
	}

	logger.Info("starting ssh-gpg-agent",
		"version", version.Info(),
		"backend", cfg.Backend,
		"key_directory", cfg.KeyDirectory,
		"extension", cfg.Extension(),
		"key_types", registry.KeyTypes(),
	)
	var control *service.SocketServer
	if cfg.ControlSocketPath != "" {
		control = service.NewSocketServer(cfg.ControlSocketPath, logger)
		server.RegisterControl(control, sshagent.ControlInfo{
			Version: version.Info(),
			Backend: string(cfg.Backend),
		})
	}

	var metricsServer *service.HTTPServer
	if cfg.MetricsListen != "" {
		metricsServer, err = service.NewHTTPServer(service.HTTPServerConfig{
			Address: cfg.MetricsListen,
			Routes:  map[string]http.Handler{"GET /metrics": agentMetrics.Handler()},
			Logger:  logger,
		})
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(stdout, "SSH_AUTH_SOCK=%s; export SSH_AUTH_SOCK;\n", cfg.SocketPath)

	// The first server to fail stops the others.
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return server.Serve(groupCtx) })
	if control != nil {
		group.Go(func() error { return control.Serve(groupCtx) })
	}
	if metricsServer != nil {
		group.Go(func() error { return metricsServer.Serve(groupCtx) })
	}

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// newLogger writes text records to a terminal and JSON everywhere
// else.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

func newDecrypter(cfg *config.Config, logger *slog.Logger) (sealed.Decrypter, error) {
	switch cfg.Backend {
	case config.BackendGPG:
		return &sealed.GPG{
			Binary:    cfg.GPG.Binary,
			ExtraArgs: cfg.GPG.ExtraArgs,
			Logger:    logger,
		}, nil
	case config.BackendAge:
		identities, err := sealed.LoadAgeIdentities(cfg.Age.IdentitiesFile, sealed.TerminalUI(logger))
		if err != nil {
			return nil, err
		}
		return sealed.NewAge(identities...)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
