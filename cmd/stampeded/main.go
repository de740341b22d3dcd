// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

// Stampeded runs a fleet of chat identities against one server. Each
// identity connects, registers or logs in, and holds its session; the
// shared admission controller paces every connection attempt so the
// fleet ramps up without stampeding the server, and adapts when the
// server pushes back with rate-limit kicks or connection resets.
//
// Configuration comes from a YAML file (--config or STAMPEDE_CONFIG);
// a handful of flags override the common knobs for quick runs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/stampede-project/stampede/admission"
	"github.com/stampede-project/stampede/backoff"
	"github.com/stampede-project/stampede/behavior"
	"github.com/stampede-project/stampede/config"
	"github.com/stampede-project/stampede/console"
	"github.com/stampede-project/stampede/credstore"
	"github.com/stampede-project/stampede/fleet"
	"github.com/stampede-project/stampede/lib/process"
	"github.com/stampede-project/stampede/lib/sealed"
	"github.com/stampede-project/stampede/lib/secret"
	"github.com/stampede-project/stampede/lib/version"
	"github.com/stampede-project/stampede/session"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		count       int
		start       int
		server      string
		secretFile  string
		scriptPath  string
		verbose     bool
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("stampeded", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to stampede.yaml (default: $STAMPEDE_CONFIG)")
	flagSet.IntVar(&count, "count", 0, "override fleet.count")
	flagSet.IntVar(&start, "start", -1, "override fleet.start")
	flagSet.StringVar(&server, "server", "", "override server.address")
	flagSet.StringVar(&secretFile, "secret-file", "", "override secrets.shared_secret_file")
	flagSet.StringVar(&scriptPath, "script", "", "override behavior.script_path")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log state transitions and wire traffic")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print("stampeded")
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if count > 0 {
		cfg.Fleet.Count = count
	}
	if start >= 0 {
		cfg.Fleet.Start = start
	}
	if server != "" {
		cfg.Server.Address = server
	}
	if secretFile != "" {
		cfg.Secrets.SharedSecretFile = secretFile
		cfg.Secrets.SharedSecret = ""
	}
	if scriptPath != "" {
		cfg.Behavior.ScriptPath = scriptPath
	}
	if verbose {
		cfg.Console.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLogging, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLogging()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sharedSecret, err := loadSharedSecret(cfg)
	if err != nil {
		return err
	}
	defer sharedSecret.Close()

	var store *credstore.Store
	if cfg.Secrets.CredentialsPath != "" {
		var sealer *sealed.Sealer
		if cfg.Secrets.AgeIdentityPath != "" {
			sealer, err = sealed.OpenIdentityFile(cfg.Secrets.AgeIdentityPath)
			if err != nil {
				return fmt.Errorf("opening age identity: %w", err)
			}
			defer sealer.Close()
		}
		store, err = credstore.Load(cfg.Secrets.CredentialsPath, sealer)
		if err != nil {
			return fmt.Errorf("loading credential store: %w", err)
		}
		logger.Info("credential store loaded",
			"path", cfg.Secrets.CredentialsPath,
			"entries", store.Len(),
			"encrypted", sealer != nil)
	}

	behaviors, err := buildBehaviors(cfg, logger)
	if err != nil {
		return err
	}

	gate := admission.New(admission.Config{
		InitialDelay: cfg.Admission.InitialDelay.Std(),
		Ceiling:      cfg.Admission.Ceiling.Std(),
		Logger:       logger,
	})
	dialer := &session.TCPDialer{
		Address: cfg.Server.Address,
		Timeout: cfg.Server.DialTimeout.Std(),
		Logger:  logger,
	}

	identities := fleet.Identities(cfg.Fleet.Prefix, cfg.Fleet.Start, cfg.Fleet.Count)
	runners := make([]*fleet.Runner, len(identities))
	for i, identity := range identities {
		identitySecret := sharedSecret.String()
		if cfg.Secrets.DeriveSecrets {
			identitySecret = fleet.DeriveSecret(sharedSecret.Bytes(), identity.Name)
		}
		runners[i] = fleet.NewRunner(fleet.RunnerConfig{
			Identity:    identity,
			Dialer:      dialer,
			Gate:        gate,
			Credentials: store,
			Secret:      identitySecret,
			Behaviors:   behaviors,
			Backoff: backoff.New(
				cfg.Backoff.Base.Std(),
				cfg.Backoff.Ceiling.Std(),
				cfg.Backoff.Growth,
				cfg.Backoff.Jitter,
				rand.New(rand.NewSource(time.Now().UnixNano()+int64(identity.Index))),
			),
			MaxReconnectAttempts: cfg.Session.MaxReconnectAttempts,
			MaxLoginRetries:      cfg.Session.MaxLoginRetries,
			LoginRetryDelay:      cfg.Session.LoginRetryDelay.Std(),
			ThrottleCooldownMin:  cfg.Session.ThrottleCooldownMin.Std(),
			ThrottleCooldownMax:  cfg.Session.ThrottleCooldownMax.Std(),
			Logger:               logger,
		})
	}

	supervisor := fleet.NewSupervisor(fleet.SupervisorConfig{
		Runners:        runners,
		Gate:           gate,
		StatusInterval: cfg.Fleet.StatusInterval.Std(),
		Logger:         logger,
	})

	logger.Info("stampede starting",
		"server", cfg.Server.Address,
		"fleet", cfg.Fleet.Count,
		"first", identities[0].Name,
		"version", version.Info())
	supervisor.Run(ctx)
	logger.Info("shutdown complete")
	return nil
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	if os.Getenv("STAMPEDE_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// buildLogger wires the console handler and, when configured, the
// durable transcript behind a fanout. The returned closer flushes the
// transcript.
func buildLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if cfg.Console.Verbose {
		level = slog.LevelDebug
	}
	consoleHandler := console.NewHandler(os.Stderr, &console.HandlerOptions{
		Level: level,
		Color: console.Colorable(os.Stderr),
	})

	if cfg.Console.TranscriptPath == "" {
		return slog.New(consoleHandler), func() {}, nil
	}

	transcript, err := console.OpenTranscript(cfg.Console.TranscriptPath, cfg.Console.TranscriptMaxBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("opening transcript: %w", err)
	}
	handler := console.Fanout(consoleHandler, console.NewTranscriptHandler(transcript, nil))
	return slog.New(handler), func() { transcript.Close() }, nil
}

func loadSharedSecret(cfg *config.Config) (*secret.Buffer, error) {
	if cfg.Secrets.SharedSecretFile != "" {
		buffer, err := secret.FromFile(cfg.Secrets.SharedSecretFile)
		if err != nil {
			return nil, fmt.Errorf("reading shared secret: %w", err)
		}
		return buffer, nil
	}
	return secret.NewFromBytes([]byte(cfg.Secrets.SharedSecret))
}

func buildBehaviors(cfg *config.Config, logger *slog.Logger) (behavior.Behaviors, error) {
	if cfg.Behavior.ScriptPath == "" {
		return behavior.Noop(), nil
	}
	script, err := behavior.LoadScript(cfg.Behavior.ScriptPath)
	if err != nil {
		return nil, fmt.Errorf("loading behavior script: %w", err)
	}
	logger.Info("behavior script loaded", "path", cfg.Behavior.ScriptPath)
	return behavior.NewScripted(script, nil, logger, nil), nil
}
