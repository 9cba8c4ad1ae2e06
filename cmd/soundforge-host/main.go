// Package main provides the reference authoring host daemon. It keeps
// transient instances and audition sinks in memory and persists built
// assets through the configured asset store.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/soundforge/soundforge/pkg/cmd"
	"github.com/soundforge/soundforge/pkg/config"
	"github.com/soundforge/soundforge/pkg/host"
	"github.com/soundforge/soundforge/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "soundforge-host",
		EnableShellCompletion: true,
		Usage:                 "Run the authoring host daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the host YAML config file",
				Sources: cli.EnvVars("SOUNDFORGE_HOST_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "Listen address (host:port)",
				Sources: cli.EnvVars("SOUNDFORGE_LISTEN"),
			},
			&cli.StringFlag{
				Name:    "storage-url",
				Usage:   "Asset storage URL (directory, file://, postgres:// or memory://)",
				Sources: cli.EnvVars("STORAGE_URL"),
			},
			&cli.StringFlag{
				Name:    "dedup-url",
				Usage:   "Build token store URL (redis:// or empty for in-memory)",
				Sources: cli.EnvVars("DEDUP_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	cfg := config.HostConfig{}

	if path := command.String("config"); path != "" {
		loaded, err := config.LoadHostConfig(path)
		if err != nil {
			return err
		}

		cfg = loaded
	}

	// Flags override the config file.
	if v := command.String("listen"); v != "" {
		cfg.Listen = v
	}

	if v := command.String("storage-url"); v != "" {
		cfg.StorageURL = v
	}

	if v := command.String("dedup-url"); v != "" {
		cfg.DedupURL = v
	}

	if v := command.String("log-level"); v != "" {
		cfg.LogLevel = v
	}

	if cfg.Listen == "" {
		cfg.Listen = ":7711"
	}

	if cfg.StorageURL == "" {
		cfg.StorageURL = "./assets"
	}

	log.Setup(cfg.LogLevel)
	logger := log.WithModule("soundforge-host")

	logger.InfoContext(ctx, "Initializing SoundForge host", "listen", cfg.Listen, "storage", cfg.StorageURL)

	assets := cmd.NewAssetStore(ctx, logger, cfg.StorageURL)
	defer func() {
		if err := assets.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close asset store", "error", err)
		}
	}()

	tokens := cmd.NewDedupStore(ctx, cfg.DedupURL)
	defer func() {
		if err := tokens.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close token store", "error", err)
		}
	}()

	var hostOpts []host.Option
	if cfg.TokenTTL > 0 {
		hostOpts = append(hostOpts, host.WithTokenTTL(cfg.TokenTTL))
	}

	h := host.New(assets, tokens, logger, hostOpts...)

	server := host.NewServer(h, logger)
	if err := server.Listen(cfg.Listen); err != nil {
		return err
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- server.Serve(ctx)
	}()

	logger.InfoContext(ctx, "Host started successfully", "addr", server.Addr().String())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.InfoContext(ctx, "Shutting down host...")

		if err := server.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close server", "error", err)
		}

		return <-errCh
	case err := <-errCh:
		return err
	}
}
