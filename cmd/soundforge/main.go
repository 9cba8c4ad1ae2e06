// Package main provides the soundforge CLI for validating and building
// declarative graph spec files.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/soundforge/soundforge/pkg/cmd"
	"github.com/soundforge/soundforge/pkg/gateway"
	"github.com/soundforge/soundforge/pkg/graphspec"
	"github.com/soundforge/soundforge/pkg/log"
	"github.com/soundforge/soundforge/pkg/materializer"
)

func main() {
	command := &cli.Command{
		Name:                  "soundforge",
		Usage:                 "Validate and build audio graph specs",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "catalog-path",
				Usage:   "Path to an additional node catalog JSON file",
				Sources: cli.EnvVars("SOUNDFORGE_CATALOG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Aliases:   []string{"v"},
				Usage:     "Validate a graph spec file against the node catalog",
				ArgsUsage: "<spec.json>",
				Action:    runValidate,
			},
			{
				Name:      "build",
				Aliases:   []string{"b"},
				Usage:     "Build a graph spec into a durable asset on the host",
				ArgsUsage: "<spec.json>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "host-addr",
						Usage:    "Address of the authoring host (host:port)",
						Required: true,
						Sources:  cli.EnvVars("SOUNDFORGE_HOST_ADDR"),
					},
					&cli.StringFlag{
						Name:     "author",
						Usage:    "Author tag recorded on the asset",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "asset-name",
						Usage: "Asset name (defaults to the spec name)",
					},
					&cli.StringFlag{
						Name:     "storage-path",
						Usage:    "Storage path for the asset (absolute, e.g. /patches)",
						Required: true,
					},
				},
				Action: runBuild,
			},
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadSpec(command *cli.Command) (*graphspec.Spec, error) {
	path := command.Args().First()
	if path == "" {
		return nil, errors.New("spec file argument is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}

	return graphspec.Parse(data)
}

func runValidate(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("soundforge")

	spec, err := loadSpec(command)
	if err != nil {
		return err
	}

	cat := cmd.NewCatalog(ctx, logger, command.String("catalog-path"))

	if err := spec.Validate(ctx, cat); err != nil {
		var verr *graphspec.ValidationError
		if errors.As(err, &verr) {
			for _, issue := range verr.Issues {
				fmt.Fprintf(os.Stderr, "%s: %s\n", issue.Path, issue.Message)
			}

			return fmt.Errorf("spec %q has %d issue(s)", spec.Name, len(verr.Issues))
		}

		return err
	}

	fmt.Printf("Spec %q is valid (%d nodes, %d connections)\n", spec.Name, len(spec.Nodes), len(spec.Connections))

	return nil
}

func runBuild(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("soundforge")

	spec, err := loadSpec(command)
	if err != nil {
		return err
	}

	cat := cmd.NewCatalog(ctx, logger, command.String("catalog-path"))

	session, err := spec.Build(ctx, cat, logger)
	if err != nil {
		return err
	}

	gw := gateway.NewTCPClient(command.String("host-addr"), logger)
	defer func() {
		if err := gw.Close(); err != nil {
			logger.Error("Failed to close gateway", "error", err)
		}
	}()

	mat := materializer.New(gw, cat, logger)

	assetName := command.String("asset-name")
	if assetName == "" {
		assetName = spec.Name
	}

	ref, err := mat.BuildToAsset(ctx, session, materializer.BuildRequest{
		AuthorTag:   command.String("author"),
		AssetName:   assetName,
		StoragePath: command.String("storage-path"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Built asset %s at %s\n", ref.ID, ref.Location())

	return nil
}
