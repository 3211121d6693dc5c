package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/envsafe/cmd/app/commands"
	"github.com/allisson/envsafe/internal/app"
	"github.com/allisson/envsafe/internal/config"
)

func scopeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "project-id",
			Required: true,
			Usage:    "Project ID (UUID)",
		},
		&cli.StringFlag{
			Name:     "environment-id",
			Aliases:  []string{"e"},
			Required: true,
			Usage:    "Environment ID (UUID)",
		},
		&cli.StringFlag{
			Name:  "actor-kind",
			Value: "user",
			Usage: "Actor kind: user, identity or service_token",
		},
		&cli.StringFlag{
			Name:     "actor-id",
			Required: true,
			Usage:    "Actor ID (UUID)",
		},
		formatFlag(),
	}
}

func scopeArgs(cmd *cli.Command) commands.ScopeArgs {
	return commands.ScopeArgs{
		ProjectID:     cmd.String("project-id"),
		EnvironmentID: cmd.String("environment-id"),
		ActorKind:     cmd.String("actor-kind"),
		ActorID:       cmd.String("actor-id"),
	}
}

func getEnvironmentCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "init-environment",
			Usage: "Create the root folder of an environment",
			Flags: scopeFlags(),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				folderUseCase, err := container.FolderUseCase()
				if err != nil {
					return err
				}

				return commands.RunInitEnvironment(
					ctx,
					folderUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					scopeArgs(cmd),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "capture-snapshot",
			Usage: "Capture a snapshot of a folder subtree",
			Flags: append(scopeFlags(), &cli.StringFlag{
				Name:    "path",
				Aliases: []string{"p"},
				Value:   "/",
				Usage:   "Folder path of the subtree to capture",
			}),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				snapshotUseCase, err := container.SnapshotUseCase()
				if err != nil {
					return err
				}

				return commands.RunCaptureSnapshot(
					ctx,
					snapshotUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					scopeArgs(cmd),
					cmd.String("path"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "rollback-snapshot",
			Usage: "Restore the subtree captured by a snapshot",
			Flags: append(scopeFlags(), &cli.StringFlag{
				Name:     "snapshot-id",
				Required: true,
				Usage:    "Snapshot ID (UUID)",
			}),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				snapshotUseCase, err := container.SnapshotUseCase()
				if err != nil {
					return err
				}

				return commands.RunRollbackSnapshot(
					ctx,
					snapshotUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					scopeArgs(cmd),
					cmd.String("snapshot-id"),
					cmd.String("format"),
				)
			},
		},
	}
}
