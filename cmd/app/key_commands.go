package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/envsafe/cmd/app/commands"
	"github.com/allisson/envsafe/internal/app"
	"github.com/allisson/envsafe/internal/config"
	cryptoService "github.com/allisson/envsafe/internal/crypto/service"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}
}

func kmsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "kms-provider",
			Value: "",
			Usage: "KMS provider (localsecrets, gcpkms, awskms, azurekeyvault, hashivault); omit for a plaintext development key",
		},
		&cli.StringFlag{
			Name:  "kms-key-uri",
			Value: "",
			Usage: "KMS key URI (e.g., base64key://, gcpkms://projects/.../cryptoKeys/...)",
		},
	}
}

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-master-key",
			Usage: "Generate a new master key for the master_key root custodian",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:    "id",
					Aliases: []string{"i"},
					Value:   "",
					Usage:   "Master key ID (e.g., prod-master-key-2025)",
				},
			}, kmsFlags()...),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunCreateMasterKey(
					ctx,
					cryptoService.NewKMSService(),
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("id"),
					cmd.String("kms-provider"),
					cmd.String("kms-key-uri"),
				)
			},
		},
		{
			Name:  "rotate-master-key",
			Usage: "Rotate the master key by generating a new key and combining it with the existing keys",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:    "id",
					Aliases: []string{"i"},
					Value:   "",
					Usage:   "New master key ID (e.g., prod-master-key-2026)",
				},
			}, kmsFlags()...),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunRotateMasterKey(
					ctx,
					cryptoService.NewKMSService(),
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("id"),
					cmd.String("kms-provider"),
					cmd.String("kms-key-uri"),
					os.Getenv("MASTER_KEYS"),
					os.Getenv("ACTIVE_MASTER_KEY_ID"),
				)
			},
		},
		{
			Name:  "provision-organization",
			Usage: "Create version 1 of an organization key",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "organization-id",
					Usage: "Organization ID (UUID); generated when omitted",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				kmsUseCase, err := container.KMSUseCase()
				if err != nil {
					return err
				}

				return commands.RunProvisionOrganization(
					ctx,
					kmsUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("organization-id"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "provision-project",
			Usage: "Create version 1 of a project key and its blind index salt",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "organization-id",
					Required: true,
					Usage:    "Organization ID (UUID)",
				},
				&cli.StringFlag{
					Name:  "project-id",
					Usage: "Project ID (UUID); generated when omitted",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				kmsUseCase, err := container.KMSUseCase()
				if err != nil {
					return err
				}

				return commands.RunProvisionProject(
					ctx,
					kmsUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("organization-id"),
					cmd.String("project-id"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "rotate-key",
			Usage: "Rotate an organization or project key",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "scope",
					Aliases:  []string{"s"},
					Required: true,
					Usage:    "Key scope: 'organization' or 'project'",
				},
				&cli.StringFlag{
					Name:     "id",
					Aliases:  []string{"i"},
					Required: true,
					Usage:    "Organization or project ID (UUID)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				kmsUseCase, err := container.KMSUseCase()
				if err != nil {
					return err
				}

				return commands.RunRotateKey(
					ctx,
					kmsUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("scope"),
					cmd.String("id"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "rewrap-secrets",
			Usage: "Re-seal a project's secrets under its active project key",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "project-id",
					Required: true,
					Usage:    "Project ID (UUID)",
				},
				&cli.StringFlag{
					Name:  "actor-kind",
					Value: "service_token",
					Usage: "Actor kind recorded on the new versions: user, identity or service_token",
				},
				&cli.StringFlag{
					Name:     "actor-id",
					Required: true,
					Usage:    "Actor ID (UUID) recorded on the new versions",
				},
				&cli.IntFlag{
					Name:    "batch-size",
					Aliases: []string{"n"},
					Value:   100,
					Usage:   "Number of secrets to visit per batch",
				},
				&cli.FloatFlag{
					Name:  "rate",
					Value: 0,
					Usage: "Maximum batches per second (0 disables throttling)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				secretUseCase, err := container.SecretUseCase()
				if err != nil {
					return err
				}

				return commands.RunRewrapSecrets(
					ctx,
					secretUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("project-id"),
					cmd.String("actor-kind"),
					cmd.String("actor-id"),
					int(cmd.Int("batch-size")),
					cmd.Float("rate"),
					cmd.String("format"),
				)
			},
		},
	}
}
