package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/fieldcrypt/cmd/app/commands"
	"github.com/allisson/fieldcrypt/internal/app"
	"github.com/allisson/fieldcrypt/internal/config"
	kmsService "github.com/allisson/fieldcrypt/internal/kms/service"
)

// keyAction runs fn with a key manager built from the environment.
func keyAction(
	fn func(ctx context.Context, cmd *cli.Command, km kmsService.KeyManager, logger *slog.Logger, w io.Writer) error,
) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		container := app.NewContainer(config.Load())
		defer func() { _ = container.Shutdown(ctx) }()

		keyManager, err := container.KeyManager()
		if err != nil {
			return fmt.Errorf("failed to initialize key manager: %w", err)
		}
		return fn(ctx, cmd, keyManager, container.Logger(), commands.DefaultIO().Writer)
	}
}

func keyIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "key-id",
		Aliases:  []string{"k"},
		Required: true,
		Usage:    "Master key id, ARN or alias (alias/<name>)",
	}
}

func tagFlag(required bool) cli.Flag {
	return &cli.StringSliceFlag{
		Name:     "tag",
		Aliases:  []string{"t"},
		Required: required,
		Usage:    "Tag as key=value (repeatable)",
	}
}

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-master-key",
			Usage: "Generate a local base64key:// master key URI for development",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunCreateMasterKey(commands.DefaultIO().Writer)
			},
		},
		{
			Name:  "create-key",
			Usage: "Create a master key with the configured KMS provider",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "description",
					Aliases: []string{"d"},
					Usage:   "Free form description",
				},
				&cli.StringFlag{
					Name:  "key-uri",
					Usage: "Keeper URI (base64key://, gcpkms://, azurekeyvault://, hashivault://, awskms://); keeper provider only",
				},
				tagFlag(false),
				formatFlag(),
			},
			Action: keyAction(func(ctx context.Context, cmd *cli.Command, km kmsService.KeyManager, logger *slog.Logger, w io.Writer) error {
				return commands.RunCreateKey(
					ctx, km, logger, w,
					cmd.String("description"),
					cmd.String("key-uri"),
					cmd.StringSlice("tag"),
					cmd.String("format"),
				)
			}),
		},
		{
			Name:  "describe-key",
			Usage: "Show master key metadata",
			Flags: []cli.Flag{keyIDFlag(), formatFlag()},
			Action: keyAction(func(ctx context.Context, cmd *cli.Command, km kmsService.KeyManager, _ *slog.Logger, w io.Writer) error {
				return commands.RunDescribeKey(ctx, km, w, cmd.String("key-id"), cmd.String("format"))
			}),
		},
		{
			Name:  "enable-rotation",
			Usage: "Enable automatic annual rotation of the master key material",
			Flags: []cli.Flag{keyIDFlag()},
			Action: keyAction(func(ctx context.Context, cmd *cli.Command, km kmsService.KeyManager, logger *slog.Logger, w io.Writer) error {
				return commands.RunEnableRotation(ctx, km, logger, w, cmd.String("key-id"))
			}),
		},
		{
			Name:  "rotation-status",
			Usage: "Show whether automatic rotation is enabled",
			Flags: []cli.Flag{keyIDFlag(), formatFlag()},
			Action: keyAction(func(ctx context.Context, cmd *cli.Command, km kmsService.KeyManager, _ *slog.Logger, w io.Writer) error {
				return commands.RunRotationStatus(ctx, km, w, cmd.String("key-id"), cmd.String("format"))
			}),
		},
		{
			Name:  "create-alias",
			Usage: "Point a new alias at a master key",
			Flags: []cli.Flag{
				keyIDFlag(),
				&cli.StringFlag{
					Name:     "name",
					Aliases:  []string{"n"},
					Required: true,
					Usage:    "Alias name (alias/<name>)",
				},
			},
			Action: keyAction(func(ctx context.Context, cmd *cli.Command, km kmsService.KeyManager, logger *slog.Logger, w io.Writer) error {
				return commands.RunCreateAlias(ctx, km, logger, w, cmd.String("key-id"), cmd.String("name"))
			}),
		},
		{
			Name:  "list-aliases",
			Usage: "List aliases and their target keys",
			Flags: []cli.Flag{formatFlag()},
			Action: keyAction(func(ctx context.Context, cmd *cli.Command, km kmsService.KeyManager, _ *slog.Logger, w io.Writer) error {
				return commands.RunListAliases(ctx, km, w, cmd.String("format"))
			}),
		},
		{
			Name:  "schedule-deletion",
			Usage: "Schedule deletion of a master key after a pending window",
			Flags: []cli.Flag{
				keyIDFlag(),
				&cli.IntFlag{
					Name:  "pending-days",
					Value: 30,
					Usage: "Days before deletion, between 7 and 30",
				},
			},
			Action: keyAction(func(ctx context.Context, cmd *cli.Command, km kmsService.KeyManager, logger *slog.Logger, w io.Writer) error {
				return commands.RunScheduleDeletion(ctx, km, logger, w, cmd.String("key-id"), int(cmd.Int("pending-days")))
			}),
		},
		{
			Name:  "cancel-deletion",
			Usage: "Cancel a scheduled deletion and re-enable the key",
			Flags: []cli.Flag{keyIDFlag()},
			Action: keyAction(func(ctx context.Context, cmd *cli.Command, km kmsService.KeyManager, logger *slog.Logger, w io.Writer) error {
				return commands.RunCancelDeletion(ctx, km, logger, w, cmd.String("key-id"))
			}),
		},
		{
			Name:  "set-policy",
			Usage: "Replace the key policy document",
			Flags: []cli.Flag{
				keyIDFlag(),
				&cli.StringFlag{
					Name:     "policy-file",
					Required: true,
					Usage:    "Path to the JSON policy document",
				},
			},
			Action: keyAction(func(ctx context.Context, cmd *cli.Command, km kmsService.KeyManager, logger *slog.Logger, w io.Writer) error {
				policy, err := os.ReadFile(cmd.String("policy-file"))
				if err != nil {
					return fmt.Errorf("failed to read policy file: %w", err)
				}
				return commands.RunSetPolicy(ctx, km, logger, w, cmd.String("key-id"), string(policy))
			}),
		},
		{
			Name:  "get-policy",
			Usage: "Print the key policy document",
			Flags: []cli.Flag{keyIDFlag()},
			Action: keyAction(func(ctx context.Context, cmd *cli.Command, km kmsService.KeyManager, _ *slog.Logger, w io.Writer) error {
				return commands.RunGetPolicy(ctx, km, w, cmd.String("key-id"))
			}),
		},
		{
			Name:  "tag-key",
			Usage: "Add or overwrite master key tags",
			Flags: []cli.Flag{keyIDFlag(), tagFlag(true)},
			Action: keyAction(func(ctx context.Context, cmd *cli.Command, km kmsService.KeyManager, logger *slog.Logger, w io.Writer) error {
				return commands.RunTagKey(ctx, km, logger, w, cmd.String("key-id"), cmd.StringSlice("tag"))
			}),
		},
		{
			Name:  "list-tags",
			Usage: "List master key tags",
			Flags: []cli.Flag{keyIDFlag(), formatFlag()},
			Action: keyAction(func(ctx context.Context, cmd *cli.Command, km kmsService.KeyManager, _ *slog.Logger, w io.Writer) error {
				return commands.RunListTags(ctx, km, w, cmd.String("key-id"), cmd.String("format"))
			}),
		},
	}
}
