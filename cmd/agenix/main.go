package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/chuangzhu/agenix/internal/agenix"
	"github.com/urfave/cli/v3"
)

var Version string

func main() {
	cliflags := make(map[string]any)
	ctx := context.Background()

	var configFile string

	app := &cli.Command{
		Name:  "agenix",
		Usage: "Decrypt age secrets into place at activation time",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "Specifed TOML config file",
				Required:    false,
				Destination: &configFile,
				Aliases:     []string{"c"},
				Sources:     cli.EnvVars("AGENIX_CONFIG"),
				Action: func(ctx context.Context, cCtx *cli.Command, v string) error {
					if v == "" {
						return errors.New("config file passed without value")
					}
					if _, err := os.Stat(v); err != nil && os.IsNotExist(err) {
						return errors.New("config file not found")
					} else if err != nil {
						return err
					}
					return nil
				},
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				Sources: cli.EnvVars("AGENIX_DEBUG"),
				Action: func(ctx context.Context, cm *cli.Command, b bool) error {
					cliflags["debug"] = b
					return nil
				},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Dump active config",
				Action: func(ctx context.Context, cCtx *cli.Command) error {
					out, err := dumpConfig(ctx, configFile, cliflags)
					if err != nil {
						return err
					}
					fmt.Println(out)
					return nil
				},
			},
			{
				Name:  "apply",
				Usage: "Decrypt all secrets into a new generation and publish it",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "mountpoint",
						Aliases: []string{"m"},
						Usage:   "Staging mountpoint holding generations",
					},
					&cli.StringFlag{
						Name:  "secrets-dir",
						Usage: "Path of the symlink to the current generation",
					},
					&cli.StringSliceFlag{
						Name:    "identity",
						Aliases: []string{"i"},
						Usage:   "Identity file to decrypt with, may be repeated",
					},
					&cli.StringFlag{
						Name:  "publish",
						Usage: "When to publish the new generation: mount (default) makes root-owned secrets reachable before the users hook runs, complete publishes atomically once every secret is installed",
					},
					&cli.BoolFlag{
						Name:  "no-mount",
						Usage: "Do not mount an in-memory filesystem on the mountpoint",
					},
					&cli.BoolFlag{
						Name:    "quiet",
						Aliases: []string{"q"},
						Usage:   "Only log warnings and errors",
					},
				},
				Action: func(ctx context.Context, cCtx *cli.Command) error {
					if cCtx.IsSet("mountpoint") {
						cliflags["mountpoint"] = cCtx.String("mountpoint")
					}
					if cCtx.IsSet("secrets-dir") {
						cliflags["secrets_dir"] = cCtx.String("secrets-dir")
					}
					if cCtx.IsSet("identity") {
						cliflags["identities"] = cCtx.StringSlice("identity")
					}
					if cCtx.IsSet("publish") {
						cliflags["publish"] = cCtx.String("publish")
					}
					if cCtx.IsSet("no-mount") {
						cliflags["mount"] = !cCtx.Bool("no-mount")
					}
					if cCtx.IsSet("quiet") {
						cliflags["quiet"] = cCtx.Bool("quiet")
					}
					a, closer, err := setup(ctx, configFile, cliflags)
					if err != nil {
						return err
					}
					defer closer()
					rec, err := a.Apply(ctx)
					if err != nil {
						if rec != nil && rec.Failure != nil {
							return fmt.Errorf("apply failed in phase %v (secret %q): %w", rec.Failure.Phase, rec.Failure.Secret, err)
						}
						return err
					}
					return nil
				},
			},
			{
				Name:  "plan",
				Usage: "Show the phases and secret changes the next apply would make",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "quiet",
						Aliases: []string{"q"},
						Usage:   "Only report whether anything would change",
					},
				},
				Action: func(ctx context.Context, cCtx *cli.Command) error {
					a, closer, err := setup(ctx, configFile, cliflags)
					if err != nil {
						return err
					}
					defer closer()
					plan, err := a.Plan(ctx)
					if err != nil {
						return fmt.Errorf("error planning: %w", err)
					}
					if cCtx.Bool("quiet") {
						if plan.Changed() {
							fmt.Println("Secrets changed")
						} else {
							fmt.Println("No changes")
						}
						return nil
					}
					fmt.Print(plan)
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "Show the outcome of the last apply",
				Action: func(ctx context.Context, cCtx *cli.Command) error {
					c, err := loadConfig(ctx, configFile, cliflags)
					if err != nil {
						return err
					}
					if c.StateFile == "" {
						return cli.Exit("no state file configured", 1)
					}
					rec, err := agenix.LoadRecord(c.StateFile)
					if err != nil {
						return err
					}
					fmt.Print(rec)
					if !rec.Succeeded() {
						return cli.Exit("last apply failed", 1)
					}
					return nil
				},
			},
			{
				Name:  "version",
				Usage: "show version",
				Action: func(_ context.Context, _ *cli.Command) error {
					fmt.Printf("agenix version %v\n", Version)
					return nil
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
