// gatectl is the operator CLI for gatekeeper. It inspects a running server,
// reads daily moderation quotas straight from the configured store and runs
// one-shot availability checks against the authority service.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "gatectl",
		Usage:   "Inspect and operate a gatekeeper deployment",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config.yaml (default: ./config.yaml, ./config, $HOME/.gatekeeper)",
				EnvVars: []string{"GATEKEEPER_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "api-url",
				Usage:   "Base URL of the gatekeeper server",
				Value:   "http://localhost:8080",
				EnvVars: []string{"GATEKEEPER_API_URL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "Check the health of a running server",
				Action: health,
			},
			{
				Name:      "quota",
				Usage:     "Show a user's remaining block and report actions for today",
				ArgsUsage: "<user-id>",
				Action:    quota,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "kind",
						Usage: "Only show one action kind (block or report)",
					},
				},
			},
			{
				Name:  "check",
				Usage: "Check whether a username or phone number is available",
				Subcommands: []*cli.Command{
					{
						Name:      "username",
						Usage:     "Check a username",
						ArgsUsage: "<username>",
						Action:    checkField("username"),
						Flags:     []cli.Flag{tokenFlag()},
					},
					{
						Name:      "phone",
						Usage:     "Check a phone number in +<country><number> form",
						ArgsUsage: "<phone>",
						Action:    checkField("phone"),
						Flags:     []cli.Flag{tokenFlag()},
					},
				},
			},
			{
				Name:   "events",
				Usage:  "Tail verification and moderation events from Redis",
				Action: tailEvents,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "count",
						Usage: "Exit after this many events (0 tails until interrupted)",
					},
					&cli.StringSliceFlag{
						Name:  "type",
						Usage: "Only show events of this type (repeatable), e.g. user_blocked",
					},
				},
			},
			{
				Name:   "config",
				Usage:  "Print the effective configuration without secrets",
				Action: showConfig,
			},
		},
	}
}

func tokenFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "token",
		Usage:   "Bearer token forwarded to the authority service",
		EnvVars: []string{"GATEKEEPER_TOKEN"},
	}
}
