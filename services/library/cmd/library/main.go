package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"

	"musiclib/services/library/internal/config"
)

func main() {
	cmd := &cli.Command{
		Name:  "library",
		Usage: "Personal MP3 music library",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   config.ConfigPath,
				Sources: cli.EnvVars("LIBRARY_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			fsckCommand(),
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("library: %v", err)
	}
}
