package main

import (
	"github.com/nixpig/buildhook/internal/config"
	"github.com/spf13/cobra"
)

func rootCmd() *cobra.Command {
	var debug bool

	c := &cobra.Command{
		Use:     "buildhookd",
		Short:   "HTTP daemon for launching and observing build jobs",
		Example: "  BUILDHOOK_COMMAND=./build.sh buildhookd --debug",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if debug {
				cfg.Debug = true
			}

			return runServer(cfg)
		},
	}

	c.Flags().BoolVar(&debug, "debug", false, "Enable debug logs")

	return c
}
