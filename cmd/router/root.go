package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const appName = "dexrouter"

// Execute builds the root command tree and runs it. Grounded on the
// teacher's cmd/cryptorun root command shape (a cobra root with
// subcommands for each operating mode), trimmed to what this router's
// process actually does: run the live pipeline, or validate a catalog
// without opening a feed connection.
func Execute(ctx context.Context) error {
	var configPath string

	root := &cobra.Command{
		Use:   appName,
		Short: "dexrouter routes quote and swap requests across AMM venues and aggregators",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/router.yaml", "path to the router YAML config")

	root.AddCommand(runCmd(ctx, &configPath))
	root.AddCommand(catalogCmd(ctx, &configPath))

	if term.IsTerminal(int(os.Stdout.Fd())) {
		log.Debug().Msg("interactive terminal detected")
	}

	return root.ExecuteContext(ctx)
}
