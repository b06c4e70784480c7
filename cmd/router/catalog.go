package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/dexrouter/internal/catalog"
	"github.com/sawpanic/dexrouter/internal/config"
)

// catalogCmd validates the configured venue catalog without starting the
// router: it loads the config, builds the kind mapping, and parses every
// catalog entry without opening a feed connection or reaching the registry.
// A catalog configured by URL is still fetched over HTTP. Useful for CI and for
// an operator staging a new catalog file before a restart.
func catalogCmd(ctx context.Context, configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Load and validate the venue catalog without starting the router",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadRouterConfig(*configPath)
			if err != nil {
				return err
			}

			mapping, err := cfg.Catalog.BuildKindMapping()
			if err != nil {
				return fmt.Errorf("catalog: %w", err)
			}

			loader := catalog.NewLoader(mapping)
			loader.SetTimeout(cfg.Catalog.Timeout())

			source := cfg.Catalog.Path
			if source == "" {
				source = cfg.Catalog.URL
			}
			descriptors, err := loader.Load(ctx, source)
			if err != nil {
				return fmt.Errorf("catalog: %w", err)
			}

			counts := make(map[string]int)
			for _, d := range descriptors {
				counts[d.Kind.String()]++
			}
			log.Info().Int("descriptors", len(descriptors)).Msg("catalog loaded")
			for kind, n := range counts {
				log.Info().Str("kind", kind).Int("count", n).Msg("catalog entries by kind")
			}
			return nil
		},
	}
	return cmd
}
