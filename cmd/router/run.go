package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/dexrouter/internal/adapters/aggregator"
	"github.com/sawpanic/dexrouter/internal/adapters/clmm"
	"github.com/sawpanic/dexrouter/internal/adapters/cpamm"
	"github.com/sawpanic/dexrouter/internal/adapters/pmm"
	"github.com/sawpanic/dexrouter/internal/catalog"
	"github.com/sawpanic/dexrouter/internal/config"
	"github.com/sawpanic/dexrouter/internal/dispatch"
	"github.com/sawpanic/dexrouter/internal/executor"
	"github.com/sawpanic/dexrouter/internal/executor/auditsink"
	"github.com/sawpanic/dexrouter/internal/ingest"
	"github.com/sawpanic/dexrouter/internal/metrics"
	"github.com/sawpanic/dexrouter/internal/opsserver"
	"github.com/sawpanic/dexrouter/internal/registry"
	"github.com/sawpanic/dexrouter/internal/strategy"
	"github.com/sawpanic/dexrouter/internal/venue"
)

// runCmd wires the full pipeline — catalog, registry boot, ingest, strategy,
// executor, ops server — and runs every stage concurrently until ctx is
// canceled. Grounded on the teacher's cmd/cryptorun scan_main.go wiring
// shape: load config, build collaborators, launch, wait for shutdown.
func runCmd(ctx context.Context, configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the router pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(ctx, *configPath)
		},
	}
	return cmd
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadRouterConfig(configPath)
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

	feed := ingest.NewWSFeed(cfg.Feed.Endpoint, log.Logger)

	factories := registry.FactoryTable{
		venue.KindConstantProductA:       cpamm.New,
		venue.KindConcentratedLiquidityA: clmm.New,
		venue.KindPMMOracle:              pmm.NewOracleFactory,
		venue.KindPMMPriceCurve:          pmm.NewPriceCurveFactory,
		venue.KindPMMSimulated:           pmm.NewSimulatedFactory(pmm.NewMemSandbox),
	}

	boot, err := registry.Boot(ctx, log.Logger, descriptors, factories, feed)
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	aggClient := buildAggregatorRedis(cfg.AggCache, cfg.Aggregators)
	for _, ac := range cfg.Aggregators {
		adapter, err := buildAggregator(ac, aggClient)
		if err != nil {
			return fmt.Errorf("aggregator %s: %w", ac.Name, err)
		}
		boot.Registry.Add(adapter)
	}

	routerMetrics := metrics.NewRouterMetrics()

	var audit executor.AuditSink
	if cfg.AuditSink.Enabled {
		sink, err := auditsink.Open(auditsink.Config{DSN: cfg.AuditSink.DSN})
		if err != nil {
			return fmt.Errorf("audit_sink: %w", err)
		}
		defer sink.Close()
		audit = sink
	}

	dispatcher := dispatch.New(cfg.Executor.QueueDepth)
	ingestor := ingest.New(feed, boot.Registry, boot.Store, routerMetrics.Ingest, log.Logger)
	if cfg.Fanout.Enabled {
		fanoutClient := redis.NewClient(&redis.Options{Addr: cfg.Fanout.Addr})
		defer fanoutClient.Close()
		ingestor.WithFanout(ingest.NewRedisPublisher(fanoutClient), cfg.Fanout.Topic)
	}
	strat := strategy.New(boot.Registry, dispatcher, routerMetrics.Strategy, log.Logger)
	exec := executor.New(dispatcher, noopSettlement{}, noopSettlement{}, audit, routerMetrics.Executor, log.Logger)
	ops := opsserver.New(cfg.Server.ListenAddr, boot.Registry, routerMetrics.Registry, log.Logger)

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	stages := []func(context.Context) error{
		ingestor.Run,
		func(c context.Context) error { strat.Run(c); return nil },
		func(c context.Context) error { exec.Run(c); return nil },
		ops.Run,
	}
	wg.Add(len(stages))
	for _, stage := range stages {
		stage := stage
		go func() {
			defer wg.Done()
			if err := stage(ctx); err != nil {
				select {
				case errCh <- err:
				default:
				}
			}
		}()
	}

	log.Info().Int("venues", boot.Registry.Len()).Msg("router started")
	wg.Wait()
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// buildAggregatorRedis lazily builds a shared cache client only if some
// configured aggregator actually wants one.
func buildAggregatorRedis(cacheCfg config.AggCacheConfig, aggs []config.AggregatorConfig) *redis.Client {
	for _, a := range aggs {
		if a.CacheTTL() > 0 {
			return redis.NewClient(&redis.Options{Addr: cacheCfg.Addr})
		}
	}
	return nil
}

func buildAggregator(ac config.AggregatorConfig, cache *redis.Client) (*aggregator.Adapter, error) {
	key, err := venue.KeyFromHex(ac.KeyHex)
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	inputMint, err := venue.KeyFromHex(ac.InputMint)
	if err != nil {
		return nil, fmt.Errorf("input_mint: %w", err)
	}
	outputMint, err := venue.KeyFromHex(ac.OutputMint)
	if err != nil {
		return nil, fmt.Errorf("output_mint: %w", err)
	}
	return aggregator.New(aggregator.Config{
		Key:          key,
		QuoteURL:     ac.QuoteURL,
		SwapURL:      ac.SwapURL,
		InputMint:    inputMint,
		OutputMint:   outputMint,
		BurstLimit:   ac.BurstLimit,
		SustainedRPS: ac.SustainedRPS,
		CacheTTL:     ac.CacheTTL(),
		HTTPTimeout:  ac.HTTPTimeout(),
	}, cache), nil
}
