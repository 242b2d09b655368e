package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/atelierlabs/concierge"
	"github.com/atelierlabs/concierge/internal/config"
	"github.com/atelierlabs/concierge/internal/logging"
	"github.com/atelierlabs/concierge/pkg/adapters/data"
	"github.com/atelierlabs/concierge/pkg/adapters/llm"
	memstore "github.com/atelierlabs/concierge/pkg/adapters/memory"
	redisstore "github.com/atelierlabs/concierge/pkg/adapters/redis"
	"github.com/atelierlabs/concierge/pkg/observability"
	"github.com/atelierlabs/concierge/pkg/ports"
	"github.com/atelierlabs/concierge/pkg/sandbox"
)

// app bundles the assembled service and the adapters the commands need
// direct access to.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  ports.StateStore
	loader *data.Loader
	sink   *observability.Sink
	svc    *concierge.Concierge
}

// buildApp assembles the full service from config, flags and environment.
func buildApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if addr, _ := cmd.Flags().GetString("redis"); addr != "" {
		cfg.Redis.Addr = addr
	}

	logger := logging.New(logging.ParseLevel(cfg.LogLevel))

	var (
		store    ports.StateStore
		memStore ports.MemoryStore
	)
	if cfg.Redis.Addr != "" {
		rs := redisstore.New(cfg.Redis.Addr,
			redisstore.WithPrefix(cfg.Redis.Prefix),
			redisstore.WithTTL(cfg.Redis.TTL))
		store, memStore = rs, rs
		logger.Info("using redis state store", "addr", cfg.Redis.Addr)
	} else {
		ms := memstore.NewStore()
		store, memStore = ms, ms
		logger.Warn("using in-process state store; sessions are not shared across workers")
	}

	loader := data.NewLoader(cfg.DataDir, logger)
	sink := observability.NewSink(logger)

	opts := []concierge.Option{
		concierge.WithLogger(logger),
		concierge.WithDataLoader(loader),
		concierge.WithMemoryStore(memStore),
		concierge.WithEventSink(sink),
		concierge.WithThresholds(cfg.Thresholds.Accept, cfg.Thresholds.Clarify),
		concierge.WithMemoryWindow(cfg.Memory.Window),
		concierge.WithSummaryCadence(cfg.Memory.SummaryEvery),
		concierge.WithModelTimeout(cfg.Model.Timeout),
		concierge.WithAnalyzer(sandbox.NewAnalyzer(sandbox.New(
			sandbox.WithInterpreter(cfg.Sandbox.Interpreter),
			sandbox.WithTimeout(cfg.Sandbox.Timeout),
			sandbox.WithLogger(logger),
		), logger)),
	}

	if cfg.Model.Enabled {
		model, err := newModel(cmd.Context(), cfg.Model.Name)
		if err != nil {
			logger.Warn("model unavailable; routing falls back to keyword matching", "error", err)
		} else {
			opts = append(opts, concierge.WithModel(model))
		}
	} else {
		logger.Info("model disabled by config; deterministic routing only")
	}

	svc, err := concierge.New(store, opts...)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		loader: loader,
		sink:   sink,
		svc:    svc,
	}, nil
}

func newModel(ctx context.Context, name string) (ports.ModelClient, error) {
	return llm.New(ctx, name)
}
