package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"olinput/internal/config"
	"olinput/internal/dispatch"
	"olinput/internal/input"
	"olinput/internal/pipeline"
	"olinput/internal/router"
	"olinput/internal/sampler"
)

// ============================================================================
// Daemon wiring
// ============================================================================
//
//   hardware sources ──► sampler.Queue ──► pipeline worker ──► dispatch.Queue
//                                                                   │
//                      IPC (mode, stats) ──► ContextStore ──► consumer ──► action stream
//
// Every goroutine runs under one errgroup. Sources are supervised and never
// fail the group; the pipeline closes the event queue on its way out so the
// consumer routes everything that was flushed before it returns.
// ============================================================================

func runDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	stats := new(input.Stats)

	skip := cfg.ValidateSources()
	for _, src := range input.Sources() {
		if err, ok := skip[src]; ok {
			logger.Error("source not started", "source", src, "error", err)
		}
	}

	raw := sampler.NewQueue(cfg.Pipeline.RawQueueCapacity, stats)
	events := dispatch.NewQueue(cfg.Pipeline.QueueCapacity, stats)
	engine := pipeline.New(cfg.PipelineConfig(), events, stats, logger.With("component", "pipeline"))

	store := router.NewContextStore(cfg.Router.InitialMode)
	rt := router.New(cfg.RouterConfig(), logger.With("component", "router"), stats)

	var pub publisher = nopPublisher{}
	var stream *Stream
	if cfg.Stream.Enabled {
		stream = NewStream(logger.With("component", "stream"), stats, store, HubConfig{})
		pub = stream
	}

	sources := buildSources(cfg, skip, raw, stats, logger)
	if len(sources) == 0 {
		logger.Warn("no input sources configured")
	}

	// Sources and servers stop on ctx; the pipeline keeps running until
	// the sources are gone so nothing they pushed is lost.
	srcCtx, stopSources := context.WithCancel(ctx)
	defer stopSources()

	g, gctx := errgroup.WithContext(context.Background())

	srcGroup, srcGroupCtx := errgroup.WithContext(srcCtx)
	sv := newSupervisor(stats, logger)
	for _, s := range sources {
		srcGroup.Go(func() error { return sv.run(srcGroupCtx, s) })
	}

	pipeCtx, stopPipeline := context.WithCancel(gctx)
	defer stopPipeline()
	g.Go(func() error {
		// Wait for the samplers, then let the pipeline drain and close the
		// event queue.
		err := srcGroup.Wait()
		stopPipeline()
		return err
	})
	g.Go(func() error { return engine.Run(pipeCtx, raw.C()) })
	g.Go(func() error { return runConsumer(gctx, events, rt, store, engine, pub, logger.With("component", "consumer")) })

	ipc := &ipcHandler{stats: stats, store: store, pub: pub, log: logger.With("component", "ipc")}
	g.Go(func() error {
		err := runIPCServer(srcCtx, cfg.IPC.SocketPath, ipc, logger)
		if err != nil {
			stopSources()
		}
		return err
	})

	if stream != nil {
		mux := http.NewServeMux()
		stream.Register(mux, cfg.Stream.Path)
		g.Go(func() error {
			stream.Hub().Run(srcCtx)
			return nil
		})
		g.Go(func() error {
			stream.RunStats(srcCtx, time.Duration(cfg.Stream.StatsIntervalMS)*time.Millisecond)
			return nil
		})
		g.Go(func() error {
			err := runHTTPServer(srcCtx, cfg.Stream.Listen, mux, logger)
			if err != nil {
				stopSources()
			}
			return err
		})
	}

	logger.Info("olinputd running",
		"sources", len(sources),
		"ipc", cfg.IPC.SocketPath,
		"stream", cfg.Stream.Enabled,
		"mode", store.Get().Mode)

	err := g.Wait()
	logger.Info("olinputd stopped", "stats", stats.Snapshot())
	return err
}
