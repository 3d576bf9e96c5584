/*
Package runtime hosts the quote pipeline on top of a Watermill router.

# Service (service.go)

The Service struct wires together:
  - Message router (Watermill) with graceful shutdown on SIGINT/SIGTERM
  - Publisher and subscriber built by the configured transport
  - A fixed worker pool that runs every transformer call
  - Middleware chain
  - HTTP servers for /metrics and the admin API

# Registration (registration.go)

  - RegisterProcessingStage: one raw request in, exactly one encoded quote out
  - RegisterQuoteConsumer: decodes quotes by content_type and hands them to a sink
  - RegisterMessageHandler: raw Watermill handlers

# Middleware (middleware.go, hooks.go)

Outermost first:
  - CorrelationID
  - LogMessages
  - Tracer
  - Metrics
  - Retry: exponential backoff, never for cancelled or malformed work
  - PoisonQueue: malformed payloads go to PoisonQueue, or are dropped when unset
  - Recoverer
  - JobHooks, when ServiceDependencies.Hooks is set

# Stats (models.go, resources.go, metrics.go)

Per-handler latency percentiles, throughput, error breakdown and resource
samples are served by GET /api/handlers. Pool occupancy and stage timings are
exported to Prometheus.

# Sub-packages

  - config/: configuration loading and validation
  - errors/: sentinel errors
  - ids/: ULID message IDs
  - jsoncodec/: JSON marshaling
  - logging/: ServiceLogger and Watermill adapter
  - metadata/: message header helpers
  - pool/: bounded worker pool

# Usage

	svc := runtime.NewService(ctx, cfg, logger, runtime.ServiceDependencies{})

	runtime.RegisterProcessingStage(svc, runtime.StageRegistration{
		Name:         "quotes-processor",
		ConsumeQueue: cfg.RequestsTopic,
		PublishQueue: cfg.QuotesTopic,
		Transformer:  processor.New(processor.Options{}),
	})

	svc.Start(ctx)
*/
package runtime
