// Command quotes-processor consumes quote requests and publishes one priced
// quote per request.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/drblury/quoteflow"
	configpkg "github.com/drblury/quoteflow/internal/runtime/config"
)

const handlerName = "quotes-processor"

func main() {
	configPath := flag.String("config", os.Getenv("QUOTEFLOW_CONFIG"), "optional YAML config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintln(flag.CommandLine.Output(), configpkg.Usage())
	}
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := quoteflow.LoadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := quoteflow.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := quoteflow.NewSlogServiceLogger(quoteflow.NewJSONLogger(os.Stdout, level))

	codec, err := quoteflow.CodecByName(cfg.QuoteEncoding)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, err := quoteflow.TryNewService(ctx, cfg, logger, quoteflow.ServiceDependencies{
		Hooks: quoteflow.LoggingHooks(logger),
	})
	if err != nil {
		return err
	}

	processor := quoteflow.NewProcessor(quoteflow.ProcessorOptions{
		Delay:      cfg.ProcessingDelay,
		PriceBound: cfg.PriceBound,
		Seed:       cfg.PriceSeed,
	})

	err = quoteflow.RegisterProcessingStage(svc, quoteflow.StageRegistration{
		Name:         handlerName,
		ConsumeQueue: cfg.RequestsTopic,
		PublishQueue: cfg.QuotesTopic,
		Transformer:  processor,
		Codec:        codec,
	})
	if err != nil {
		return err
	}

	logger.Info("Starting quote processor", quoteflow.LogFields{
		"config":      cfg.String(),
		"workers":     svc.Pool().Size(),
		"delay":       processor.Delay().String(),
		"price_bound": processor.PriceBound(),
		"encoding":    codec.Name(),
	})

	if err := svc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Router stopped", err, quoteflow.LogFields{"handler": handlerName})
		return err
	}
	logger.Info("Quote processor stopped", nil)
	return nil
}
