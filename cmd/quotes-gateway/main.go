// Command quotes-gateway accepts quote requests over HTTP, publishes them to
// the requests topic and serves the quotes that come back.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/drblury/quoteflow"
	configpkg "github.com/drblury/quoteflow/internal/runtime/config"
)

// serviceName keeps the gateway out of the processor's Kafka consumer group.
const serviceName = "quotes-gateway"

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

func loadConfig(path string) (*quoteflow.Config, error) {
	cfg, err := quoteflow.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	cfg.UseServiceName(serviceName)
	return cfg, nil
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
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

	svc, err := quoteflow.TryNewService(ctx, cfg, logger, quoteflow.ServiceDependencies{})
	if err != nil {
		return err
	}

	gw := quoteflow.NewGateway(svc, cfg.RequestsTopic, quoteflow.NewQuoteBoard(cfg.QuoteBoardSize), logger)
	if err := gw.Register(svc, cfg.QuotesTopic, codec); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.GatewayPort),
		Handler:           gw.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Gateway listening", quoteflow.LogFields{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			cancel()
		}
	}()

	runErr := svc.Start(ctx)

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Gateway shutdown failed", err, nil)
	}

	select {
	case err := <-serverErr:
		return err
	default:
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	logger.Info("Gateway stopped", nil)
	return nil
}
