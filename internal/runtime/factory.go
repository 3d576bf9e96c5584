package runtime

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"

	configpkg "github.com/drblury/quoteflow/internal/runtime/config"
	errspkg "github.com/drblury/quoteflow/internal/runtime/errors"
	transportpkg "github.com/drblury/quoteflow/transport"

	// Register the built-in transports.
	_ "github.com/drblury/quoteflow/transport/transports"
)

// TransportFactory builds the publisher/subscriber pair a Service runs on.
type TransportFactory interface {
	Build(ctx context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (transportpkg.Transport, error)
}

// TransportFactoryFunc adapts a function to TransportFactory.
type TransportFactoryFunc func(ctx context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (transportpkg.Transport, error)

func (f TransportFactoryFunc) Build(ctx context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (transportpkg.Transport, error) {
	return f(ctx, conf, logger)
}

// DefaultTransportFactory resolves PubSubSystem through the transport registry.
func DefaultTransportFactory() TransportFactory {
	return TransportFactoryFunc(func(ctx context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (transportpkg.Transport, error) {
		if conf == nil {
			return transportpkg.Transport{}, errspkg.ErrConfigRequired
		}
		return transportpkg.Build(ctx, conf, logger)
	})
}
