// Package nats provides the NATS Core transport. Processors subscribe in a
// queue group so several instances share the request subject.
//
// Core NATS delivers at most once: a nacked message is dropped, not
// redelivered. Use the nats-jetstream transport when cancelled work must come
// back.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/quoteflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

const (
	// QueueGroupPrefix names the queue group shared by processor instances.
	QueueGroupPrefix = "quoteflow"
	connectionName   = "quoteflow"
	reconnectWait    = time.Second
	subscribeTimeout = 30 * time.Second
)

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register adds the transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a NATS Core publisher and queue-group subscriber.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	if url == "" {
		return transport.Transport{}, fmt.Errorf("nats: URL is required")
	}

	marshaler := &nats.NATSMarshaler{}
	options := ConnectionOptions(logger)
	coreOnly := nats.JetStreamConfig{Disabled: true}

	publisher, err := PublisherFactory(
		nats.PublisherConfig{
			URL:         url,
			NatsOptions: options,
			Marshaler:   marshaler,
			JetStream:   coreOnly,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		nats.SubscriberConfig{
			URL:              url,
			QueueGroupPrefix: QueueGroupPrefix,
			SubscribersCount: 1,
			SubscribeTimeout: subscribeTimeout,
			NatsOptions:      options,
			Unmarshaler:      marshaler,
			JetStream:        coreOnly,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}

// ConnectionOptions names the connection, reconnects forever and logs
// disconnects. The JetStream transport shares them.
func ConnectionOptions(logger watermill.LoggerAdapter) []nc.Option {
	return []nc.Option{
		nc.Name(connectionName),
		nc.RetryOnFailedConnect(true),
		nc.MaxReconnects(-1),
		nc.ReconnectWait(reconnectWait),
		nc.DisconnectErrHandler(func(_ *nc.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		nc.ReconnectHandler(func(conn *nc.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": conn.ConnectedUrlRedacted()})
		}),
	}
}
