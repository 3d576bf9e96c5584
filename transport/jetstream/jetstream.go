// Package jetstream provides the NATS JetStream transport. Every topic gets
// its own stream and a durable consumer with explicit acks, so a nacked or
// unacknowledged request is redelivered until MaxDeliver is reached.
package jetstream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/quoteflow/transport"
	natstransport "github.com/drblury/quoteflow/transport/nats"
)

// TransportName is the name used to register this transport.
const TransportName = "nats-jetstream"

const (
	// DefaultMaxDeliver is used when the config leaves max deliver at zero.
	DefaultMaxDeliver = 5

	// DefaultAckWait is used when the config leaves ack wait at zero.
	DefaultAckWait = 30 * time.Second

	// DurablePrefix starts every durable consumer name.
	DurablePrefix = "quoteflow"

	// NakDelay is how long a nacked message waits before redelivery.
	NakDelay = time.Second

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

// Register adds the transport to the default registry under
// "nats-jetstream" and "jetstream".
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSJetStreamCapabilities)
	transport.Alias("jetstream", TransportName)
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSJetStreamCapabilities
}

// Build creates a JetStream publisher and a durable queue subscriber.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	if url == "" {
		return transport.Transport{}, fmt.Errorf("nats-jetstream: URL is required")
	}

	maxDeliver := cfg.GetNATSMaxDeliver()
	if maxDeliver <= 0 {
		maxDeliver = DefaultMaxDeliver
	}
	ackWait := cfg.GetNATSAckWait()
	if ackWait <= 0 {
		ackWait = DefaultAckWait
	}

	marshaler := &nats.NATSMarshaler{}
	options := natstransport.ConnectionOptions(logger)

	publisher, err := PublisherFactory(
		nats.PublisherConfig{
			URL:         url,
			NatsOptions: options,
			Marshaler:   marshaler,
			JetStream:   publishConfig(),
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		nats.SubscriberConfig{
			URL:              url,
			QueueGroupPrefix: natstransport.QueueGroupPrefix,
			SubscribersCount: 1,
			SubscribeTimeout: subscribeTimeout,
			AckWaitTimeout:   ackWait,
			NakDelay:         nats.NewStaticDelay(NakDelay),
			NatsOptions:      options,
			Unmarshaler:      marshaler,
			JetStream:        subscribeConfig(maxDeliver, ackWait),
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

func publishConfig() nats.JetStreamConfig {
	return nats.JetStreamConfig{
		AutoProvision: true,
		TrackMsgId:    true,
	}
}

// subscribeConfig acks synchronously so an ack is confirmed by the server
// before the router moves on.
func subscribeConfig(maxDeliver int, ackWait time.Duration) nats.JetStreamConfig {
	return nats.JetStreamConfig{
		AutoProvision: true,
		AckAsync:      false,
		SubscribeOptions: []nc.SubOpt{
			nc.DeliverAll(),
			nc.AckExplicit(),
			nc.MaxDeliver(maxDeliver),
			nc.AckWait(ackWait),
		},
		DurablePrefix:     DurablePrefix,
		DurableCalculator: DurableName,
	}
}

var durableReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// DurableName derives one durable consumer per topic. JetStream rejects
// consumer names containing '.', '*', '>' or whitespace.
func DurableName(prefix, topic string) string {
	return prefix + "_" + durableReplacer.Replace(topic)
}
