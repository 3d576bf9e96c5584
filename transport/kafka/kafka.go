// Package kafka provides the Kafka transport. Quotes are keyed by their
// partition_key header so every quote for one request ID lands on the same
// partition and keeps its order.
package kafka

import (
	"context"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/quoteflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// PartitionKeyMetadata is the header read to pick a partition.
const PartitionKeyMetadata = "partition_key"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register adds the transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates a Kafka publisher and consumer-group subscriber.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	brokers := cfg.GetKafkaBrokers()
	if len(brokers) == 0 {
		return transport.Transport{}, fmt.Errorf("kafka: brokers are required")
	}

	initialOffset, err := parseStartOffset(cfg.GetKafkaStartOffset())
	if err != nil {
		return transport.Transport{}, err
	}

	marshaler := kafka.NewWithPartitioningMarshaler(partitionKey)

	publisher, err := PublisherFactory(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             marshaler,
			OverwriteSaramaConfig: publisherSaramaConfig(cfg.GetKafkaClientID()),
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           marshaler,
			ConsumerGroup:         cfg.GetKafkaConsumerGroup(),
			OverwriteSaramaConfig: subscriberSaramaConfig(cfg.GetKafkaClientID(), initialOffset),
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	logger.Info("Kafka transport ready", watermill.LogFields{
		"brokers":        brokers,
		"consumer_group": cfg.GetKafkaConsumerGroup(),
	})

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}

// partitionKey falls back to the message UUID so unkeyed messages spread
// across partitions.
func partitionKey(_ string, msg *message.Message) (string, error) {
	if key := msg.Metadata.Get(PartitionKeyMetadata); key != "" {
		return key, nil
	}
	return msg.UUID, nil
}

func publisherSaramaConfig(clientID string) *sarama.Config {
	cfg := kafka.DefaultSaramaSyncPublisherConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	return cfg
}

func subscriberSaramaConfig(clientID string, initialOffset int64) *sarama.Config {
	cfg := kafka.DefaultSaramaSubscriberConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Consumer.Offsets.Initial = initialOffset
	return cfg
}

func parseStartOffset(offset string) (int64, error) {
	switch strings.ToLower(strings.TrimSpace(offset)) {
	case "", "earliest", "oldest":
		return sarama.OffsetOldest, nil
	case "latest", "newest":
		return sarama.OffsetNewest, nil
	default:
		return 0, fmt.Errorf("kafka: unknown start offset %q", offset)
	}
}
