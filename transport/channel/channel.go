// Package channel provides the in-memory transport. It only connects handlers
// registered on the same service and is meant for tests and local runs.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/quoteflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// DefaultConfig is used by Build. Publish returns only after every
// subscriber acked the message, so each subscriber receives messages in
// publish order.
var DefaultConfig = gochannel.Config{
	OutputChannelBuffer:            64,
	BlockPublishUntilSubscriberAck: true,
}

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	Register()
}

// Register adds the transport to the default registry under "channel" and
// "gochannel".
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
	transport.Alias("gochannel", TransportName)
}

// Build creates a Go channel pub/sub shared by publisher and subscriber.
func Build(_ context.Context, _ transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pub, sub := Factory(DefaultConfig, logger)
	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
