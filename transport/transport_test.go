package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConfig struct {
	pubSubSystem string
}

func (s stubConfig) GetPubSubSystem() string       { return s.pubSubSystem }
func (s stubConfig) GetKafkaBrokers() []string     { return nil }
func (s stubConfig) GetKafkaClientID() string      { return "" }
func (s stubConfig) GetKafkaConsumerGroup() string { return "" }
func (s stubConfig) GetKafkaStartOffset() string   { return "" }
func (s stubConfig) GetRabbitMQURL() string        { return "" }
func (s stubConfig) GetNATSURL() string            { return "" }
func (s stubConfig) GetNATSMaxDeliver() int         { return 0 }
func (s stubConfig) GetNATSAckWait() time.Duration  { return 0 }
func (s stubConfig) GetHTTPServerAddress() string  { return "" }
func (s stubConfig) GetHTTPPublisherURL() string   { return "" }
func (s stubConfig) GetAWSRegion() string          { return "" }
func (s stubConfig) GetAWSAccountID() string       { return "" }
func (s stubConfig) GetAWSAccessKeyID() string     { return "" }
func (s stubConfig) GetAWSSecretAccessKey() string { return "" }
func (s stubConfig) GetAWSEndpoint() string        { return "" }

type closingPubSub struct {
	closed atomic.Int32
	err    error
}

func (c *closingPubSub) Publish(string, ...*message.Message) error { return nil }

func (c *closingPubSub) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (c *closingPubSub) Close() error {
	c.closed.Add(1)
	return c.err
}

func TestRegistryBuild(t *testing.T) {
	reg := NewRegistry()
	ps := &closingPubSub{}

	var gotLogger watermill.LoggerAdapter
	reg.RegisterWithCapabilities("memory", func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		gotLogger = logger
		return Transport{Publisher: ps, Subscriber: ps}, nil
	}, Capabilities{Name: "memory", SupportsOrdering: true})

	tr, err := reg.Build(context.Background(), stubConfig{pubSubSystem: "Memory"}, nil)
	require.NoError(t, err)
	assert.Same(t, ps, tr.Publisher)
	assert.NotNil(t, gotLogger)

	assert.True(t, reg.Has("memory"))
	assert.Equal(t, []string{"memory"}, reg.Names())
	assert.True(t, reg.GetCapabilities("memory").SupportsOrdering)
}

func TestRegistryUnknownTransport(t *testing.T) {
	reg := NewRegistry()
	reg.Register("b", nil)
	reg.Register("a", nil)

	_, err := reg.Build(context.Background(), stubConfig{pubSubSystem: "carrier-pigeon"}, watermill.NopLogger{})
	require.ErrorIs(t, err, ErrUnknownTransport)
	assert.Contains(t, err.Error(), "carrier-pigeon")
	assert.Contains(t, err.Error(), "[a b]")

	_, err = reg.Build(context.Background(), nil, watermill.NopLogger{})
	assert.Error(t, err)

	caps := reg.GetCapabilities("carrier-pigeon")
	assert.Equal(t, Capabilities{Name: "carrier-pigeon"}, caps)
}

func TestRegistryAlias(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterWithCapabilities("channel", func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, nil
	}, ChannelCapabilities)
	reg.Alias("gochannel", "channel")

	assert.True(t, reg.Has("gochannel"))
	assert.Equal(t, ChannelCapabilities, reg.GetCapabilities("gochannel"))
	_, err := reg.Build(context.Background(), stubConfig{pubSubSystem: "gochannel"}, nil)
	assert.NoError(t, err)
}

func TestRegistryBuilderError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("dial failed")
	reg.Register("kafka", func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, boom
	})

	_, err := reg.Build(context.Background(), stubConfig{pubSubSystem: "kafka"}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestTransportCloseSharedPubSubOnce(t *testing.T) {
	ps := &closingPubSub{}
	require.NoError(t, Transport{Publisher: ps, Subscriber: ps}.Close())
	assert.Equal(t, int32(1), ps.closed.Load())

	pub, sub := &closingPubSub{err: errors.New("pub")}, &closingPubSub{err: errors.New("sub")}
	err := Transport{Publisher: pub, Subscriber: sub}.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pub")
	assert.Contains(t, err.Error(), "sub")

	assert.NoError(t, Transport{}.Close())
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, "per-partition", KafkaCapabilities.OrderingGuarantee())
	assert.Equal(t, "per-queue", ChannelCapabilities.OrderingGuarantee())
	assert.Equal(t, "none", NATSCapabilities.OrderingGuarantee())

	assert.True(t, KafkaCapabilities.SupportsReliableDelivery())
	assert.False(t, HTTPCapabilities.SupportsReliableDelivery())

	assert.True(t, KafkaCapabilities.RequiresDLQEmulation())
	assert.False(t, RabbitMQCapabilities.RequiresDLQEmulation())
}
