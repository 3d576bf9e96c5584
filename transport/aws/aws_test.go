package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/quoteflow/internal/runtime/config"
	"github.com/drblury/quoteflow/transport"
)

func awsConfig() *config.Config {
	cfg := config.Default()
	cfg.PubSubSystem = TransportName
	cfg.AWSRegion = "eu-central-1"
	cfg.AWSAccountID = "123456789012"
	return cfg
}

func swapFactories(t *testing.T) {
	t.Helper()
	loader, resolver := DefaultConfigLoader, TopicResolverFactory
	pub, sub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		DefaultConfigLoader = loader
		TopicResolverFactory = resolver
		PublisherFactory = pub
		SubscriberFactory = sub
	})

	DefaultConfigLoader = func(ctx context.Context, opts ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: "us-east-1"}, nil
	}
	TopicResolverFactory = func(accountID, region string) (*sns.GenerateArnTopicResolver, error) {
		return &sns.GenerateArnTopicResolver{}, nil
	}
	PublisherFactory = func(sns.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
		return &mockPublisher{}, nil
	}
	SubscriberFactory = func(sns.SubscriberConfig, sqs.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
		return &mockSubscriber{}, nil
	}
}

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	t.Cleanup(func() { transport.DefaultRegistry = original })

	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, Capabilities(), caps)
	assert.True(t, caps.SupportsNativeDLQ)
}

func TestBuild(t *testing.T) {
	swapFactories(t)

	var gotAccount, gotRegion string
	TopicResolverFactory = func(accountID, region string) (*sns.GenerateArnTopicResolver, error) {
		gotAccount, gotRegion = accountID, region
		return &sns.GenerateArnTopicResolver{}, nil
	}
	var subCfg sns.SubscriberConfig
	SubscriberFactory = func(cfg sns.SubscriberConfig, _ sqs.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		subCfg = cfg
		return &mockSubscriber{}, nil
	}

	tr, err := Build(context.Background(), awsConfig(), watermill.NopLogger{})
	require.NoError(t, err)
	assert.NotNil(t, tr.Publisher)
	assert.NotNil(t, tr.Subscriber)

	assert.Equal(t, "123456789012", gotAccount)
	assert.Equal(t, "eu-central-1", gotRegion)
	assert.Equal(t, "eu-central-1", subCfg.AWSConfig.Region)
	assert.Empty(t, subCfg.OptFns)
}

func TestBuildWithLocalEndpoint(t *testing.T) {
	swapFactories(t)

	var gotAccount string
	TopicResolverFactory = func(accountID, region string) (*sns.GenerateArnTopicResolver, error) {
		gotAccount = accountID
		return &sns.GenerateArnTopicResolver{}, nil
	}
	var pubCfg sns.PublisherConfig
	PublisherFactory = func(cfg sns.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		pubCfg = cfg
		return &mockPublisher{}, nil
	}

	cfg := awsConfig()
	cfg.AWSAccountID = ""
	cfg.AWSEndpoint = "http://localhost:4566"

	_, err := Build(context.Background(), cfg, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, localstackAccountID, gotAccount)
	assert.Len(t, pubCfg.OptFns, 1)
}

func TestBuildErrors(t *testing.T) {
	t.Run("config loader fails", func(t *testing.T) {
		swapFactories(t)
		DefaultConfigLoader = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
			return aws.Config{}, errors.New("config error")
		}
		_, err := Build(context.Background(), awsConfig(), watermill.NopLogger{})
		assert.ErrorContains(t, err, "config error")
	})

	t.Run("bad endpoint", func(t *testing.T) {
		swapFactories(t)
		cfg := awsConfig()
		cfg.AWSEndpoint = "localhost"
		_, err := Build(context.Background(), cfg, watermill.NopLogger{})
		assert.ErrorContains(t, err, "absolute URL")
	})

	t.Run("publisher fails", func(t *testing.T) {
		swapFactories(t)
		PublisherFactory = func(sns.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}
		_, err := Build(context.Background(), awsConfig(), watermill.NopLogger{})
		assert.ErrorContains(t, err, "publisher error")
	})

	t.Run("subscriber fails and publisher is closed", func(t *testing.T) {
		swapFactories(t)
		pub := &mockPublisher{}
		PublisherFactory = func(sns.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return pub, nil
		}
		SubscriberFactory = func(sns.SubscriberConfig, sqs.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
			return nil, errors.New("subscriber error")
		}
		_, err := Build(context.Background(), awsConfig(), watermill.NopLogger{})
		assert.ErrorContains(t, err, "subscriber error")
		assert.True(t, pub.closed)
	})
}

func TestResolveAccountID(t *testing.T) {
	assert.Equal(t, "123456789012", resolveAccountID(`"123456789012"`, false))
	assert.Equal(t, "", resolveAccountID("", false))
	assert.Equal(t, localstackAccountID, resolveAccountID("", true))
	assert.Equal(t, localstackAccountID, resolveAccountID("123", true))
	assert.Equal(t, "123456789012", resolveAccountID("123456789012", true))
}

func TestStaticCredentials(t *testing.T) {
	creds, err := staticCredentials("key", "secret").Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "key", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
}

type mockPublisher struct{ closed bool }

func (m *mockPublisher) Publish(string, ...*message.Message) error { return nil }
func (m *mockPublisher) Close() error {
	m.closed = true
	return nil
}

type mockSubscriber struct{}

func (m *mockSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return make(chan *message.Message), nil
}
func (m *mockSubscriber) Close() error { return nil }
