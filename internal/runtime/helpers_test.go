package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/quoteflow/internal/runtime/config"
	loggingpkg "github.com/drblury/quoteflow/internal/runtime/logging"
	transportpkg "github.com/drblury/quoteflow/transport"
)

const (
	testRequestsTopic = "quote-requests"
	testQuotesTopic   = "quotes"
	testPoisonTopic   = "quotes-poison"
)

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func newTestConfig() *configpkg.Config {
	cfg := configpkg.Default()
	cfg.PubSubSystem = "channel"
	cfg.WorkerPoolSize = 2
	cfg.RetryMaxRetries = 1
	cfg.RetryInitialInterval = 5 * time.Millisecond
	cfg.RetryMaxInterval = 10 * time.Millisecond
	cfg.ShutdownGracePeriod = time.Second
	cfg.PoisonQueue = testPoisonTopic
	return cfg
}

// channelFactory hands every service the same in-memory pub/sub so tests can
// publish and observe the topics the router works on.
func channelFactory(pubSub *gochannel.GoChannel) TransportFactory {
	return TransportFactoryFunc(func(context.Context, *configpkg.Config, watermill.LoggerAdapter) (transportpkg.Transport, error) {
		return transportpkg.Transport{Publisher: pubSub, Subscriber: pubSub}, nil
	})
}

func newTestService(t *testing.T, cfg *configpkg.Config, deps ServiceDependencies) (*Service, *gochannel.GoChannel) {
	t.Helper()
	if cfg == nil {
		cfg = newTestConfig()
	}

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	if deps.TransportFactory == nil {
		deps.TransportFactory = channelFactory(pubSub)
	}
	if deps.MetricsRegistry == nil {
		deps.MetricsRegistry = prometheus.NewRegistry()
	}

	svc, err := TryNewService(context.Background(), cfg, newTestLogger(), deps)
	if err != nil {
		t.Fatalf("TryNewService: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc, pubSub
}

// runService starts svc and waits until every handler has subscribed.
func runService(t *testing.T, svc *Service) context.CancelFunc {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	select {
	case <-svc.Running():
	case err := <-done:
		t.Fatalf("service stopped before running: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not start")
	}

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("service did not stop")
		}
	})
	return cancel
}

func receive(t *testing.T, messages <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-messages:
		msg.Ack()
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

type recordingPublisher struct {
	mu       sync.Mutex
	topics   []string
	messages []*message.Message
	err      error
}

func (p *recordingPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	for _, msg := range messages {
		p.topics = append(p.topics, topic)
		p.messages = append(p.messages, msg)
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type recordingServiceLogger struct {
	mu     sync.Mutex
	debugs []string
	infos  []string
	errors []string
}

func (r *recordingServiceLogger) With(loggingpkg.LogFields) loggingpkg.ServiceLogger { return r }

func (r *recordingServiceLogger) Debug(msg string, _ loggingpkg.LogFields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.debugs = append(r.debugs, msg)
}

func (r *recordingServiceLogger) Info(msg string, _ loggingpkg.LogFields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, msg)
}

func (r *recordingServiceLogger) Error(msg string, _ error, _ loggingpkg.LogFields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func (r *recordingServiceLogger) Trace(string, loggingpkg.LogFields) {}
