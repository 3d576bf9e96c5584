package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/quoteflow/internal/processor"
	"github.com/drblury/quoteflow/internal/quote"
	runtimepkg "github.com/drblury/quoteflow/internal/runtime"
	configpkg "github.com/drblury/quoteflow/internal/runtime/config"
	loggingpkg "github.com/drblury/quoteflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/quoteflow/internal/runtime/metadata"
	transportpkg "github.com/drblury/quoteflow/transport"
)

type published struct {
	topic   string
	request string
	md      metadatapkg.Metadata
}

type fakeProducer struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakeProducer) PublishRequest(_ context.Context, topic, request string, md metadatapkg.Metadata) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic: topic, request: request, md: md})
	return nil
}

func testLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestGateway(producer runtimepkg.Producer) *Gateway {
	g := New(producer, "quote-requests", NewBoard(10), testLogger())
	g.newID = func() string { return "11111111-2222-3333-4444-555555555555" }
	g.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return g
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(newTestGateway(&fakeProducer{}).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestRequestQuotePublishes(t *testing.T) {
	producer := &fakeProducer{}
	g := newTestGateway(producer)

	rec := httptest.NewRecorder()
	g.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/quotes/request", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", body["id"])

	require.Len(t, producer.sent, 1)
	assert.Equal(t, "quote-requests", producer.sent[0].topic)
	assert.Equal(t, body["id"], producer.sent[0].request)
	assert.Equal(t, body["id"], producer.sent[0].md.CorrelationID())
}

func TestRequestQuoteHonoursCorrelationHeader(t *testing.T) {
	producer := &fakeProducer{}
	g := newTestGateway(producer)

	req := httptest.NewRequest(http.MethodPost, "/quotes/request", nil)
	req.Header.Set(CorrelationHeader, "trace-7")
	rec := httptest.NewRecorder()
	g.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "trace-7", producer.sent[0].md.CorrelationID())
	assert.Contains(t, rec.Body.String(), `"correlation_id":"trace-7"`)
}

func TestRequestQuotePublishFailure(t *testing.T) {
	g := newTestGateway(&fakeProducer{err: errors.New("broker down")})

	rec := httptest.NewRecorder()
	g.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/quotes/request", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = httptest.NewRecorder()
	New(nil, "quote-requests", nil, testLogger()).Router().
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/quotes/request", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListAndGetQuotes(t *testing.T) {
	g := newTestGateway(&fakeProducer{})
	require.NoError(t, g.Record(context.Background(), quote.New("EUR/USD", 12), metadatapkg.New(metadatapkg.KeyCorrelationID, "c1")))
	require.NoError(t, g.Record(context.Background(), quote.New("GBP/USD", 34), nil))

	router := g.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quotes", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "GBP/USD", list[0].ID)
	assert.Equal(t, "EUR/USD", list[1].ID)
	assert.Equal(t, "c1", list[1].CorrelationID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quotes?limit=1", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quotes?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quotes/"+escapeID("EUR/USD"), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var entry Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, quote.New("EUR/USD", 12), entry.Quote())
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), entry.ReceivedAt)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quotes/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func escapeID(id string) string { return url.PathEscape(id) }

func TestGetQuoteDecodesIDOnce(t *testing.T) {
	g := newTestGateway(&fakeProducer{})
	for _, id := range []string{"a%41", "EUR/USD", "USD JPY", "x%2F/y"} {
		require.NoError(t, g.Record(context.Background(), quote.New(id, 7), nil))
	}
	router := g.Router()

	tests := []struct {
		path       string
		wantStatus int
		wantID     string
	}{
		{path: "/quotes/a%2541", wantStatus: http.StatusOK, wantID: "a%41"},
		{path: "/quotes/EUR%2FUSD", wantStatus: http.StatusOK, wantID: "EUR/USD"},
		{path: "/quotes/USD%20JPY", wantStatus: http.StatusOK, wantID: "USD JPY"},
		{path: "/quotes/x%252F%2Fy", wantStatus: http.StatusOK, wantID: "x%2F/y"},
		{path: "/quotes/a%41", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var entry Entry
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
			assert.Equal(t, tt.wantID, entry.ID)
		})
	}
}

// TestGatewayRoundTrip runs the processing stage and the gateway consumer on
// one in-memory pub/sub: a POST ends up as a priced quote on the board.
func TestGatewayRoundTrip(t *testing.T) {
	cfg := configpkg.Default()
	cfg.PubSubSystem = "channel"
	cfg.WorkerPoolSize = 2
	cfg.ProcessingDelay = time.Millisecond
	cfg.ShutdownGracePeriod = time.Second

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	svc, err := runtimepkg.TryNewService(context.Background(), cfg, testLogger(), runtimepkg.ServiceDependencies{
		TransportFactory: runtimepkg.TransportFactoryFunc(func(context.Context, *configpkg.Config, watermill.LoggerAdapter) (transportpkg.Transport, error) {
			return transportpkg.Transport{Publisher: pubSub, Subscriber: pubSub}, nil
		}),
		MetricsRegistry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	require.NoError(t, runtimepkg.RegisterProcessingStage(svc, runtimepkg.StageRegistration{
		Name:         "quotes-processor",
		ConsumeQueue: cfg.RequestsTopic,
		PublishQueue: cfg.QuotesTopic,
		Transformer:  processor.New(processor.Options{Delay: cfg.ProcessingDelay, Seed: 1}),
		Codec:        quote.ProtoWireCodec{},
	}))

	g := New(svc, cfg.RequestsTopic, NewBoard(cfg.QuoteBoardSize), testLogger())
	require.NoError(t, g.Register(svc, cfg.QuotesTopic, quote.JSONCodec{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-svc.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("service did not start")
	}

	srv := httptest.NewServer(g.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/quotes/request", "text/plain", nil)
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		_, ok := g.Board().Get(body["id"])
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	entry, _ := g.Board().Get(body["id"])
	assert.GreaterOrEqual(t, entry.Price, 0)
	assert.Less(t, entry.Price, cfg.PriceBound)
	assert.Equal(t, body["correlation_id"], entry.CorrelationID)
}
