package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/quoteflow/internal/runtime/config"
	errspkg "github.com/drblury/quoteflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/quoteflow/internal/runtime/logging"
	"github.com/drblury/quoteflow/internal/runtime/pool"
	transportpkg "github.com/drblury/quoteflow/transport"
)

var routerRun = func(ctx context.Context, router *message.Router) error {
	return router.Run(ctx)
}

// ServiceDependencies holds the optional collaborators that the Service can use.
// Leave fields nil to get the defaults.
type ServiceDependencies struct {
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	TransportFactory          TransportFactory
	ErrorClassifier           ErrorClassifier
	Hooks                     JobHooks
	// MetricsRegistry replaces the Prometheus default registry.
	MetricsRegistry *prometheus.Registry
}

// Service wires a Watermill router, the transport, the worker pool and the
// middleware chain.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	wmLogger     watermill.LoggerAdapter
	transport    transportpkg.Transport
	publisher    message.Publisher
	subscriber   message.Subscriber
	router       *message.Router
	pool         *pool.Pool
	capabilities transportpkg.Capabilities

	registerer   prometheus.Registerer
	gatherer     prometheus.Gatherer
	stageMetrics *StageMetrics

	handlers   []*HandlerInfo
	handlersMu sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	errorClassifier ErrorClassifier
	resourceTracker *resourceTracker
}

// NewService is TryNewService that panics on error.
func NewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) *Service {
	s, err := TryNewService(ctx, conf, log, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// TryNewService validates conf, builds the transport and the router, and
// starts the worker pool. Register handlers on the returned Service before
// calling Start.
func TryNewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, err
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating event service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf.String(),
	})

	s := &Service{
		Conf:            conf,
		Logger:          log,
		wmLogger:        wmLogger,
		capabilities:    transportpkg.GetCapabilities(conf.PubSubSystem),
		errorClassifier: deps.ErrorClassifier,
		resourceTracker: newResourceTracker(),
		registerer:      prometheus.DefaultRegisterer,
		gatherer:        prometheus.DefaultGatherer,
	}
	if s.errorClassifier == nil {
		s.errorClassifier = defaultErrorClassifier
	}
	if deps.MetricsRegistry != nil {
		s.registerer = deps.MetricsRegistry
		s.gatherer = deps.MetricsRegistry
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = DefaultTransportFactory()
	}
	tr, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("quoteflow: build %s transport: %w", conf.PubSubSystem, err)
	}
	s.transport = tr
	s.publisher = tr.Publisher
	s.subscriber = tr.Subscriber

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: conf.ShutdownGracePeriod}, wmLogger)
	if err != nil {
		_ = tr.Close()
		return nil, err
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	s.stageMetrics = NewStageMetrics(s.registerer)
	s.pool = pool.New(conf.WorkerPoolSize, s.stageMetrics)
	s.stageMetrics.SetPoolCapacity(s.pool.Size())

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		s.pool.Close()
		_ = tr.Close()
		return nil, err
	}

	return s, nil
}

// Start runs the router until ctx is cancelled or the router is closed. HTTP
// servers, the worker pool and the transport are shut down before it returns.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.registerAdminAPI()
	servers := s.startHTTPServers()

	go s.startTransportServer(ctx)

	s.Logger.Info("Starting event service", loggingpkg.LogFields{
		"pubsub_system": s.Conf.PubSubSystem,
		"ordering":      s.capabilities.OrderingGuarantee(),
		"workers":       s.pool.Size(),
	})

	err := routerRun(ctx, s.router)

	s.shutdownHTTPServers(servers)
	s.pool.Close()
	if cerr := s.transport.Close(); cerr != nil {
		s.Logger.Error("Failed to close transport", cerr, nil)
	}

	s.Logger.Info("Event service stopped", nil)
	return err
}

// Close stops a service that was never started, or stops a running one from
// another goroutine. It is safe to call more than once.
func (s *Service) Close() error {
	err := s.router.Close()
	s.pool.Close()
	return errors.Join(err, s.transport.Close())
}

// Running is closed once every handler has subscribed.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

// Publisher exposes the transport publisher for producers such as the gateway.
func (s *Service) Publisher() message.Publisher { return s.publisher }

// Pool exposes the worker pool the processing stages dispatch into.
func (s *Service) Pool() *pool.Pool { return s.pool }

// Capabilities reports what the configured transport guarantees.
func (s *Service) Capabilities() transportpkg.Capabilities { return s.capabilities }

// Handlers returns the registered handlers with their live stats.
func (s *Service) Handlers() []*HandlerInfo {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	return append([]*HandlerInfo(nil), s.handlers...)
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares)+1)
	registrations = append(registrations, defaults...)
	registrations = append(registrations, JobHooksMiddleware(deps.Hooks))
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("quoteflow: register middleware %s: %w", name, err)
		}
	}
	return nil
}

// startTransportServer starts listeners of subscribers that receive messages
// over their own HTTP server once all handlers have subscribed.
func (s *Service) startTransportServer(ctx context.Context) {
	starter, ok := s.subscriber.(transportpkg.ServerStarter)
	if !ok {
		return
	}
	select {
	case <-s.router.Running():
	case <-ctx.Done():
		return
	}
	if err := starter.StartHTTPServer(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.Logger.Error("Transport HTTP server stopped", err, nil)
	}
}

// RegisterHTTPHandler mounts handler on the server listening on port. Servers
// start with Start, so handlers must be registered before that.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() []*http.Server {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	servers := make([]*http.Server, 0, len(s.httpServers))
	for port, mux := range s.httpServers {
		srv := &http.Server{
			Addr:              net.JoinHostPort("", strconv.Itoa(port)),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		servers = append(servers, srv)

		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("HTTP server failed", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
	}
	return servers
}

func (s *Service) shutdownHTTPServers(servers []*http.Server) {
	if len(servers) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.Conf.ShutdownGracePeriod)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			s.Logger.Error("Failed to shut down HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
		}
	}
}

func (s *Service) getErrorClassifier() ErrorClassifier {
	if s.errorClassifier == nil {
		return defaultErrorClassifier
	}
	return s.errorClassifier
}
