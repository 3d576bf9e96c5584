package quoteflow

import (
	"github.com/drblury/quoteflow/internal/gateway"
	"github.com/drblury/quoteflow/internal/processor"
	"github.com/drblury/quoteflow/internal/quote"
	runtimepkg "github.com/drblury/quoteflow/internal/runtime"
	configpkg "github.com/drblury/quoteflow/internal/runtime/config"
	errspkg "github.com/drblury/quoteflow/internal/runtime/errors"
	idspkg "github.com/drblury/quoteflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/quoteflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/quoteflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/quoteflow/internal/runtime/metadata"
	transportpkg "github.com/drblury/quoteflow/transport"
)

type (
	Config               = configpkg.Config
	Service              = runtimepkg.Service
	ServiceDependencies  = runtimepkg.ServiceDependencies
	TransportFactory     = runtimepkg.TransportFactory
	TransportFactoryFunc = runtimepkg.TransportFactoryFunc

	Quote          = quote.Quote
	Codec          = quote.Codec
	JSONCodec      = quote.JSONCodec
	ProtoWireCodec = quote.ProtoWireCodec

	Processor        = processor.Processor
	ProcessorOptions = processor.Options

	Transformer                = runtimepkg.Transformer
	QuoteSink                  = runtimepkg.QuoteSink
	StageRegistration          = runtimepkg.StageRegistration
	ConsumerRegistration       = runtimepkg.ConsumerRegistration
	MessageHandlerRegistration = runtimepkg.MessageHandlerRegistration

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	RetryMiddlewareConfig  = runtimepkg.RetryMiddlewareConfig

	Producer = runtimepkg.Producer

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	UnprocessableEventError = runtimepkg.UnprocessableEventError

	HandlerInfo           = runtimepkg.HandlerInfo
	HandlerStats          = runtimepkg.HandlerStats
	StatsSnapshot         = runtimepkg.StatsSnapshot
	ConfigValidationError = errspkg.ConfigValidationError

	// Job lifecycle hooks
	JobContext = runtimepkg.JobContext
	JobHooks   = runtimepkg.JobHooks

	// Error classification
	ErrorClassifier = runtimepkg.ErrorClassifier
	ErrorCategory   = runtimepkg.ErrorCategory

	StageMetrics = runtimepkg.StageMetrics

	Gateway    = gateway.Gateway
	QuoteBoard = gateway.Board
	BoardEntry = gateway.Entry

	Transport             = transportpkg.Transport
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
)

var (
	NewService     = runtimepkg.NewService
	TryNewService  = runtimepkg.TryNewService
	LoadConfig     = configpkg.Load
	DefaultConfig  = configpkg.Default
	ValidateConfig = configpkg.ValidateConfig

	NewProcessor = processor.New
	NewQuote     = quote.New
	CodecByName  = quote.CodecByName

	RegisterProcessingStage = runtimepkg.RegisterProcessingStage
	RegisterQuoteConsumer   = runtimepkg.RegisterQuoteConsumer
	RegisterMessageHandler  = runtimepkg.RegisterMessageHandler

	PublishRequest    = runtimepkg.PublishRequest
	NewRequestMessage = runtimepkg.NewRequestMessage
	NewQuoteMessage   = runtimepkg.NewQuoteMessage

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RetryMiddleware         = runtimepkg.RetryMiddleware
	PoisonQueueMiddleware   = runtimepkg.PoisonQueueMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	// Job lifecycle hooks
	JobHooksMiddleware = runtimepkg.JobHooksMiddleware
	LoggingHooks       = runtimepkg.LoggingHooks

	IsCancelled     = runtimepkg.IsCancelled
	IsUnprocessable = runtimepkg.IsUnprocessable
	NewStageMetrics = runtimepkg.NewStageMetrics

	NewGateway    = gateway.New
	NewQuoteBoard = gateway.NewBoard

	// Modular transport registry. Transports register themselves on import,
	// e.g. _ "github.com/drblury/quoteflow/transport/kafka".
	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build
	GetCapabilities          = transportpkg.GetCapabilities

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrServiceRequired      = errspkg.ErrServiceRequired
	ErrHandlerRequired      = errspkg.ErrHandlerRequired
	ErrConsumeQueueRequired = errspkg.ErrConsumeQueueRequired
	ErrPublishQueueRequired = errspkg.ErrPublishQueueRequired
	ErrHandlerNameRequired  = errspkg.ErrHandlerNameRequired
	ErrTransformerRequired  = errspkg.ErrTransformerRequired
	ErrSinkRequired         = errspkg.ErrSinkRequired
	ErrPublisherRequired    = errspkg.ErrPublisherRequired
	ErrTopicRequired        = errspkg.ErrTopicRequired
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired
	ErrCancelledWork        = processor.ErrCancelledWork
	ErrMalformedPayload     = quote.ErrMalformedPayload

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewJSONLogger        = loggingpkg.NewJSONLogger
	ParseLogLevel        = loggingpkg.ParseLevel

	NewMetadata = metadatapkg.New

	NewMessageID = idspkg.NewMessageID
)

// Metadata keys - use these constants for standard metadata fields.
const (
	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
	MetadataKeyEventSchema   = metadatapkg.KeyEventSchema
	MetadataKeyContentType   = metadatapkg.KeyContentType
	MetadataKeyRequestUUID   = metadatapkg.KeyRequestUUID
	MetadataKeyPartitionKey  = metadatapkg.KeyPartitionKey

	QuoteSchema = runtimepkg.QuoteSchema
)

// Error category constants for ErrorClassifier.
const (
	ErrorCategoryNone      = runtimepkg.ErrorCategoryNone
	ErrorCategoryCancelled = runtimepkg.ErrorCategoryCancelled
	ErrorCategoryMalformed = runtimepkg.ErrorCategoryMalformed
	ErrorCategoryOther     = runtimepkg.ErrorCategoryOther
)
