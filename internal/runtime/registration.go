package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/quoteflow/internal/processor"
	"github.com/drblury/quoteflow/internal/quote"
	errspkg "github.com/drblury/quoteflow/internal/runtime/errors"
	metadatapkg "github.com/drblury/quoteflow/internal/runtime/metadata"
)

// Transformer prices one request. *processor.Processor implements it.
type Transformer interface {
	Process(ctx context.Context, request string) (quote.Quote, error)
}

// QuoteSink receives every quote decoded by a consumer handler.
type QuoteSink func(ctx context.Context, q quote.Quote, md metadatapkg.Metadata) error

// StageRegistration wires a processing stage: one message from ConsumeQueue
// becomes exactly one encoded quote on PublishQueue.
type StageRegistration struct {
	Name         string
	ConsumeQueue string
	PublishQueue string
	Transformer  Transformer
	// Codec encodes outgoing quotes. Nil selects JSON.
	Codec      quote.Codec
	Subscriber message.Subscriber
	Publisher  message.Publisher
}

// ConsumerRegistration wires a handler that decodes quotes and hands them to Sink.
type ConsumerRegistration struct {
	Name         string
	ConsumeQueue string
	// Codec decodes payloads without a content_type. Nil selects JSON.
	Codec      quote.Codec
	Sink       QuoteSink
	Subscriber message.Subscriber
}

// MessageHandlerRegistration wires a raw Watermill handler. An empty
// PublishQueue registers a handler that never publishes.
type MessageHandlerRegistration struct {
	Name         string
	ConsumeQueue string
	PublishQueue string
	Handler      message.HandlerFunc
	Subscriber   message.Subscriber
	Publisher    message.Publisher
}

// RegisterProcessingStage attaches a processing stage to the service router.
// Transformer calls run on the service worker pool.
func RegisterProcessingStage(svc *Service, cfg StageRegistration) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	if cfg.Transformer == nil {
		return errspkg.ErrTransformerRequired
	}
	if cfg.PublishQueue == "" {
		return errspkg.ErrPublishQueueRequired
	}
	codec := cfg.Codec
	if codec == nil {
		codec = quote.JSONCodec{}
	}

	return svc.registerHandler(MessageHandlerRegistration{
		Name:         cfg.Name,
		ConsumeQueue: cfg.ConsumeQueue,
		PublishQueue: cfg.PublishQueue,
		Subscriber:   cfg.Subscriber,
		Publisher:    cfg.Publisher,
		Handler:      svc.stageHandler(cfg.Name, cfg.Transformer, codec),
	})
}

// RegisterQuoteConsumer attaches a consumer of encoded quotes. Payloads that
// cannot be decoded are unprocessable and end up on the poison queue.
func RegisterQuoteConsumer(svc *Service, cfg ConsumerRegistration) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	if cfg.Sink == nil {
		return errspkg.ErrSinkRequired
	}

	return svc.registerHandler(MessageHandlerRegistration{
		Name:         cfg.Name,
		ConsumeQueue: cfg.ConsumeQueue,
		Subscriber:   cfg.Subscriber,
		Handler:      consumerHandler(cfg.Codec, cfg.Sink),
	})
}

// RegisterMessageHandler attaches the provided handler to the service router.
func RegisterMessageHandler(svc *Service, cfg MessageHandlerRegistration) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	return svc.registerHandler(cfg)
}

func (s *Service) stageHandler(name string, transformer Transformer, codec quote.Codec) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		var priced quote.Quote
		start := time.Now()
		err := s.pool.Do(msg.Context(), func(ctx context.Context) error {
			q, err := transformer.Process(ctx, string(msg.Payload))
			if err != nil {
				return err
			}
			priced = q
			return nil
		})
		s.stageMetrics.ObserveWork(name, time.Since(start), err)

		if err != nil {
			if IsCancelled(err) && !errors.Is(err, processor.ErrCancelledWork) {
				err = fmt.Errorf("%w: %w", processor.ErrCancelledWork, err)
			}
			return nil, err
		}

		out, err := NewQuoteMessage(priced, codec, msg)
		if err != nil {
			return nil, err
		}
		return []*message.Message{out}, nil
	}
}

func consumerHandler(fallback quote.Codec, sink QuoteSink) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		codec := quote.CodecForContentType(msg.Metadata.Get(metadatapkg.KeyContentType), fallback)
		q, err := codec.Decode(msg.Payload)
		if err != nil {
			return nil, newUnprocessable(msg.Payload, err)
		}
		return nil, sink(msg.Context(), q, metadatapkg.FromWatermill(msg.Metadata))
	}
}

func (s *Service) registerHandler(cfg MessageHandlerRegistration) error {
	if cfg.Handler == nil {
		return errspkg.ErrHandlerRequired
	}
	if cfg.Name == "" {
		return errspkg.ErrHandlerNameRequired
	}
	if cfg.ConsumeQueue == "" {
		return errspkg.ErrConsumeQueueRequired
	}
	if cfg.Subscriber == nil {
		cfg.Subscriber = s.subscriber
	}
	if cfg.Publisher == nil {
		cfg.Publisher = s.publisher
	}

	stats := newHandlerStats(s.resourceTracker)
	info := &HandlerInfo{
		Name:         cfg.Name,
		ConsumeQueue: cfg.ConsumeQueue,
		PublishQueue: cfg.PublishQueue,
		Stats:        stats,
	}

	s.handlersMu.Lock()
	s.handlers = append(s.handlers, info)
	s.handlersMu.Unlock()

	handler := wrapHandlerWithStats(cfg.Handler, stats, s.getErrorClassifier())

	if cfg.PublishQueue == "" {
		s.router.AddNoPublisherHandler(cfg.Name, cfg.ConsumeQueue, cfg.Subscriber, func(msg *message.Message) error {
			_, err := handler(msg)
			return err
		})
		return nil
	}

	s.router.AddHandler(
		cfg.Name,
		cfg.ConsumeQueue,
		cfg.Subscriber,
		cfg.PublishQueue,
		cfg.Publisher,
		handler,
	)
	return nil
}

func wrapHandlerWithStats(handler message.HandlerFunc, stats *HandlerStats, classifier ErrorClassifier) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		stats.onMessageStart()
		start := time.Now()
		msgs, err := handler(msg)
		stats.onMessageFinish(time.Since(start), err, classifier)
		return msgs, err
	}
}
