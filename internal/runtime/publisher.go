package runtime

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/quoteflow/internal/quote"
	errspkg "github.com/drblury/quoteflow/internal/runtime/errors"
	idspkg "github.com/drblury/quoteflow/internal/runtime/ids"
	metadatapkg "github.com/drblury/quoteflow/internal/runtime/metadata"
)

// QuoteSchema is the event_message_schema of every outbound quote.
const QuoteSchema = "quote.Quote"

const contentTypeText = "text/plain"

// Producer publishes raw quote requests.
type Producer interface {
	PublishRequest(ctx context.Context, topic, request string, md metadatapkg.Metadata) error
}

// NewRequestMessage wraps request as a raw-text inbound message. A correlation
// ID is generated when md does not carry one.
func NewRequestMessage(request string, md metadatapkg.Metadata) *message.Message {
	msg := message.NewMessage(idspkg.NewMessageID(), []byte(request))
	metadatapkg.Apply(msg, md)
	if msg.Metadata.Get(metadatapkg.KeyCorrelationID) == "" {
		msg.Metadata.Set(metadatapkg.KeyCorrelationID, idspkg.NewMessageID())
	}
	msg.Metadata.Set(metadatapkg.KeyContentType, contentTypeText)
	msg.Metadata.Set(metadatapkg.KeyPartitionKey, request)
	return msg
}

// NewQuoteMessage encodes q as the reply to source. The correlation ID is
// carried over and the quote ID becomes the partition key.
func NewQuoteMessage(q quote.Quote, codec quote.Codec, source *message.Message) (*message.Message, error) {
	payload, err := codec.Encode(q)
	if err != nil {
		return nil, fmt.Errorf("quoteflow: encode %s: %w", q, err)
	}

	msg := message.NewMessage(idspkg.NewMessageID(), payload)
	msg.Metadata = metadatapkg.ToWatermill(metadatapkg.New(
		metadatapkg.KeyEventSchema, QuoteSchema,
		metadatapkg.KeyContentType, codec.ContentType(),
		metadatapkg.KeyPartitionKey, q.ID,
	))

	if source != nil {
		msg.Metadata.Set(metadatapkg.KeyRequestUUID, source.UUID)
		msg.Metadata.Set(metadatapkg.KeyCorrelationID, source.Metadata.Get(metadatapkg.KeyCorrelationID))
		msg.SetContext(source.Context())
	}
	if msg.Metadata.Get(metadatapkg.KeyCorrelationID) == "" {
		msg.Metadata.Set(metadatapkg.KeyCorrelationID, idspkg.NewMessageID())
	}
	return msg, nil
}

// PublishRequest publishes request to topic.
func PublishRequest(ctx context.Context, publisher message.Publisher, topic, request string, md metadatapkg.Metadata) error {
	if publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}

	msg := NewRequestMessage(request, md)
	if ctx != nil {
		msg.SetContext(ctx)
	}
	return publisher.Publish(topic, msg)
}

// PublishRequest publishes through the service publisher.
func (s *Service) PublishRequest(ctx context.Context, topic, request string, md metadatapkg.Metadata) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	return PublishRequest(ctx, s.publisher, topic, request, md)
}
