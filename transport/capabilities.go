package transport

// Capabilities describes the delivery guarantees of a transport backend. The
// quote processor logs them at startup so operators can see which ordering
// promise the chosen broker makes.
type Capabilities struct {
	Name string

	// SupportsOrdering indicates messages within a partition or queue are
	// delivered in publish order.
	SupportsOrdering bool

	// SupportsPartitioning indicates the transport routes by a partition key.
	SupportsPartitioning bool

	// SupportsAck indicates explicit acknowledgement.
	SupportsAck bool

	// SupportsNack indicates negative acknowledgement triggers redelivery.
	SupportsNack bool

	// SupportsNativeDLQ indicates the broker has its own dead letter routing.
	// Transports without it rely on the poison queue middleware.
	SupportsNativeDLQ bool

	// SupportsTracing indicates metadata travels as native headers.
	SupportsTracing bool

	// Persistent indicates messages survive a process restart.
	Persistent bool

	// MaxMessageSize in bytes, 0 when unlimited or unknown.
	MaxMessageSize int64
}

// SupportsReliableDelivery reports at-least-once semantics (ack and nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// RequiresDLQEmulation reports whether poison messages must be routed by the
// application.
func (c Capabilities) RequiresDLQEmulation() bool {
	return !c.SupportsNativeDLQ
}

// OrderingGuarantee is a short human readable summary of the ordering promise.
func (c Capabilities) OrderingGuarantee() string {
	switch {
	case c.SupportsOrdering && c.SupportsPartitioning:
		return "per-partition"
	case c.SupportsOrdering:
		return "per-queue"
	default:
		return "none"
	}
}

// Predefined capability sets.
var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	KafkaCapabilities = Capabilities{
		Name:                 "kafka",
		SupportsOrdering:     true,
		SupportsPartitioning: true,
		SupportsAck:          true,
		SupportsNack:         true,
		SupportsTracing:      true,
		Persistent:           true,
		MaxMessageSize:       1048576,
	}

	RabbitMQCapabilities = Capabilities{
		Name:              "rabbitmq",
		SupportsOrdering:  true,
		SupportsAck:       true,
		SupportsNack:      true,
		SupportsNativeDLQ: true,
		SupportsTracing:   true,
		Persistent:        true,
	}

	NATSCapabilities = Capabilities{
		Name:            "nats",
		SupportsTracing: true,
		MaxMessageSize:  1048576,
	}

	NATSJetStreamCapabilities = Capabilities{
		Name:            "nats-jetstream",
		SupportsAck:     true,
		SupportsNack:    true,
		SupportsTracing: true,
		Persistent:      true,
		MaxMessageSize:  1048576,
	}

	AWSCapabilities = Capabilities{
		Name:              "aws",
		SupportsAck:       true,
		SupportsNack:      true,
		SupportsNativeDLQ: true,
		SupportsTracing:   true,
		Persistent:        true,
		MaxMessageSize:    262144,
	}

	HTTPCapabilities = Capabilities{
		Name:            "http",
		SupportsTracing: true,
	}
)
