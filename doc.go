// Package quoteflow prices quote requests on top of Watermill. A processing
// stage consumes raw request payloads from one topic, hands each to a bounded
// worker pool that simulates a slow pricing step, and publishes exactly one
// Quote per request to a second topic. The transport (Kafka, RabbitMQ, AWS
// SNS/SQS, NATS, HTTP, or Go Channels) is read from Config.
//
// Service hosts the router and the worker pool: RegisterProcessingStage wires
// a Transformer such as *Processor between two topics, RegisterQuoteConsumer
// decodes quotes for a sink, and Service.PublishRequest lets producers emit
// requests without touching Watermill APIs. A minimal processor therefore
// loads Config, creates a Service, registers a stage, and calls Start; see
// cmd/quotes-processor.
//
// # Transports
//
//   - kafka: partitioned, ordered per request ID (default)
//   - rabbitmq: AMQP durable queues
//   - aws: SNS fan-out to SQS, LocalStack friendly
//   - nats: core NATS subjects
//   - http: Watermill HTTP, topics are URL paths
//   - channel: in-memory Go channels for tests
//
// # Middleware
//
// The default chain adds correlation IDs, debug logging, OpenTelemetry
// tracing, Prometheus metrics, retry with exponential backoff, poison queue
// forwarding for malformed payloads, and panic recovery. Work cancelled by
// shutdown is never retried in place; the message is nacked and redelivered.
//
// # Job Hooks
//
// JobHooks provides OnJobStart, OnJobDone and OnJobError callbacks around
// every handler; LoggingHooks logs each completed quote.
package quoteflow
