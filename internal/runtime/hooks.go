package runtime

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	loggingpkg "github.com/drblury/quoteflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/quoteflow/internal/runtime/metadata"
)

// JobContext describes one handler invocation to hooks.
type JobContext struct {
	HandlerName   string
	Topic         string
	MessageUUID   string
	CorrelationID string
	Context       context.Context
	StartedAt     time.Time
	// Duration is zero in OnJobStart.
	Duration time.Duration
}

// JobHooks are optional callbacks around every handler invocation.
type JobHooks struct {
	OnJobStart func(JobContext)
	OnJobDone  func(JobContext)
	OnJobError func(JobContext, error)
}

func (h JobHooks) empty() bool {
	return h.OnJobStart == nil && h.OnJobDone == nil && h.OnJobError == nil
}

// Merge returns hooks that call h first and then other.
func (h JobHooks) Merge(other JobHooks) JobHooks {
	return JobHooks{
		OnJobStart: chainJobHooks(h.OnJobStart, other.OnJobStart),
		OnJobDone:  chainJobHooks(h.OnJobDone, other.OnJobDone),
		OnJobError: chainErrorHooks(h.OnJobError, other.OnJobError),
	}
}

func chainJobHooks(a, b func(JobContext)) func(JobContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx JobContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(JobContext, error)) func(JobContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx JobContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// JobHooksMiddleware runs hooks around every handler.
func JobHooksMiddleware(hooks JobHooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "job_hooks",
		Builder: func(*Service) (message.HandlerMiddleware, error) {
			if hooks.empty() {
				return nil, nil
			}
			return jobHooksMiddleware(hooks), nil
		},
	}
}

func jobHooksMiddleware(hooks JobHooks) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			ctx := msg.Context()
			job := JobContext{
				HandlerName:   message.HandlerNameFromCtx(ctx),
				Topic:         message.SubscribeTopicFromCtx(ctx),
				MessageUUID:   msg.UUID,
				CorrelationID: msg.Metadata.Get(metadatapkg.KeyCorrelationID),
				Context:       ctx,
				StartedAt:     time.Now(),
			}

			if hooks.OnJobStart != nil {
				hooks.OnJobStart(job)
			}

			msgs, err := h(msg)
			job.Duration = time.Since(job.StartedAt)

			if err != nil {
				if hooks.OnJobError != nil {
					hooks.OnJobError(job, err)
				}
			} else if hooks.OnJobDone != nil {
				hooks.OnJobDone(job)
			}

			return msgs, err
		}
	}
}

// LoggingHooks logs completed and failed jobs. Starts are logged at debug.
func LoggingHooks(logger loggingpkg.ServiceLogger) JobHooks {
	fields := func(job JobContext) loggingpkg.LogFields {
		return loggingpkg.LogFields{
			"handler":        job.HandlerName,
			"topic":          job.Topic,
			"message_uuid":   job.MessageUUID,
			"correlation_id": job.CorrelationID,
			"duration_ms":    job.Duration.Milliseconds(),
		}
	}
	return JobHooks{
		OnJobStart: func(job JobContext) {
			logger.Debug("Job started", fields(job))
		},
		OnJobDone: func(job JobContext) {
			logger.Info("Job completed", fields(job))
		},
		OnJobError: func(job JobContext, err error) {
			logger.Error("Job failed", err, fields(job))
		},
	}
}
