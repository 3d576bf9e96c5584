// Package errors holds the sentinel errors shared by the runtime packages.
package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrServiceRequired      = sterrors.New("quoteflow: service is required")
	ErrConfigRequired       = sterrors.New("quoteflow: configuration is required")
	ErrLoggerRequired       = sterrors.New("quoteflow: logger is required")
	ErrHandlerRequired      = sterrors.New("quoteflow: handler function is required")
	ErrHandlerNameRequired  = sterrors.New("quoteflow: handler name is required")
	ErrConsumeQueueRequired = sterrors.New("quoteflow: consume queue is required")
	ErrPublishQueueRequired = sterrors.New("quoteflow: publish queue is required")
	ErrTransformerRequired  = sterrors.New("quoteflow: quote transformer is required")
	ErrSinkRequired         = sterrors.New("quoteflow: quote sink is required")
	ErrPublisherRequired    = sterrors.New("quoteflow: publisher is required")
	ErrTopicRequired        = sterrors.New("quoteflow: topic is required")
)

// ConfigValidationError marks an error produced while validating configuration.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("quoteflow: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
