package executor

import (
	"time"

	"github.com/viant/remediator/service/notification"
	"go.uber.org/zap"
)

// Option customises the executor
type Option func(s *Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithGate sets the approval gate.
func WithGate(gate Gate) Option {
	return func(s *Service) { s.gate = gate }
}

// WithNotifier sets the notification sender used by notification steps.
func WithNotifier(notifier notification.Sender) Option {
	return func(s *Service) { s.notifier = notifier }
}

// WithDefaultTimeout sets the timeout for steps that declare none.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(s *Service) { s.defaultTimeout = timeout }
}

// WithRetryBackoff sets the backoff unit; retry n waits n units.
func WithRetryBackoff(unit time.Duration) Option {
	return func(s *Service) { s.backoffUnit = unit }
}

// WithMaxParallel caps concurrently running children of a parallel step.
func WithMaxParallel(limit int) Option {
	return func(s *Service) { s.maxParallel = limit }
}
