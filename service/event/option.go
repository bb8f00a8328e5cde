package event

import (
	"github.com/viant/remediator/service/messaging/memory"
	"go.uber.org/zap"
)

// Option customises the dispatcher
type Option func(s *Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithQueueConfig sets the per subscriber memory queue configuration.
func WithQueueConfig(config memory.Config) Option {
	return func(s *Service) { s.queueConfig = config }
}
