package orchestrator

import (
	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/dao"
	"github.com/viant/remediator/service/event"
	"go.uber.org/zap"
)

// Option customises the orchestrator
type Option func(s *Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithPublisher sets the domain event publisher.
func WithPublisher(publisher event.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// WithScheduler sets the scheduler; the default advances inline.
func WithScheduler(scheduler Scheduler) Option {
	return func(s *Service) { s.scheduler = scheduler }
}

// WithCheckpoints sets the store holding active executions.
func WithCheckpoints(checkpoints dao.Service[string, execution.Execution]) Option {
	return func(s *Service) { s.checkpoints = checkpoints }
}

// WithRecords sets the store receiving terminal executions.
func WithRecords(records dao.Service[string, execution.Execution]) Option {
	return func(s *Service) { s.records = records }
}
