package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/viant/remediator/service/messaging"
	"github.com/viant/remediator/service/messaging/memory"
	"github.com/viant/remediator/service/orchestrator"
	"go.uber.org/zap"
)

// Job asks a worker to advance an execution.
type Job struct {
	ExecutionID string `json:"executionId"`
}

// Config represents processor configuration
type Config struct {
	// WorkerCount is the number of workers advancing executions
	WorkerCount int `json:"workerCount" yaml:"workerCount"`

	// QueueBuffer is the capacity of the default in-memory job queue
	QueueBuffer int `json:"queueBuffer" yaml:"queueBuffer"`
}

// DefaultConfig returns the default processor configuration
func DefaultConfig() Config {
	return Config{
		WorkerCount: 5,
		QueueBuffer: 256,
	}
}

// Service schedules executions onto a worker pool. It implements
// orchestrator.Scheduler.
type Service struct {
	config   Config
	queue    messaging.Queue[Job]
	advancer orchestrator.Advancer
	logger   *zap.Logger

	mux      sync.Mutex
	workers  []*worker
	workerWg sync.WaitGroup
	started  bool
}

var _ orchestrator.Scheduler = (*Service)(nil)

type worker struct {
	id       int
	service  *Service
	ctx      context.Context
	cancelFn context.CancelFunc
}

// New creates a processor
func New(options ...Option) *Service {
	s := &Service{
		config: DefaultConfig(),
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.config.WorkerCount <= 0 {
		s.config.WorkerCount = DefaultConfig().WorkerCount
	}
	if s.queue == nil {
		cfg := memory.DefaultConfig()
		if s.config.QueueBuffer > 0 {
			cfg.QueueBuffer = s.config.QueueBuffer
		}
		s.queue = memory.NewQueue[Job](cfg)
	}
	return s
}

// Bind sets the advancer workers hand jobs to.
func (s *Service) Bind(advancer orchestrator.Advancer) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.advancer = advancer
}

// Schedule enqueues an execution for a worker.
func (s *Service) Schedule(ctx context.Context, executionID string) error {
	if executionID == "" {
		return fmt.Errorf("execution id is required")
	}
	return s.queue.Publish(ctx, &Job{ExecutionID: executionID})
}

// Start launches the worker goroutines
func (s *Service) Start(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.advancer == nil {
		return fmt.Errorf("advancer is required")
	}
	if s.started {
		return nil
	}
	s.started = true
	for i := 0; i < s.config.WorkerCount; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{
			id:       i,
			service:  s,
			ctx:      workerCtx,
			cancelFn: cancel,
		}
		s.workers = append(s.workers, w)
		s.workerWg.Add(1)
		go w.run()
	}
	s.logger.Info("processor started", zap.Int("workers", s.config.WorkerCount))
	return nil
}

func (w *worker) run() {
	defer w.service.workerWg.Done()
	for {
		msg, err := w.service.queue.Consume(w.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || w.ctx.Err() != nil {
				return
			}
			w.service.logger.Warn("failed to consume job", zap.Int("worker", w.id), zap.Error(err))
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if msg == nil {
			continue
		}
		if pErr := w.service.processMessage(w.ctx, msg); pErr != nil {
			w.service.logger.Warn("failed to process job", zap.Int("worker", w.id), zap.Error(pErr))
		}
	}
}

// processMessage advances one execution. Executions that are no longer
// active are acknowledged; any other failure is redelivered.
func (s *Service) processMessage(ctx context.Context, message messaging.Message[Job]) error {
	job := message.T()
	err := s.advancer.Advance(ctx, job.ExecutionID)
	switch {
	case err == nil:
		return message.Ack()
	case errors.Is(err, orchestrator.ErrExecutionNotFound):
		s.logger.Debug("job for inactive execution dropped", zap.String("execution_id", job.ExecutionID))
		return message.Ack()
	}
	if nErr := message.Nack(err); nErr != nil {
		return nErr
	}
	return fmt.Errorf("failed to advance execution %s (attempt %d): %w", job.ExecutionID, message.Attempt(), err)
}

// Shutdown stops workers and waits for the job in hand to finish.
func (s *Service) Shutdown() {
	s.mux.Lock()
	workers := s.workers
	s.workers = nil
	s.started = false
	s.mux.Unlock()
	for _, w := range workers {
		w.cancelFn()
	}
	s.workerWg.Wait()
	s.logger.Info("processor stopped")
}
