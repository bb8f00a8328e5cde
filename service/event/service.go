// Package event implements the domain event dispatcher. The engine publishes
// typed events; audit, notification and metrics subscribers consume them
// from their own queues so a slow or failing subscriber never blocks the
// engine or another subscriber.
package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/viant/remediator/service/messaging"
	"github.com/viant/remediator/service/messaging/memory"
	"go.uber.org/zap"
)

// Publisher accepts domain events.
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
}

// Handler processes one event; returning an error triggers redelivery.
type Handler func(ctx context.Context, e *Event) error

// ErrClosed is returned by Publish after Shutdown started.
var ErrClosed = errors.New("event dispatcher closed")

type listener struct {
	name    string
	queue   *memory.Queue[Event]
	handler Handler
}

// Service fans events out to subscribers.
type Service struct {
	listeners   []*listener
	mux         sync.RWMutex
	closed      bool
	logger      *zap.Logger
	queueConfig memory.Config
	// ctx is passed to handlers; it is cancelled once draining ends
	ctx    context.Context
	cancel context.CancelFunc
	// consumeCtx stops listeners from waiting on empty queues
	consumeCtx  context.Context
	stopConsume context.CancelFunc
	wg          sync.WaitGroup
}

var _ Publisher = (*Service)(nil)

// New creates a dispatcher; call Close to stop subscriber goroutines.
func New(options ...Option) *Service {
	ret := &Service{logger: zap.NewNop(), queueConfig: memory.DefaultConfig()}
	for _, option := range options {
		option(ret)
	}
	ret.ctx, ret.cancel = context.WithCancel(context.Background())
	ret.consumeCtx, ret.stopConsume = context.WithCancel(ret.ctx)
	return ret
}

// Subscribe registers handler under name and starts its listener goroutine.
func (s *Service) Subscribe(name string, handler Handler) {
	l := &listener{name: name, queue: memory.NewQueue[Event](s.queueConfig), handler: handler}
	s.mux.Lock()
	s.listeners = append(s.listeners, l)
	s.mux.Unlock()
	s.wg.Add(1)
	go s.listen(l)
}

// Publish enqueues e for every subscriber.
func (s *Service) Publish(ctx context.Context, e *Event) error {
	if e == nil || e.Payload == nil {
		return fmt.Errorf("event payload is required")
	}
	s.mux.RLock()
	defer s.mux.RUnlock()
	if s.closed {
		return ErrClosed
	}
	var errs []error
	for _, l := range s.listeners {
		if err := l.queue.Publish(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("subscriber %s: %w", l.name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) listen(l *listener) {
	defer s.wg.Done()
	for {
		msg, err := l.queue.Consume(s.consumeCtx)
		if err != nil {
			break
		}
		s.handle(l, msg)
	}
	for l.queue.Size() > 0 && s.ctx.Err() == nil {
		msg, err := l.queue.Consume(s.ctx)
		if err != nil {
			return
		}
		s.handle(l, msg)
	}
}

func (s *Service) handle(l *listener, msg messaging.Message[Event]) {
	e := msg.T()
	if err := l.handler(s.ctx, e); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("subscriber", l.name),
			zap.String("event", string(e.Type())),
			zap.String("execution_id", e.Context.ExecutionID),
			zap.Int("attempt", msg.Attempt()),
			zap.Error(err))
		_ = msg.Nack(err)
		return
	}
	_ = msg.Ack()
}

// Shutdown rejects further publishes and lets every listener drain its
// queue. When ctx expires first, handlers are cancelled and the remaining
// events are dropped with a warning.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mux.Lock()
	s.closed = true
	s.mux.Unlock()
	s.stopConsume()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		s.mux.RLock()
		for _, l := range s.listeners {
			if pending := l.queue.Size(); pending > 0 {
				s.logger.Warn("events dropped on shutdown", zap.String("subscriber", l.name), zap.Int("pending", pending))
			}
		}
		s.mux.RUnlock()
		return ctx.Err()
	}
}

// Close drains every listener without a deadline.
func (s *Service) Close() {
	_ = s.Shutdown(context.Background())
}

// Recorder is a synchronous Publisher that keeps every event; it is used
// where ordering of observed events matters, typically in tests.
type Recorder struct {
	mux    sync.Mutex
	events []*Event
}

// Publish records e.
func (r *Recorder) Publish(_ context.Context, e *Event) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns recorded events, optionally filtered by type.
func (r *Recorder) Events(types ...Type) []*Event {
	r.mux.Lock()
	defer r.mux.Unlock()
	if len(types) == 0 {
		return append([]*Event(nil), r.events...)
	}
	var ret []*Event
	for _, e := range r.events {
		for _, t := range types {
			if e.Type() == t {
				ret = append(ret, e)
				break
			}
		}
	}
	return ret
}
