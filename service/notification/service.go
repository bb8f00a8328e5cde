package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/viant/remediator/internal/clock"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limits configures per channel guards.
type Limits struct {
	RatePerSecond   float64
	Burst           int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultLimits returns default guards.
func DefaultLimits() Limits {
	return Limits{RatePerSecond: 10, Burst: 20, BreakerFailures: 5, BreakerTimeout: 30 * time.Second}
}

type guarded struct {
	channel Channel
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func (g *guarded) send(ctx context.Context, message *Message) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limited: %w", err)
	}
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.channel.Send(ctx, message)
	})
	return err
}

// Service routes messages to registered channels.
type Service struct {
	mux      sync.RWMutex
	channels map[string]*guarded
	initial  []Channel
	limits   Limits
	logger   *zap.Logger
}

var _ Sender = (*Service)(nil)

// Option customises the service
type Option func(s *Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithLimits sets per channel guards.
func WithLimits(limits Limits) Option {
	return func(s *Service) { s.limits = limits }
}

// WithChannels registers channels.
func WithChannels(channels ...Channel) Option {
	return func(s *Service) { s.initial = append(s.initial, channels...) }
}

// New creates a notification service.
func New(options ...Option) *Service {
	ret := &Service{channels: map[string]*guarded{}, limits: DefaultLimits(), logger: zap.NewNop()}
	for _, option := range options {
		option(ret)
	}
	for _, channel := range ret.initial {
		ret.register(channel)
	}
	ret.initial = nil
	return ret
}

// Register adds or replaces a channel.
func (s *Service) Register(channel Channel) {
	s.register(channel)
}

func (s *Service) register(channel Channel) {
	limits := s.limits
	limit := rate.Inf
	if limits.RatePerSecond > 0 {
		limit = rate.Limit(limits.RatePerSecond)
	}
	burst := limits.Burst
	if burst <= 0 {
		burst = 1
	}
	failures := limits.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	g := &guarded{
		channel: channel,
		limiter: rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "notification-" + channel.Name(),
			MaxRequests: 1,
			Timeout:     limits.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
		}),
	}
	s.mux.Lock()
	s.channels[channel.Name()] = g
	s.mux.Unlock()
}

// Channels returns registered channel names.
func (s *Service) Channels() []string {
	s.mux.RLock()
	defer s.mux.RUnlock()
	ret := make([]string, 0, len(s.channels))
	for name := range s.channels {
		ret = append(ret, name)
	}
	return ret
}

// Send delivers template to every channel independently.
func (s *Service) Send(ctx context.Context, channels []string, template string, recipients []string, data map[string]interface{}) []*ChannelResult {
	ret := make([]*ChannelResult, 0, len(channels))
	for _, name := range channels {
		result := &ChannelResult{Channel: name}
		ret = append(ret, result)
		s.mux.RLock()
		g, ok := s.channels[name]
		s.mux.RUnlock()
		if !ok {
			result.Error = fmt.Sprintf("%v: %s", ErrChannelNotFound, name)
			continue
		}
		message := &Message{Channel: name, Template: template, Recipients: recipients, Data: data, CreatedAt: clock.Now()}
		if err := g.send(ctx, message); err != nil {
			result.Error = err.Error()
			s.logger.Warn("notification failed", zap.String("channel", name), zap.String("template", template), zap.Error(err))
			continue
		}
		result.Success = true
	}
	return ret
}
