package remediator

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/viant/afs"
	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/action"
	"github.com/viant/remediator/service/action/nop"
	"github.com/viant/remediator/service/action/remote"
	"github.com/viant/remediator/service/api"
	"github.com/viant/remediator/service/approval"
	"github.com/viant/remediator/service/audit"
	apostgres "github.com/viant/remediator/service/audit/postgres"
	"github.com/viant/remediator/service/compiler"
	"github.com/viant/remediator/service/dao"
	efs "github.com/viant/remediator/service/dao/execution/fs"
	ememory "github.com/viant/remediator/service/dao/execution/memory"
	epostgres "github.com/viant/remediator/service/dao/execution/postgres"
	"github.com/viant/remediator/service/dao/playbook"
	pfs "github.com/viant/remediator/service/dao/playbook/fs"
	pmemory "github.com/viant/remediator/service/dao/playbook/memory"
	ppostgres "github.com/viant/remediator/service/dao/playbook/postgres"
	"github.com/viant/remediator/service/event"
	"github.com/viant/remediator/service/executor"
	"github.com/viant/remediator/service/metrics"
	"github.com/viant/remediator/service/notification"
	"github.com/viant/remediator/service/orchestrator"
	"github.com/viant/remediator/service/processor"
	"github.com/viant/remediator/service/rollback"
	"github.com/viant/remediator/tracing"
	"go.uber.org/zap"
)

// Service wires the engine components from a Config.
type Service struct {
	config      *Config
	logger      *zap.Logger
	actions     action.Executor
	playbooks   playbook.Store
	records     dao.Service[string, execution.Execution]
	checkpoints dao.Service[string, execution.Execution]
	auditSink   audit.Sink
	channels    []notification.Channel
	registry    *prometheus.Registry
	pools       map[string]*pgxpool.Pool

	events   *event.Service
	notifier *notification.Service
	compiler *compiler.Service
	metrics  *metrics.Collector
	runtime  *Runtime
}

// New creates a service; config nil means DefaultConfig.
func New(ctx context.Context, config *Config, options ...Option) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	ret := &Service{config: config, logger: zap.NewNop(), pools: map[string]*pgxpool.Pool{}}
	for _, option := range options {
		option(ret)
	}
	if config.Tracing.Enabled {
		if err := tracing.Init(config.Tracing.ServiceName, config.Tracing.Version, config.Tracing.OutputFile); err != nil {
			return nil, fmt.Errorf("failed to init tracing: %w", err)
		}
	}
	if err := ret.ensureBaseSetup(ctx); err != nil {
		ret.closePools()
		return nil, err
	}
	if err := ret.init(); err != nil {
		ret.closePools()
		return nil, err
	}
	return ret, nil
}

func (s *Service) init() error {
	cfg := s.config
	s.events = event.New(event.WithLogger(s.logger.Named("event")))

	channels := []notification.Channel{notification.NewLogChannel("log", s.logger.Named("notification"))}
	for name, url := range cfg.Notification.Webhooks {
		channels = append(channels, notification.NewWebhookChannel(name, url, cfg.Notification.WebhookTimeout))
	}
	channels = append(channels, s.channels...)
	s.notifier = notification.New(
		notification.WithLogger(s.logger),
		notification.WithLimits(notification.Limits{
			RatePerSecond:   cfg.Notification.RatePerSecond,
			Burst:           cfg.Notification.Burst,
			BreakerFailures: cfg.Notification.BreakerFailures,
			BreakerTimeout:  cfg.Notification.BreakerTimeout,
		}),
		notification.WithChannels(channels...))

	gate := approval.New(
		approval.WithLogger(s.logger),
		approval.WithPublisher(s.events),
		approval.WithDefaults(cfg.Approval.DefaultQuorum, cfg.Approval.DefaultTimeoutMinutes))
	s.compiler = compiler.New(s.playbooks,
		compiler.WithLogger(s.logger),
		compiler.WithDefaults(compiler.Defaults{
			StepTimeout:            cfg.Step.DefaultTimeout,
			WorkflowTimeout:        cfg.Step.WorkflowTimeout,
			ApprovalQuorum:         cfg.Approval.DefaultQuorum,
			ApprovalTimeoutMinutes: cfg.Approval.DefaultTimeoutMinutes,
		}))
	stepExecutor := executor.New(s.actions,
		executor.WithLogger(s.logger),
		executor.WithGate(gate),
		executor.WithNotifier(s.notifier),
		executor.WithDefaultTimeout(cfg.Step.DefaultTimeout),
		executor.WithRetryBackoff(cfg.Step.RetryBackoffUnit),
		executor.WithMaxParallel(cfg.Step.MaxParallel))
	compensator := rollback.New(s.actions, rollback.WithLogger(s.logger), rollback.WithPublisher(s.events))
	workers := processor.New(
		processor.WithConfig(processor.Config{WorkerCount: cfg.Processor.WorkerCount, QueueBuffer: cfg.Processor.QueueBuffer}),
		processor.WithLogger(s.logger.Named("processor")))
	engine := orchestrator.New(s.compiler, stepExecutor, gate, compensator,
		orchestrator.WithLogger(s.logger),
		orchestrator.WithPublisher(s.events),
		orchestrator.WithScheduler(workers),
		orchestrator.WithCheckpoints(s.checkpoints),
		orchestrator.WithRecords(s.records))
	workers.Bind(engine)

	s.metrics = metrics.New(engine.Active)
	if err := s.metrics.Register(s.registry); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	s.events.Subscribe("audit", audit.Subscriber(s.auditSink))
	s.events.Subscribe("notification", notification.Subscriber(s.notifier, cfg.Notification.DefaultChannels))
	s.events.Subscribe("metrics", s.metrics.Subscriber())

	s.runtime = &Runtime{
		orchestrator:  engine,
		processor:     workers,
		events:        s.events,
		sweepInterval: cfg.Approval.SweepInterval,
		logger:        s.logger,
		closeFn:       s.closePools,
		tracing:       cfg.Tracing.Enabled,
	}
	return nil
}

func (s *Service) ensureBaseSetup(ctx context.Context) error {
	cfg := s.config
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	if s.actions == nil {
		if cfg.Executor.URL != "" {
			s.actions = remote.New(cfg.Executor.URL, cfg.Executor.Timeout)
		} else {
			s.actions = nop.New()
		}
	}
	var err error
	if s.records == nil {
		if s.records, err = s.executionStore(ctx, &cfg.Store); err != nil {
			return err
		}
	}
	if s.checkpoints == nil {
		if s.checkpoints, err = efs.New(ctx, cfg.Checkpoint.BaseURL, efs.WithLogger(s.logger)); err != nil {
			return fmt.Errorf("failed to create checkpoint store: %w", err)
		}
	}
	if s.playbooks == nil {
		if s.playbooks, err = s.playbookStore(ctx, &cfg.Playbook); err != nil {
			return err
		}
	}
	if s.auditSink == nil {
		s.auditSink = audit.NewLogSink(s.logger)
		if cfg.Store.Kind == StorePostgres {
			pool, err := s.pool(ctx, cfg.Store.DSN)
			if err != nil {
				return err
			}
			sink := apostgres.New(pool)
			if err := sink.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("failed to create audit schema: %w", err)
			}
			s.auditSink = sink
		}
	}
	return nil
}

func (s *Service) executionStore(ctx context.Context, cfg *StoreConfig) (dao.Service[string, execution.Execution], error) {
	switch cfg.Kind {
	case StoreFS:
		ret, err := efs.New(ctx, cfg.BaseURL, efs.WithLogger(s.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create execution store: %w", err)
		}
		return ret, nil
	case StorePostgres:
		pool, err := s.pool(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		ret := epostgres.New(pool)
		if err := ret.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to create execution schema: %w", err)
		}
		return ret, nil
	}
	return ememory.New(), nil
}

func (s *Service) playbookStore(ctx context.Context, cfg *StoreConfig) (playbook.Store, error) {
	switch cfg.Kind {
	case StoreFS:
		return pfs.New(cfg.BaseURL, afs.New()), nil
	case StorePostgres:
		pool, err := s.pool(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		ret := ppostgres.New(pool)
		if err := ret.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to create playbook schema: %w", err)
		}
		return ret, nil
	}
	return pmemory.New(), nil
}

// pool returns a connection pool shared by every store using dsn.
func (s *Service) pool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if ret, ok := s.pools[dsn]; ok {
		return ret, nil
	}
	ret, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := ret.Ping(ctx); err != nil {
		ret.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	s.pools[dsn] = ret
	return ret, nil
}

func (s *Service) closePools() {
	for dsn, pool := range s.pools {
		pool.Close()
		delete(s.pools, dsn)
	}
}

// Runtime returns the engine runtime
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// Compiler returns the playbook compiler
func (s *Service) Compiler() *compiler.Service {
	return s.compiler
}

// Playbooks returns the playbook store
func (s *Service) Playbooks() playbook.Store {
	return s.playbooks
}

// Notifier returns the notification service
func (s *Service) Notifier() *notification.Service {
	return s.notifier
}

// Registry returns the Prometheus registry engine metrics are registered on
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// Events returns the domain event dispatcher; hosts may subscribe handlers
func (s *Service) Events() *event.Service {
	return s.events
}

// API returns the HTTP API server, serving metrics on /metrics
func (s *Service) API() *api.Server {
	return api.NewServer(s.runtime.orchestrator,
		api.WithLogger(s.logger.Named("api")),
		api.WithServiceName(s.config.Tracing.ServiceName),
		api.WithMetrics(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
}
