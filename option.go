package remediator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/action"
	"github.com/viant/remediator/service/audit"
	"github.com/viant/remediator/service/dao"
	"github.com/viant/remediator/service/dao/playbook"
	"github.com/viant/remediator/service/notification"
	"github.com/viant/remediator/tracing"
	"go.uber.org/zap"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises the service
type Option func(s *Service)

// WithLogger sets the logger shared by every component
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithActionExecutor sets the executor performing remediation actions
func WithActionExecutor(executor action.Executor) Option {
	return func(s *Service) { s.actions = executor }
}

// WithPlaybookStore overrides the configured playbook store
func WithPlaybookStore(store playbook.Store) Option {
	return func(s *Service) { s.playbooks = store }
}

// WithExecutionStore overrides the configured terminal execution store
func WithExecutionStore(store dao.Service[string, execution.Execution]) Option {
	return func(s *Service) { s.records = store }
}

// WithCheckpointStore overrides the configured checkpoint store
func WithCheckpointStore(store dao.Service[string, execution.Execution]) Option {
	return func(s *Service) { s.checkpoints = store }
}

// WithAuditSink overrides the configured audit sink
func WithAuditSink(sink audit.Sink) Option {
	return func(s *Service) { s.auditSink = sink }
}

// WithChannels registers additional notification channels
func WithChannels(channels ...notification.Channel) Option {
	return func(s *Service) { s.channels = append(s.channels, channels...) }
}

// WithRegistry sets the Prometheus registry metrics are registered on and
// served from
func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *Service) { s.registry = registry }
}

// WithTracing installs the stdout span exporter; spans go to outputFile
// when set. Config.Tracing does the same from configuration.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		if err := tracing.Init(serviceName, serviceVersion, outputFile); err != nil {
			s.logger.Warn("failed to init tracing", zap.Error(err))
		}
	}
}

// WithTracingExporter installs a custom span exporter such as OTLP.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		if err := tracing.InitWithExporter(serviceName, serviceVersion, exporter); err != nil {
			s.logger.Warn("failed to init tracing", zap.Error(err))
		}
	}
}
