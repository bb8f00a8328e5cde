package audit

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogSink writes entries to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("audit")}
}

// Log writes entry at the level matching its severity.
func (l *LogSink) Log(_ context.Context, entry *Entry) error {
	level := zapcore.InfoLevel
	switch entry.Severity {
	case SeverityWarning:
		level = zapcore.WarnLevel
	case SeverityError:
		level = zapcore.ErrorLevel
	}
	l.logger.Log(level, entry.Action,
		zap.String("event", entry.Event),
		zap.String("entity_type", entry.EntityType),
		zap.String("execution_id", entry.EntityID),
		zap.String("org_id", entry.OrganizationID),
		zap.String("actor_id", entry.ActorID),
		zap.Any("metadata", entry.Metadata),
		zap.Time("created_at", entry.CreatedAt))
	return nil
}
