package remediator

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Store kinds.
const (
	StoreMemory   = "memory"
	StoreFS       = "fs"
	StorePostgres = "postgres"
)

// EnvPrefix prefixes environment overrides, e.g. REMEDIATOR_PROCESSOR_WORKERCOUNT.
const EnvPrefix = "REMEDIATOR"

// Config is a serialisable representation of the engine configuration. It
// can be populated from YAML, JSON or environment variables; DefaultConfig
// supplies every value a section leaves out.
type Config struct {
	Processor    ProcessorConfig    `json:"processor" yaml:"processor" mapstructure:"processor"`
	Step         StepConfig         `json:"step" yaml:"step" mapstructure:"step"`
	Approval     ApprovalConfig     `json:"approval" yaml:"approval" mapstructure:"approval"`
	Store        StoreConfig        `json:"store" yaml:"store" mapstructure:"store"`
	Checkpoint   CheckpointConfig   `json:"checkpoint" yaml:"checkpoint" mapstructure:"checkpoint"`
	Playbook     StoreConfig        `json:"playbook" yaml:"playbook" mapstructure:"playbook"`
	Notification NotificationConfig `json:"notification" yaml:"notification" mapstructure:"notification"`
	Executor     ExecutorConfig     `json:"executor" yaml:"executor" mapstructure:"executor"`
	HTTP         HTTPConfig         `json:"http" yaml:"http" mapstructure:"http"`
	Tracing      TracingConfig      `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
	Log          LogConfig          `json:"log" yaml:"log" mapstructure:"log"`
}

type ProcessorConfig struct {
	WorkerCount int `json:"workerCount" yaml:"workerCount" mapstructure:"workerCount"`
	QueueBuffer int `json:"queueBuffer" yaml:"queueBuffer" mapstructure:"queueBuffer"`
}

type StepConfig struct {
	DefaultTimeout   time.Duration `json:"defaultTimeout" yaml:"defaultTimeout" mapstructure:"defaultTimeout"`
	RetryBackoffUnit time.Duration `json:"retryBackoffUnit" yaml:"retryBackoffUnit" mapstructure:"retryBackoffUnit"`
	// MaxParallel bounds concurrent parallel children; zero is unbounded
	MaxParallel int `json:"maxParallel" yaml:"maxParallel" mapstructure:"maxParallel"`
	// WorkflowTimeout applies to playbooks without a timeout
	WorkflowTimeout time.Duration `json:"workflowTimeout" yaml:"workflowTimeout" mapstructure:"workflowTimeout"`
}

type ApprovalConfig struct {
	DefaultQuorum         int           `json:"defaultQuorum" yaml:"defaultQuorum" mapstructure:"defaultQuorum"`
	DefaultTimeoutMinutes int           `json:"defaultTimeoutMinutes" yaml:"defaultTimeoutMinutes" mapstructure:"defaultTimeoutMinutes"`
	SweepInterval         time.Duration `json:"sweepInterval" yaml:"sweepInterval" mapstructure:"sweepInterval"`
}

// StoreConfig selects a storage backend.
type StoreConfig struct {
	Kind    string `json:"kind" yaml:"kind" mapstructure:"kind"`
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL" mapstructure:"baseURL"`
	DSN     string `json:"dsn,omitempty" yaml:"dsn" mapstructure:"dsn"`
}

type CheckpointConfig struct {
	BaseURL string `json:"baseURL" yaml:"baseURL" mapstructure:"baseURL"`
}

type NotificationConfig struct {
	DefaultChannels []string `json:"defaultChannels" yaml:"defaultChannels" mapstructure:"defaultChannels"`
	// Webhooks maps channel names to endpoint URLs
	Webhooks        map[string]string `json:"webhooks,omitempty" yaml:"webhooks" mapstructure:"webhooks"`
	WebhookTimeout  time.Duration     `json:"webhookTimeout" yaml:"webhookTimeout" mapstructure:"webhookTimeout"`
	RatePerSecond   float64           `json:"ratePerSecond" yaml:"ratePerSecond" mapstructure:"ratePerSecond"`
	Burst           int               `json:"burst" yaml:"burst" mapstructure:"burst"`
	BreakerFailures uint32            `json:"breakerFailures" yaml:"breakerFailures" mapstructure:"breakerFailures"`
	BreakerTimeout  time.Duration     `json:"breakerTimeout" yaml:"breakerTimeout" mapstructure:"breakerTimeout"`
}

// ExecutorConfig points at a remote action executor; empty URL runs the
// no-op executor.
type ExecutorConfig struct {
	URL     string        `json:"url,omitempty" yaml:"url" mapstructure:"url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"serviceName" yaml:"serviceName" mapstructure:"serviceName"`
	Version     string `json:"version" yaml:"version" mapstructure:"version"`
	OutputFile  string `json:"outputFile,omitempty" yaml:"outputFile" mapstructure:"outputFile"`
}

type LogConfig struct {
	Level       string `json:"level" yaml:"level" mapstructure:"level"`
	Development bool   `json:"development" yaml:"development" mapstructure:"development"`
}

// DefaultConfig returns a Config populated with engine defaults. Callers may
// modify the returned struct before passing it to New.
func DefaultConfig() *Config {
	return &Config{
		Processor: ProcessorConfig{WorkerCount: 5, QueueBuffer: 256},
		Step: StepConfig{
			DefaultTimeout:   300 * time.Second,
			RetryBackoffUnit: time.Second,
			WorkflowTimeout:  time.Hour,
		},
		Approval: ApprovalConfig{
			DefaultQuorum:         1,
			DefaultTimeoutMinutes: 60,
			SweepInterval:         10 * time.Second,
		},
		Store:      StoreConfig{Kind: StoreMemory},
		Checkpoint: CheckpointConfig{BaseURL: "mem://localhost/remediator/checkpoints"},
		Playbook:   StoreConfig{Kind: StoreMemory},
		Notification: NotificationConfig{
			DefaultChannels: []string{"log"},
			WebhookTimeout:  10 * time.Second,
			RatePerSecond:   10,
			Burst:           20,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Executor: ExecutorConfig{Timeout: 30 * time.Second},
		HTTP:     HTTPConfig{Addr: ":8080"},
		Tracing:  TracingConfig{ServiceName: "remediator", Version: "dev"},
		Log:      LogConfig{Level: "info"},
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Processor.WorkerCount <= 0 {
		errs = append(errs, fmt.Errorf("processor.workerCount must be > 0"))
	}
	if c.Step.DefaultTimeout <= 0 {
		errs = append(errs, fmt.Errorf("step.defaultTimeout must be > 0"))
	}
	if c.Step.MaxParallel < 0 {
		errs = append(errs, fmt.Errorf("step.maxParallel must be >= 0"))
	}
	if c.Approval.DefaultQuorum < 1 {
		errs = append(errs, fmt.Errorf("approval.defaultQuorum must be >= 1"))
	}
	if c.Approval.DefaultTimeoutMinutes <= 0 {
		errs = append(errs, fmt.Errorf("approval.defaultTimeoutMinutes must be > 0"))
	}
	if c.Approval.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("approval.sweepInterval must be > 0"))
	}
	errs = append(errs, c.Store.validate("store")...)
	errs = append(errs, c.Playbook.validate("playbook")...)
	if c.Checkpoint.BaseURL == "" {
		errs = append(errs, fmt.Errorf("checkpoint.baseURL is required"))
	}
	if c.Notification.RatePerSecond <= 0 {
		errs = append(errs, fmt.Errorf("notification.ratePerSecond must be > 0"))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

func (s *StoreConfig) validate(section string) []error {
	switch s.Kind {
	case StoreMemory:
	case StoreFS:
		if s.BaseURL == "" {
			return []error{fmt.Errorf("%s.baseURL is required for kind %s", section, s.Kind)}
		}
	case StorePostgres:
		if s.DSN == "" {
			return []error{fmt.Errorf("%s.dsn is required for kind %s", section, s.Kind)}
		}
	default:
		return []error{fmt.Errorf("%s.kind %q is not one of memory, fs, postgres", section, s.Kind)}
	}
	return nil
}

// Logger builds a zap logger from the log section.
func (l *LogConfig) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if l.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// LoadConfig reads configuration from an optional YAML file and REMEDIATOR_
// environment variables on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	defaults, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to read default config: %w", err)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	ret := &Config{}
	if err := v.Unmarshal(ret); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}
