package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/viant/afs"
	"github.com/viant/remediator"
	"github.com/viant/remediator/service/compiler"
	"github.com/viant/remediator/service/dao/playbook"
	"github.com/viant/remediator/service/dao/playbook/memory"
	"go.uber.org/zap"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "remediator",
	Short:        "Remediation workflow engine",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine and its HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <playbook.yaml>",
	Short: "Compile a playbook and print the resulting workflow definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return validate(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.AddCommand(serveCmd, validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	cfg, err := remediator.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := remediator.New(ctx, cfg, remediator.WithLogger(logger))
	if err != nil {
		return err
	}
	runtime := srv.Runtime()
	if err = runtime.Start(ctx); err != nil {
		return err
	}

	e := srv.API().Echo()
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := e.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if sErr := e.Shutdown(shutdownCtx); sErr != nil {
		logger.Warn("http shutdown failed", zap.Error(sErr))
	}
	if sErr := runtime.Shutdown(shutdownCtx); sErr != nil {
		logger.Warn("runtime shutdown failed", zap.Error(sErr))
	}
	return err
}

func validate(ctx context.Context, location string) error {
	data, err := afs.New().DownloadWithURL(ctx, location)
	if err != nil {
		return fmt.Errorf("failed to read playbook %s: %w", location, err)
	}
	aPlaybook, err := playbook.DecodeYAML(data)
	if err != nil {
		return err
	}
	cfg, err := remediator.LoadConfig(configPath)
	if err != nil {
		return err
	}
	defaults := compiler.Defaults{
		StepTimeout:            cfg.Step.DefaultTimeout,
		WorkflowTimeout:        cfg.Step.WorkflowTimeout,
		ApprovalQuorum:         cfg.Approval.DefaultQuorum,
		ApprovalTimeoutMinutes: cfg.Approval.DefaultTimeoutMinutes,
	}
	definition, err := compiler.New(memory.New(), compiler.WithDefaults(defaults)).CompilePlaybook(aPlaybook)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(definition)
}
