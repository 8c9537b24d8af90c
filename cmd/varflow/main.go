package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/varflow/varflow/internal/engine"
	"github.com/varflow/varflow/internal/logging"
	"github.com/varflow/varflow/internal/runner"
	"github.com/varflow/varflow/internal/scheduler"
	"github.com/varflow/varflow/internal/store"
	"github.com/varflow/varflow/internal/validation"
	"github.com/varflow/varflow/pkg/schema"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	var err error
	switch os.Args[1] {
	case "validate":
		err = cmdValidate(os.Args[2:])
	case "run":
		err = cmdRun(os.Args[2:], cfg, logger)
	case "serve":
		err = cmdServe(cfg, logger)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: varflow <command> [args]

commands:
  validate <file>   validate a workflow document
  run <file>        run a workflow document with the echo tool caller
  serve             run the cron scheduler against the configured store`)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func loadDocument(path string) (*schema.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow document: %w", err)
	}
	var wf schema.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse workflow document: %w", err)
	}
	return &wf, nil
}

func cmdValidate(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("validate expects exactly one file argument")
	}
	wf, err := loadDocument(args[0])
	if err != nil {
		return err
	}

	validator, err := validation.NewWorkflowValidator()
	if err != nil {
		return err
	}
	result := validator.Validate(wf)

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	if !result.Valid() {
		return fmt.Errorf("document has %d validation errors", len(result.Errors))
	}
	return nil
}

func cmdRun(args []string, cfg Config, logger *slog.Logger) error {
	if len(args) != 1 {
		return fmt.Errorf("run expects exactly one file argument")
	}
	wf, err := loadDocument(args[0])
	if err != nil {
		return err
	}

	validator, err := validation.NewWorkflowValidator()
	if err != nil {
		return err
	}
	if result := validator.Validate(wf); !result.Valid() {
		return result.ToError()
	}

	exec := engine.NewExecutor(echoToolCaller(), engine.Config{Logger: logger})
	r := runner.New(exec, runner.Config{Logger: logger, MaxSteps: cfg.MaxSteps})

	report, err := r.Run(context.Background(), wf)
	if err != nil {
		return err
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))

	if report.Status == schema.WorkflowStatusFailed {
		return fmt.Errorf("run failed: %s", report.Error)
	}
	return nil
}

func cmdServe(cfg Config, logger *slog.Logger) error {
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	exec := engine.NewExecutor(echoToolCaller(), engine.Config{Logger: logger})
	r := runner.New(exec, runner.Config{Store: st, Logger: logger, MaxSteps: cfg.MaxSteps})

	sched := scheduler.NewScheduler(st, r, logger)
	if err := sched.RecoverMissed(ctx); err != nil {
		logger.Warn("missed-run recovery failed", "error", err)
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	return sched.Stop()
}

// echoToolCaller resolves every tool call by echoing the resolved parameters
// back as outputs. Real hosts supply their own ToolCaller; this one makes
// documents runnable end to end without external services.
func echoToolCaller() engine.ToolCaller {
	return engine.ToolCallerFunc(func(_ context.Context, toolID string, params map[string]any) (map[string]any, error) {
		out := make(map[string]any, len(params)+1)
		for k, v := range params {
			out[k] = v
		}
		out["tool_id"] = toolID
		return out, nil
	})
}
