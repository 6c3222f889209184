package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aatumaykin/tickd/internal/config"
	"github.com/aatumaykin/tickd/internal/hook"
	"github.com/aatumaykin/tickd/internal/job"
	"github.com/aatumaykin/tickd/internal/logger"
	"github.com/aatumaykin/tickd/internal/scheduler"
	"github.com/aatumaykin/tickd/internal/store"
)

var serveLogLevel string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler daemon (main command)",
	Long: `Start the tickd scheduler with the specified configuration.
This loads persisted jobs, runs the dispatch loop, and handles graceful
shutdown on SIGINT/SIGTERM.`,
	Run: serveHandler,
}

func init() {
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "override configured log level")
}

func serveHandler(cmd *cobra.Command, args []string) {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Override log level if flag is set
	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}

	// Validate configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "configuration validation failed:\n")
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  - %v\n", e)
		}
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("starting tickd",
		logger.Field{Key: "version", Value: Version},
		logger.Field{Key: "git_commit", Value: GitCommit},
		logger.Field{Key: "config", Value: configPath},
		logger.Field{Key: "timezone", Value: cfg.Scheduler.Timezone})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize metrics endpoint if enabled
	var metrics *scheduler.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metrics = scheduler.InitMetrics("tickd", reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			log.Info("metrics endpoint listening",
				logger.Field{Key: "addr", Value: cfg.Metrics.Listen})
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics endpoint failed", err)
			}
		}()
		defer metricsSrv.Shutdown(context.Background())
	}

	storePath, err := cfg.ExpandStorePath()
	if err != nil {
		log.Error("failed to resolve store path", err)
		os.Exit(1)
	}
	st := store.New(storePath, log)

	hooks := hook.NewRegistry(cfg.Scheduler.HookTimeout(), log)
	registerLoggingHooks(hooks, log)

	// The daemon's executor delivers message payloads to the log. Task
	// payloads need a host-registered handler; without one they fail and
	// retry on their normal schedule.
	executor := scheduler.ExecutorFunc(func(ctx context.Context, p job.Payload, jobID string) error {
		switch p.Kind {
		case job.PayloadMessage:
			log.Info("message delivered",
				logger.Field{Key: "job_id", Value: jobID},
				logger.Field{Key: "message", Value: p.Message})
			return nil
		case job.PayloadTaskRun:
			return fmt.Errorf("no handler registered for task %q", p.TaskName)
		default:
			return fmt.Errorf("unknown payload kind %q", p.Kind)
		}
	})

	svc, err := scheduler.New(scheduler.Config{
		DefaultTimezone: cfg.Scheduler.Timezone,
		TickInterval:    cfg.Scheduler.TickInterval(),
		JobTimeout:      cfg.Scheduler.JobTimeout(),
	}, st, hooks, executor, log, metrics)
	if err != nil {
		log.Error("failed to initialize scheduler", err)
		os.Exit(1)
	}

	if err := svc.Start(ctx); err != nil {
		log.Error("failed to start scheduler", err)
		os.Exit(1)
	}

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info("shutting down", logger.Field{Key: "signal", Value: sig.String()})

	if err := svc.Stop(); err != nil {
		log.Error("failed to stop scheduler", err)
	}
}

// registerLoggingHooks attaches debug observers for every lifecycle event
func registerLoggingHooks(hooks *hook.Registry, log *logger.Logger) {
	for _, kind := range []hook.EventKind{hook.EventBeforeRun, hook.EventAfterRun, hook.EventRunFailed} {
		hooks.Register(kind, func(ctx context.Context, ev hook.Event) error {
			log.Debug("lifecycle event",
				logger.Field{Key: "event", Value: ev.Kind},
				logger.Field{Key: "job_id", Value: ev.JobID},
				logger.Field{Key: "name", Value: ev.JobName},
				logger.Field{Key: "status", Value: ev.Status})
			return nil
		})
	}
}
