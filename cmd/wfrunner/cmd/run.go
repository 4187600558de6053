package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/psantana5/wfrunner/internal/config"
	"github.com/psantana5/wfrunner/internal/engine"
	"github.com/psantana5/wfrunner/internal/report"
	"github.com/psantana5/wfrunner/internal/status"
	"github.com/psantana5/wfrunner/internal/supervisor"
	"github.com/psantana5/wfrunner/internal/tracker"
	"github.com/psantana5/wfrunner/pkg/auth"
	"github.com/psantana5/wfrunner/pkg/logging"
	"github.com/psantana5/wfrunner/pkg/middleware"
	"github.com/psantana5/wfrunner/pkg/models"
	"github.com/psantana5/wfrunner/pkg/shutdown"
	"github.com/psantana5/wfrunner/pkg/tracing"
)

var runRunFlags = newRunFlags()

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a workflow and report its status",
	Long: `Prepare the workflow inside its workspace, execute it with the configured
engine and report RUNNING followed by FINISHED or FAILED to the status
channel. Exits with status 1 when the workflow fails.`,
	RunE: runWorkflow,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runRunFlags.register(runCmd)
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	req, err := runRunFlags.request(cfg)
	if err != nil {
		return err
	}

	mask, err := cfg.Umask()
	if err != nil {
		return err
	}
	unix.Umask(mask)

	logger, err := newLogger(cfg, "wfrunner")
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sm := shutdown.New(15*time.Second, logger)
	defer sm.Shutdown()

	metrics := report.NewMetrics()
	reporter := newReporter(cfg, logger, metrics)
	sm.Register("status channel", shutdown.CloseResource(reporter))

	tp, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "wfrunner",
		ServiceVersion: Version,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		return failSetup(ctx, reporter, logger, req.RunID, err)
	}
	sm.Register("tracer", shutdown.CloseResource(tp))

	var current atomic.Pointer[tracker.Tracker]
	if cfg.Metrics.Addr != "" {
		if err := startMetricsServer(cfg, req, metrics, &current, sm, logger); err != nil {
			return failSetup(ctx, reporter, logger, req.RunID, err)
		}
	}

	checker, err := newChecker(cfg, logger)
	if err != nil {
		return failSetup(ctx, reporter, logger, req.RunID, err)
	}
	eng, err := engine.NewCommandEngine(cfg.Engine.Command, logger)
	if err != nil {
		return failSetup(ctx, reporter, logger, req.RunID, err)
	}

	opts := []supervisor.Option{
		supervisor.WithMetrics(metrics),
		supervisor.WithTracer(tp),
		supervisor.WithSettings(supervisorSettings(cfg)),
		supervisor.WithTrackerHook(func(t *tracker.Tracker) { current.Store(t) }),
	}
	if checker.Enabled() {
		opts = append(opts, supervisor.WithChecker(checker))
	}

	sup := supervisor.New(newLoader(cfg, logger), eng, reporter, logger, opts...)
	outcome := sup.Run(ctx, req)

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("Failed to write metrics textfile", logging.Fields{
				"path":           cfg.Metrics.Textfile,
				logging.ErrorKey: err,
			})
		}
	}

	if outcome.State == models.RunStateFailed {
		return &ExitError{Code: 1}
	}
	return nil
}

// failSetup reports FAILED for a run whose supervisor never started
func failSetup(ctx context.Context, reporter *status.Reporter, logger *logging.Logger, runID string, err error) error {
	logger.Error("Run setup failed", logging.Fields{
		logging.RunIDKey: runID,
		logging.ErrorKey: err,
	})
	reporter.Report(ctx, runID, models.RunStateFailed, fmt.Sprintf("workflow failed: %v", err))
	return &ExitError{Code: 1}
}

// startMetricsServer serves /metrics and /health until shutdown
func startMetricsServer(cfg *config.Config, req models.RunRequest, metrics *report.Metrics, current *atomic.Pointer[tracker.Tracker], sm *shutdown.Manager, logger *logging.Logger) error {
	health := func() map[string]interface{} {
		body := map[string]interface{}{"run_id": req.RunID}
		if t := current.Load(); t != nil {
			body["engine"] = t.Snapshot()
		}
		return body
	}

	router := report.NewRouter(metrics, health)
	if cfg.Metrics.TokenHash != "" {
		verifier, err := auth.NewHashVerifier(cfg.Metrics.TokenHash)
		if err != nil {
			return err
		}
		router.Use(middleware.RequireToken(verifier, logger, "/health"))
	}

	srv := report.NewServer(cfg.Metrics.Addr, router)
	go func() {
		logger.Info("Metrics server listening", logging.Fields{"addr": cfg.Metrics.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", logging.Fields{logging.ErrorKey: err})
		}
	}()
	sm.Register("metrics server", shutdown.StopHTTPServer(srv))
	return nil
}
