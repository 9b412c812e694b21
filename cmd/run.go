package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/question-bank/internal/monitoring"
	"github.com/sells-group/question-bank/internal/scheduler"
)

// shutdownTimeout bounds the HTTP server's graceful shutdown.
const shutdownTimeout = 10 * time.Second

var runPort int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the enrichment scheduler with the status server and alert checker",
	Long: "Schedules every enabled workflow on its own cadence, serves /health, /status, " +
		"/tasks and /metrics, and checks failed-task thresholds until interrupted. " +
		"On shutdown in-flight cycles finish their claimed batch.",
	Annotations: enrichMode(),
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reg := newRegistry()
		reg.MustRegister(monitoring.NewQueueCollector(st))

		env, err := newEnrichEnv(cfg, st, newInferrer(cfg), nil, reg)
		if err != nil {
			return err
		}

		sched := scheduler.New(env.Clock)
		if err := env.schedule(cfg, sched); err != nil {
			return err
		}

		collector := monitoring.NewCollector(st, env.Set, env.Clock)
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring, env.Clock)

		port := runPort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           monitoring.NewHandler(collector, st, reg),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			if err := sched.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			zap.L().Info("stopping scheduler; waiting for running cycles")
			sched.Stop()
			return nil
		})

		g.Go(func() error {
			checker.Run(gctx)
			return nil
		})

		g.Go(func() error {
			zap.L().Info("starting status server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "status server listen")
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down status server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func init() {
	runCmd.Flags().IntVar(&runPort, "port", 0, "status server port (default from config)")
	rootCmd.AddCommand(runCmd)
}
