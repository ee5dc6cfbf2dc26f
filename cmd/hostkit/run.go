package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/hostkit/internal/admin"
	"github.com/dshills/hostkit/internal/config"
	"github.com/dshills/hostkit/internal/host"
	"github.com/dshills/hostkit/internal/plugin"
)

// shutdownTimeout bounds plugin teardown after the host is asked to stop.
const shutdownTimeout = 10 * time.Second

func newRunCommand(flags *globalFlags) *cobra.Command {
	var (
		watch     bool
		adminAddr string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load plugins and run until interrupted",
		Long: `Load every plugin in the plugin directory, fire host.started and keep
running until SIGINT or SIGTERM. With --watch, new packages dropped into
the directory are loaded without a restart. The admin API is served on
--admin unless it is empty.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("watch") {
				cfg.Plugins.Watch = watch
			}
			if cmd.Flags().Changed("admin") {
				cfg.Admin.Addr = adminAddr
			}

			logger, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancelCause(cmd.Context())
			defer cancel(nil)
			stop := notifyOnSignal(cancel)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Load new plugin packages as they appear")
	cmd.Flags().StringVar(&adminAddr, "admin", "", "Admin API listen address; empty disables it")
	return cmd
}

// notifyOnSignal cancels with the received signal as the cause.
func notifyOnSignal(cancel context.CancelCauseFunc) (stop func()) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigc:
			cancel(fmt.Errorf("signal %s", sig))
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigc)
		close(done)
	}
}

// serve starts the runtime, runs the watcher and admin API until ctx is
// done and then shuts the runtime down.
func serve(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	rt, err := host.New(cfg, host.WithLogger(logger))
	if err != nil {
		return err
	}

	report, err := rt.Start(ctx)
	switch {
	case errors.Is(err, plugin.ErrCycleDetected):
		logger.Error().Err(err).Msg("plugin batch rejected")
	case err != nil:
		return errors.Join(err, rt.Shutdown(context.Background(), "start failed"))
	}
	if report != nil {
		logger.Info().
			Strs("loaded", report.Loaded).
			Int("skipped", len(report.Skipped)).
			Str("cycle", report.Cycle).
			Msg("plugins loaded")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	g.Go(func() error {
		return rt.Watch(gctx)
	})
	if cfg.Admin.Addr != "" {
		srv := admin.New(rt,
			admin.WithLogger(logger),
			admin.WithCORSOrigins(cfg.Admin.CORSOrigins...),
		)
		g.Go(func() error {
			return srv.Run(gctx, cfg.Admin.Addr)
		})
	}
	runErr := g.Wait()

	reason := "shutdown"
	if cause := context.Cause(ctx); cause != nil {
		reason = cause.Error()
	} else if runErr != nil {
		reason = runErr.Error()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, rt.Shutdown(shutdownCtx, reason))
}
