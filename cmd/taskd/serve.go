package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mido1300/sm/internal/clock"
	"github.com/Mido1300/sm/internal/logx"
	"github.com/Mido1300/sm/internal/serverapp"
	"github.com/Mido1300/sm/internal/telemetry"
	"github.com/Mido1300/sm/internal/timer"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr != "" {
				a.cfg.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	activity := telemetry.NewMemoryRepository(0, nil)
	timers := timer.NewRegistry(a.kv,
		timer.WithLogger(a.logger),
		timer.WithPauseHook(serverapp.PauseHook(a.store, activity, a.logger)),
	)
	ids := make([]string, 0, a.store.Len())
	for _, t := range a.store.Tasks() {
		ids = append(ids, t.ID)
	}
	timers.Restore(ids)
	unbind := serverapp.Bind(a.store, timers, activity, a.logger)
	defer unbind()

	handler, err := serverapp.NewHandler(serverapp.Options{
		Config:     a.cfg,
		Storage:    a.kv,
		Store:      a.store,
		Timers:     timers,
		Categories: a.categories,
		Activity:   activity,
		Clock:      clock.RealClock{},
		Logger:     a.logger,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	go func() {
		_ = timers.Run(ctx, a.cfg.TickInterval())
	}()

	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logx.Event(a.logger, "info", "listening", map[string]any{"addr": a.cfg.Addr, "storage": a.cfg.Storage.Backend})
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
