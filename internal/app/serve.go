package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"mortgage-rate-alerts/internal/httpapi"
	"mortgage-rate-alerts/internal/storage"
	"mortgage-rate-alerts/internal/telemetry"
)

// Serve runs the HTTP API and, when enabled, the background rate monitor until
// SIGINT/SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, a.Config.Telemetry, a.Config.App.Name, a.Logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to flush traces")
		}
	}()

	store, closeStore, err := a.openStore(ctx, true)
	if err != nil {
		return err
	}
	defer closeStore()

	if pg, ok := store.(*storage.Store); ok && a.Config.Database.AutoMigrate {
		applied, err := pg.Migrate(ctx)
		if err != nil {
			return err
		}
		a.Logger.Info().Strs("migrations", applied).Msg("schema migrated")
	}

	rates, err := a.newRates()
	if err != nil {
		return err
	}
	mon := a.newMonitor(store, rates, a.Config.Scheduler.Enabled)

	limiter, closeLimiter := a.newLimiter()
	defer closeLimiter()

	handler := httpapi.NewRouter(httpapi.Options{
		Service:        a.newService(store),
		Checker:        mon,
		Ready:          store,
		Limiter:        limiter,
		Policies:       a.policies(),
		AdminKey:       a.Config.Admin.APIKey,
		RequestTimeout: a.Config.HTTP.RequestTimeout,
		Tracing:        a.Config.Telemetry.Enabled,
		Logger:         a.Logger,
	})

	srv := &http.Server{
		Addr:         a.Config.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  a.Config.HTTP.ReadTimeout,
		WriteTimeout: a.Config.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		a.Logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var wg sync.WaitGroup
	if a.Config.Scheduler.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting rate monitor")
			if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("rate monitor: %w", err)
			}
		}()
	} else {
		a.Logger.Warn().Msg("scheduler disabled; rate checks run only on demand")
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		a.Logger.Error().Err(runErr).Msg("service terminated with error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
	cancel()
	wg.Wait()

	a.Logger.Info().Msg("service stopped")
	return runErr
}
