package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"postsync/internal/config"
	"postsync/pkg/container"
)

func Serve(cfg *config.Config) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ========================================
	// 1. BUILD DI CONTAINER
	// ========================================
	appContainer, err := container.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize container")
	}
	defer appContainer.Cleanup()

	// ========================================
	// 2. START BACKGROUND PARTS
	// ========================================
	if err := appContainer.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to start")
		return
	}

	var worker *backgroundWorker
	if cfg.Worker.Enabled {
		worker, err = startWorker(appContainer)
		if err != nil {
			log.Error().Err(err).Msg("Failed to start worker")
			return
		}
		defer worker.Shutdown()
	}

	// ========================================
	// 3. CONFIGURE HTTP SERVER
	// ========================================
	router := SetupRouter(appContainer)
	port := cfg.App.Port
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: peer watch connections are long-lived
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// ========================================
	// 4. START SERVER (NON-BLOCKING)
	// ========================================
	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("🚀 Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// ========================================
	// 5. GRACEFUL SHUTDOWN
	// ========================================
	select {
	case <-ctx.Done():
		log.Info().Msg("🛑 Shutting down server...")
	case err := <-serverErr:
		log.Error().Err(err).Msg("Server failed")
		stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Server forced to shutdown")
		_ = srv.Close()
	}

	log.Info().Msg("✅ Server exited gracefully")
}
