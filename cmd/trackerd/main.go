// Command trackerd serves the race tracking API: course uploads, live GPS
// correction, event-detail views and leaderboards.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/racepulse/server/pkg/bootstrap"
	"github.com/racepulse/server/pkg/httpapi"
	"github.com/racepulse/server/pkg/infrastructure/sentry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := bootstrap.NewService(ctx, "trackerd")
	if err != nil {
		bootstrap.NewLogger("trackerd").Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	logger := svc.Logger
	defer sentry.RecoverAndCapture(logger)

	api := &httpapi.Server{
		Courses:     svc.Courses,
		Correction:  svc.Correction,
		EventDetail: svc.EventDetail,
		Board:       svc.Board,
		LiveStore:   svc.LiveStore,
		Logger:      logger,
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}

	sentry.Flush(2 * time.Second)
	logger.Info("stopped")
}
