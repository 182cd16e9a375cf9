package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/accounts/internal/config"
	"github.com/dukerupert/accounts/internal/database"
	"github.com/dukerupert/accounts/internal/email"
	"github.com/dukerupert/accounts/internal/logging"
	"github.com/dukerupert/accounts/internal/metrics"
	"github.com/dukerupert/accounts/internal/middleware"
	"github.com/dukerupert/accounts/internal/server"
	"github.com/dukerupert/accounts/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("accounts service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	var sender email.Sender
	client := email.NewClient(cfg.Postmark.Token, cfg.Postmark.From)
	if client.Configured() {
		sender = client
	} else {
		logger.Warn("postmark not configured, e-mails will be logged")
		sender = email.LogSender{Logger: logger.With("component", "email")}
	}

	var images storage.Store
	switch cfg.Images.Backend {
	case config.ImageBackendS3:
		images, err = storage.NewS3Store(storage.S3Config{
			Endpoint:  cfg.Images.S3.Endpoint,
			Bucket:    cfg.Images.S3.Bucket,
			Region:    cfg.Images.S3.Region,
			AccessKey: cfg.Images.S3.AccessKey,
			SecretKey: cfg.Images.S3.SecretKey,
			Prefix:    cfg.Images.S3.Prefix,
		})
	default:
		images, err = storage.NewDiskStore(cfg.Images.UploadDir)
	}
	if err != nil {
		return err
	}

	trusted, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	srv := server.New(db, server.Options{
		SessionTTL:     cfg.SessionTTL,
		SweepInterval:  cfg.SweepInterval,
		Sender:         sender,
		BaseURL:        cfg.BaseURL,
		Images:         images,
		ServeImages:    cfg.Images.Backend == config.ImageBackendDisk,
		RateLimit:      cfg.RateLimit,
		RateWindow:     cfg.RateWindow,
		TrustedProxies: trusted,
		Metrics:        metrics.New(),
		Logger:         logger,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("accounts service starting", "addr", httpServer.Addr, "base_url", cfg.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		srv.Sweeper().Start(ctx)
		<-ctx.Done()
		srv.Sweeper().Stop()
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
